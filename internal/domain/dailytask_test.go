package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTotalHours(t *testing.T) {
	tests := []struct {
		name string
		ins  []string
		outs []string
		want string
	}{
		{name: "single shift", ins: []string{"09:00 AM"}, outs: []string{"05:00 PM"}, want: "8:00"},
		{name: "unmatched clock-in", ins: []string{"09:00 AM"}, outs: nil, want: "0:00"},
		{name: "trailing clock-in ignored", ins: []string{"09:00 AM", "06:00 PM"}, outs: []string{"12:30 PM"}, want: "3:30"},
		{name: "two shifts", ins: []string{"08:15 AM", "01:00 PM"}, outs: []string{"12:00 PM", "04:45 PM"}, want: "7:30"},
		{name: "overnight shift", ins: []string{"10:00 PM"}, outs: []string{"06:00 AM"}, want: "8:00"},
		{name: "day and overnight", ins: []string{"08:00 AM", "11:30 PM"}, outs: []string{"12:00 PM", "07:15 AM"}, want: "11:45"},
		{name: "same minute", ins: []string{"09:00 AM"}, outs: []string{"09:00 AM"}, want: "0:00"},
		{name: "unparseable pair skipped", ins: []string{"bogus", "10:00 AM"}, outs: []string{"11:00 AM", "10:20 AM"}, want: "0:20"},
		{name: "empty", want: "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TotalHours(tt.ins, tt.outs)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseDateKey(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{input: "2024-01-01", ok: true},
		{input: "2024-02-29", ok: true},
		{input: "2023-02-29", ok: false},
		{input: "2024-1-01", ok: false},
		{input: "24-01-01", ok: false},
		{input: "2024/01/01", ok: false},
		{input: "", ok: false},
		{input: "2024-13-01", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDateKey(tt.input)
			if tt.ok {
				if err != nil {
					t.Fatalf("expected %q to parse, got %v", tt.input, err)
				}
				if DateKey(got) != tt.input {
					t.Fatalf("expected round trip to %q, got %q", tt.input, DateKey(got))
				}
				return
			}
			if !errors.Is(err, ErrInvalidDate) {
				t.Fatalf("expected ErrInvalidDate for %q, got %v", tt.input, err)
			}
		})
	}
}

func TestClockTimeMatchesLayout(t *testing.T) {
	at := time.Date(2024, 1, 1, 17, 5, 0, 0, time.UTC)
	if got := ClockTime(at); got != "05:05 PM" {
		t.Fatalf("expected 05:05 PM, got %q", got)
	}
}

func TestNormalizeRecomputesTotal(t *testing.T) {
	d := DailyTask{
		ClockInTimes:  []string{"09:00 AM"},
		ClockOutTimes: []string{"10:30 AM"},
		TotalHours:    "99:00",
	}
	d.Normalize()

	if d.TotalHours != "1:30" {
		t.Fatalf("expected derived total 1:30, got %q", d.TotalHours)
	}
	if d.Tasks == nil || d.MoodHistory == nil || d.Activities == nil {
		t.Fatal("expected nil lists to be replaced")
	}
	if d.OpenShift() {
		t.Fatal("expected no open shift")
	}
}

func TestParseMood(t *testing.T) {
	if m, ok := ParseMood("calm"); !ok || m != MoodCalm {
		t.Fatalf("expected Calm, got %q %v", m, ok)
	}
	if _, ok := ParseMood("sleepy"); ok {
		t.Fatal("expected unknown mood to be rejected")
	}
}

func TestEditableFieldExcludesAppendOnlyLists(t *testing.T) {
	for _, f := range []string{"clockInTimes", "clockOutTimes", "totalHours", FieldMoodHistory, FieldVitalsHistory, "unknown"} {
		if EditableField(f) {
			t.Fatalf("expected %q to be rejected", f)
		}
	}
	if !EditableField(FieldDiet) {
		t.Fatal("expected diet to be editable")
	}
}
