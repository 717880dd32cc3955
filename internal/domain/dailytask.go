package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the key format for daily task records.
const DateLayout = "2006-01-02"

// ClockLayout is the display format of clock-in/out and mood timestamps (hh:mm AM).
const ClockLayout = "03:04 PM"

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var ErrInvalidDate = errors.New("Invalid date format. Use YYYY-MM-DD")

// ParseDateKey validates a YYYY-MM-DD key and returns the calendar day it names.
func ParseDateKey(raw string) (time.Time, error) {
	if !dateKeyPattern.MatchString(raw) {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// DateKey formats t as a record key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// Mood is one of the fixed labels a staff member can record.
type Mood string

const (
	MoodCheerful Mood = "Cheerful"
	MoodCalm     Mood = "Calm"
	MoodExcited  Mood = "Excited"
	MoodTense    Mood = "Tense"
	MoodFearful  Mood = "Fearful"
	MoodAngry    Mood = "Angry"
)

var moods = []Mood{MoodCheerful, MoodCalm, MoodExcited, MoodTense, MoodFearful, MoodAngry}

// ParseMood matches a mood label case-insensitively.
func ParseMood(raw string) (Mood, bool) {
	for _, m := range moods {
		if strings.EqualFold(string(m), strings.TrimSpace(raw)) {
			return m, true
		}
	}
	return "", false
}

type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Time      string `json:"time"`
}

type Vitals struct {
	BloodPressure string `json:"bloodPressure"`
	HeartRate     string `json:"heartRate"`
	Temperature   string `json:"temperature"`
	OxygenLevel   string `json:"oxygenLevel"`
	BloodSugar    string `json:"bloodSugar"`
}

// VitalsEntry is a timestamped vitals snapshot.
type VitalsEntry struct {
	Time string `json:"time"`
	Vitals
}

type Diet struct {
	Breakfast bool `json:"breakfast"`
	Lunch     bool `json:"lunch"`
	Snacks    bool `json:"snacks"`
	Dinner    bool `json:"dinner"`
}

type MoodEntry struct {
	Time string `json:"time"`
	Mood Mood   `json:"mood"`
}

// DailyTask is the per-(user, date) log document.
type DailyTask struct {
	Tasks         []Task        `json:"tasks"`
	Vitals        Vitals        `json:"vitals"`
	VitalsHistory []VitalsEntry `json:"vitalsHistory"`
	ClockInTimes  []string      `json:"clockInTimes"`
	ClockOutTimes []string      `json:"clockOutTimes"`
	TotalHours    string        `json:"totalHours"`
	Diet          Diet          `json:"diet"`
	Activities    []string      `json:"activities"`
	MoodHistory   []MoodEntry   `json:"moodHistory"`
}

// NewDailyTask returns an empty record with non-nil lists.
func NewDailyTask() DailyTask {
	return DailyTask{
		Tasks:         []Task{},
		VitalsHistory: []VitalsEntry{},
		ClockInTimes:  []string{},
		ClockOutTimes: []string{},
		TotalHours:    "0:00",
		Activities:    []string{},
		MoodHistory:   []MoodEntry{},
	}
}

// Normalize replaces nil lists left by partially written documents.
func (d *DailyTask) Normalize() {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	if d.VitalsHistory == nil {
		d.VitalsHistory = []VitalsEntry{}
	}
	if d.ClockInTimes == nil {
		d.ClockInTimes = []string{}
	}
	if d.ClockOutTimes == nil {
		d.ClockOutTimes = []string{}
	}
	if d.Activities == nil {
		d.Activities = []string{}
	}
	if d.MoodHistory == nil {
		d.MoodHistory = []MoodEntry{}
	}
	d.TotalHours = TotalHours(d.ClockInTimes, d.ClockOutTimes)
}

// OpenShift reports whether the last clock-in has no matching clock-out.
func (d DailyTask) OpenShift() bool {
	return len(d.ClockInTimes) > len(d.ClockOutTimes)
}

// Field names of the daily record. Only editableFields may be written by a
// field-level merge; the attendance and history lists grow through their
// own append operations and the total is derived.
const (
	FieldTasks         = "tasks"
	FieldVitals        = "vitals"
	FieldVitalsHistory = "vitalsHistory"
	FieldDiet          = "diet"
	FieldActivities    = "activities"
	FieldMoodHistory   = "moodHistory"
)

var editableFields = map[string]bool{
	FieldTasks:      true,
	FieldVitals:     true,
	FieldDiet:       true,
	FieldActivities: true,
}

// EditableField reports whether name may be written by a field-level merge.
func EditableField(name string) bool {
	return editableFields[name]
}

// TotalHours pairs the n-th clock-in with the n-th clock-out and sums the
// durations as H:MM. An unmatched clock-in contributes nothing. Labels carry
// no date, so a clock-out earlier on the clock than its clock-in is read as
// the next morning of an overnight shift.
func TotalHours(clockIns, clockOuts []string) string {
	var total time.Duration
	for i := 0; i < len(clockIns) && i < len(clockOuts); i++ {
		in, err := time.Parse(ClockLayout, strings.TrimSpace(clockIns[i]))
		if err != nil {
			continue
		}
		out, err := time.Parse(ClockLayout, strings.TrimSpace(clockOuts[i]))
		if err != nil {
			continue
		}
		d := out.Sub(in)
		if d < 0 {
			d += 24 * time.Hour
		}
		total += d
	}
	minutes := int(total / time.Minute)
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// ClockTime formats t as a clock-in/out label.
func ClockTime(t time.Time) string {
	return t.Format(ClockLayout)
}
