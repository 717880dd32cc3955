package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestStepSequence(t *testing.T) {
	var got []Step
	step := StepDetails
	for {
		got = append(got, step)
		next, ok := step.Next()
		if !ok {
			break
		}
		step = next
	}
	if !reflect.DeepEqual(got, Steps) {
		t.Fatalf("expected %v, got %v", Steps, got)
	}
	if !StepIDProof.Final() {
		t.Fatal("expected idproof to be the final step")
	}
	if StepTestimonial.Final() || StepCompleted.Final() {
		t.Fatal("expected only idproof to be final")
	}
}

func TestParseStep(t *testing.T) {
	if s, err := ParseStep(" IDProof "); err != nil || s != StepIDProof {
		t.Fatalf("expected idproof, got %q %v", s, err)
	}
	if _, err := ParseStep("payment"); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
}

func TestSliceValidation(t *testing.T) {
	tests := []struct {
		name    string
		slice   Slice
		missing []string
	}{
		{name: "details complete", slice: Details{FullName: "Asha", JobLocation: "Delhi", Gender: "female", ProfilePhoto: "https://cdn/p.jpg"}},
		{name: "details without photo", slice: Details{FullName: "Asha", JobLocation: "Delhi", Gender: "female"}, missing: []string{"profilePhoto"}},
		{name: "wages partial", slice: Wages{LessThan5Hours: 500}, missing: []string{"hours12", "hours24"}},
		{name: "shifts blank entries", slice: Shifts{PreferredShifts: []string{" ", ""}}, missing: []string{"preferredShifts"}},
		{name: "testimonial optional", slice: Testimonial{}},
		{name: "aadhaar short", slice: IDProof{AadharNumber: "1234", AadharFront: "f", AadharBack: "b"}, missing: []string{"aadharNumber"}},
		{name: "aadhaar spaced", slice: IDProof{AadharNumber: "1234 5678 9012", AadharFront: "f", AadharBack: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slice.Validate()
			if len(tt.missing) == 0 {
				if err != nil {
					t.Fatalf("expected valid slice, got %v", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !reflect.DeepEqual(vErr.Fields, tt.missing) {
				t.Fatalf("expected missing %v, got %v", tt.missing, vErr.Fields)
			}
		})
	}
}

func TestApplyOnlyTouchesOwnSlice(t *testing.T) {
	state := FormState{}.
		Apply(Details{FullName: "Asha", JobLocation: "Delhi", Gender: "female", ProfilePhoto: "p"}).
		Apply(Wages{LessThan5Hours: 400, Hours12: 900, Hours24: 1500})

	updated := state.Apply(Wages{LessThan5Hours: 450, Hours12: 950, Hours24: 1600})

	if updated.Details == nil || updated.Details.FullName != "Asha" {
		t.Fatalf("expected details to survive a wages update, got %+v", updated.Details)
	}
	if updated.Wages.LessThan5Hours != 450 {
		t.Fatalf("expected wages to be replaced, got %+v", updated.Wages)
	}
	if state.Wages.LessThan5Hours != 400 {
		t.Fatal("expected Apply not to mutate the receiver")
	}
}

func TestPatchIsIdempotent(t *testing.T) {
	slice := Skills{JobRole: "attendant", Services: []string{"cooking", " "}}
	once := FormState{}.Apply(slice)
	twice := once.Apply(slice)

	if !reflect.DeepEqual(once.Patch(), twice.Patch()) {
		t.Fatalf("expected identical patches, got %+v and %+v", once.Patch(), twice.Patch())
	}
}

func TestPatchDefaultsAgency(t *testing.T) {
	p := FormState{}.Apply(Details{FullName: "Asha"}).Patch()
	if p.ProviderID == nil || *p.ProviderID != DefaultAgency {
		t.Fatalf("expected provider id %q, got %v", DefaultAgency, p.ProviderID)
	}
	if p.Profile == nil || len(p.Profile) != 0 {
		t.Fatalf("expected empty profile patch, got %v", p.Profile)
	}
}

func TestFormStateRoundTripsThroughStoredRecord(t *testing.T) {
	state := FormState{LastStep: StepIDProof}.
		Apply(Details{FullName: "Asha", JobLocation: "Delhi", Gender: "female", ProfilePhoto: "p", Agency: "care-co"}).
		Apply(Wages{LessThan5Hours: 400, Hours12: 900, Hours24: 1500}).
		Apply(Education{Qualification: "GNM", Certificate: "c", ExperienceYears: 3, MaritalStatus: "single", Languages: []string{"Hindi"}}).
		Apply(Shifts{PreferredShifts: []string{"day"}}).
		Apply(Skills{JobRole: "nurse", Services: []string{"cooking"}}).
		Apply(Personal{FoodPreference: "veg", Smoking: "no", CarryFood: "yes"}).
		Apply(Testimonial{CustomerName: "R", CustomerPhone: "+919999999999", Recording: "r"})

	patch := state.Patch()

	// Simulate the jsonb round trip so numbers come back as float64.
	blob, err := json.Marshal(patch.Profile)
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	var stored Profile
	if err := json.Unmarshal(blob, &stored); err != nil {
		t.Fatalf("unmarshal profile: %v", err)
	}

	user := &User{
		Name:         *patch.Name,
		Location:     *patch.Location,
		Gender:       *patch.Gender,
		ProfilePhoto: *patch.ProfilePhoto,
		ProviderID:   *patch.ProviderID,
		LastStep:     patch.LastStep,
		Status:       StatusUnregistered,
		Profile:      stored,
	}

	got := FormStateFromUser(user)
	if !reflect.DeepEqual(got, state) {
		t.Fatalf("expected hydrated state\n%+v\ngot\n%+v", state, got)
	}
	if ResumeStep(user) != StepIDProof {
		t.Fatalf("expected resume at idproof, got %q", ResumeStep(user))
	}
}

func TestResumeStep(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want Step
	}{
		{name: "no record", user: nil, want: StepDetails},
		{name: "no marker", user: &User{Status: StatusUnregistered}, want: StepDetails},
		{name: "marker", user: &User{Status: StatusUnregistered, LastStep: StepShifts}, want: StepShifts},
		{name: "garbage marker", user: &User{Status: StatusUnregistered, LastStep: "nope"}, want: StepDetails},
		{name: "registered", user: &User{Status: StatusRegistered, LastStep: StepIDProof}, want: StepCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResumeStep(tt.user); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDecodeSliceRejectsCompleted(t *testing.T) {
	if _, err := DecodeSlice(StepCompleted, []byte(`{}`)); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
	s, err := DecodeSlice(StepWages, []byte(`{"lessThan5Hours":1,"hours12":2,"hours24":3}`))
	if err != nil {
		t.Fatalf("decode wages: %v", err)
	}
	if s.Step() != StepWages {
		t.Fatalf("expected wages slice, got %q", s.Step())
	}
}
