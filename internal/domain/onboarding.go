package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Step identifies one page of the onboarding wizard.
type Step string

const (
	StepDetails     Step = "details"
	StepWages       Step = "wages"
	StepEducation   Step = "education"
	StepShifts      Step = "shifts"
	StepSkills      Step = "skills"
	StepPersonal    Step = "personal"
	StepTestimonial Step = "testimonial"
	StepIDProof     Step = "idproof"
	StepCompleted   Step = "completed"
)

// Steps lists the wizard steps in order.
var Steps = []Step{
	StepDetails,
	StepWages,
	StepEducation,
	StepShifts,
	StepSkills,
	StepPersonal,
	StepTestimonial,
	StepIDProof,
	StepCompleted,
}

// DefaultAgency is used as provider id when the staff member is not attached to an agency.
const DefaultAgency = "self"

var ErrUnknownStep = errors.New("unknown onboarding step")

// ParseStep validates a step name.
func ParseStep(raw string) (Step, error) {
	s := Step(strings.ToLower(strings.TrimSpace(raw)))
	if s.index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, raw)
	}
	return s, nil
}

func (s Step) index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the step that follows s. The completed step has no successor.
func (s Step) Next() (Step, bool) {
	i := s.index()
	if i < 0 || i >= len(Steps)-1 {
		return "", false
	}
	return Steps[i+1], true
}

// Final reports whether advancing from s finishes the wizard.
func (s Step) Final() bool {
	next, ok := s.Next()
	return ok && next == StepCompleted
}

// Before reports whether s comes earlier in the wizard than other.
func (s Step) Before(other Step) bool {
	return s.index() < other.index()
}

// ValidationError lists the fields a step is missing before it can advance.
type ValidationError struct {
	Step   Step
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s step is missing required fields: %s", e.Step, strings.Join(e.Fields, ", "))
}

// Slice is the typed form data owned by exactly one wizard step.
type Slice interface {
	Step() Step
	Validate() error
}

type Details struct {
	FullName     string `json:"fullName"`
	JobLocation  string `json:"jobLocation"`
	Gender       string `json:"gender"`
	ProfilePhoto string `json:"profilePhoto"`
	Agency       string `json:"agency"`
}

type Wages struct {
	LessThan5Hours int `json:"lessThan5Hours"`
	Hours12        int `json:"hours12"`
	Hours24        int `json:"hours24"`
}

type Education struct {
	Qualification   string   `json:"qualification"`
	Certificate     string   `json:"certificate"`
	ExperienceYears int      `json:"experience"`
	MaritalStatus   string   `json:"maritalStatus"`
	Languages       []string `json:"languages"`
}

type Shifts struct {
	PreferredShifts []string `json:"preferredShifts"`
}

type Skills struct {
	JobRole  string   `json:"jobRole"`
	Services []string `json:"services"`
}

type Personal struct {
	FoodPreference string `json:"foodPreference"`
	Smoking        string `json:"smoking"`
	CarryFood      string `json:"carryFood"`
	AdditionalInfo string `json:"additionalInfo"`
}

type Testimonial struct {
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	Recording     string `json:"recording"`
}

type IDProof struct {
	AadharNumber string `json:"aadharNumber"`
	AadharFront  string `json:"aadharFront"`
	AadharBack   string `json:"aadharBack"`
	PanNumber    string `json:"panNumber"`
	PanCard      string `json:"panCard"`
}

func (Details) Step() Step     { return StepDetails }
func (Wages) Step() Step       { return StepWages }
func (Education) Step() Step   { return StepEducation }
func (Shifts) Step() Step      { return StepShifts }
func (Skills) Step() Step      { return StepSkills }
func (Personal) Step() Step    { return StepPersonal }
func (Testimonial) Step() Step { return StepTestimonial }
func (IDProof) Step() Step     { return StepIDProof }

func missing(step Step, checks ...fieldCheck) error {
	var fields []string
	for _, c := range checks {
		if !c.ok {
			fields = append(fields, c.name)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Step: step, Fields: fields}
}

type fieldCheck struct {
	name string
	ok   bool
}

func present(name, value string) fieldCheck {
	return fieldCheck{name: name, ok: strings.TrimSpace(value) != ""}
}

func (d Details) Validate() error {
	return missing(StepDetails,
		present("fullName", d.FullName),
		present("jobLocation", d.JobLocation),
		present("gender", d.Gender),
		present("profilePhoto", d.ProfilePhoto),
	)
}

func (w Wages) Validate() error {
	return missing(StepWages,
		fieldCheck{name: "lessThan5Hours", ok: w.LessThan5Hours > 0},
		fieldCheck{name: "hours12", ok: w.Hours12 > 0},
		fieldCheck{name: "hours24", ok: w.Hours24 > 0},
	)
}

func (e Education) Validate() error {
	return missing(StepEducation,
		present("qualification", e.Qualification),
		fieldCheck{name: "experience", ok: e.ExperienceYears >= 0},
	)
}

func (s Shifts) Validate() error {
	return missing(StepShifts, fieldCheck{name: "preferredShifts", ok: len(nonEmpty(s.PreferredShifts)) > 0})
}

func (s Skills) Validate() error {
	return missing(StepSkills, present("jobRole", s.JobRole))
}

func (p Personal) Validate() error {
	return missing(StepPersonal, present("foodPreference", p.FoodPreference))
}

func (Testimonial) Validate() error { return nil }

func (p IDProof) Validate() error {
	digits := strings.ReplaceAll(strings.TrimSpace(p.AadharNumber), " ", "")
	return missing(StepIDProof,
		fieldCheck{name: "aadharNumber", ok: len(digits) == 12 && isDigits(digits)},
		present("aadharFront", p.AadharFront),
		present("aadharBack", p.AadharBack),
	)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// DecodeSlice decodes the request body for step into its typed slice.
func DecodeSlice(step Step, raw []byte) (Slice, error) {
	var target Slice
	switch step {
	case StepDetails:
		var v Details
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	case StepWages:
		var v Wages
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	case StepEducation:
		var v Education
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	case StepShifts:
		var v Shifts
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	case StepSkills:
		var v Skills
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	case StepPersonal:
		var v Personal
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	case StepTestimonial:
		var v Testimonial
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	case StepIDProof:
		var v IDProof
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		target = v
	default:
		return nil, fmt.Errorf("%w: %q accepts no form data", ErrUnknownStep, step)
	}
	return target, nil
}

// FormState is the cumulative wizard state. Each slice is owned by one step.
type FormState struct {
	Details     *Details     `json:"details,omitempty"`
	Wages       *Wages       `json:"wages,omitempty"`
	Education   *Education   `json:"education,omitempty"`
	Shifts      *Shifts      `json:"shifts,omitempty"`
	Skills      *Skills      `json:"skills,omitempty"`
	Personal    *Personal    `json:"personal,omitempty"`
	Testimonial *Testimonial `json:"testimonial,omitempty"`
	IDProof     *IDProof     `json:"idProof,omitempty"`
	LastStep    Step         `json:"lastStep,omitempty"`
}

// Apply returns a copy of f with the slice's own field replaced. Other slices are untouched.
func (f FormState) Apply(s Slice) FormState {
	switch v := s.(type) {
	case Details:
		f.Details = &v
	case Wages:
		f.Wages = &v
	case Education:
		v.Languages = nonEmpty(v.Languages)
		f.Education = &v
	case Shifts:
		v.PreferredShifts = nonEmpty(v.PreferredShifts)
		f.Shifts = &v
	case Skills:
		v.Services = nonEmpty(v.Services)
		f.Skills = &v
	case Personal:
		f.Personal = &v
	case Testimonial:
		f.Testimonial = &v
	case IDProof:
		f.IDProof = &v
	}
	return f
}

// UserPatch is the merge-write produced from a form state. Nil columns are left as stored.
type UserPatch struct {
	Name         *string
	Location     *string
	Gender       *string
	ProfilePhoto *string
	ProviderID   *string
	LastStep     Step
	Profile      Profile
}

// Patch maps the form state onto user record fields.
func (f FormState) Patch() UserPatch {
	p := UserPatch{LastStep: f.LastStep, Profile: Profile{}}

	if d := f.Details; d != nil {
		name, location, gender, photo := d.FullName, d.JobLocation, d.Gender, d.ProfilePhoto
		agency := strings.TrimSpace(d.Agency)
		if agency == "" {
			agency = DefaultAgency
		}
		p.Name, p.Location, p.Gender, p.ProfilePhoto, p.ProviderID = &name, &location, &gender, &photo, &agency
	}
	if w := f.Wages; w != nil {
		p.Profile["expectedWages"] = map[string]interface{}{
			"5hrs":  w.LessThan5Hours,
			"12hrs": w.Hours12,
			"24hrs": w.Hours24,
		}
	}
	if e := f.Education; e != nil {
		p.Profile["educationQualification"] = e.Qualification
		p.Profile["educationCertificate"] = e.Certificate
		p.Profile["experienceYears"] = e.ExperienceYears
		p.Profile["maritalStatus"] = e.MaritalStatus
		p.Profile["languagesKnown"] = orEmpty(e.Languages)
	}
	if s := f.Shifts; s != nil {
		p.Profile["preferredShifts"] = orEmpty(s.PreferredShifts)
	}
	if s := f.Skills; s != nil {
		p.Profile["jobRole"] = s.JobRole
		p.Profile["extraServicesOffered"] = orEmpty(s.Services)
	}
	if pi := f.Personal; pi != nil {
		p.Profile["foodPreference"] = pi.FoodPreference
		p.Profile["smokes"] = pi.Smoking
		p.Profile["carryOwnFood12hrs"] = pi.CarryFood
		p.Profile["additionalInfo"] = pi.AdditionalInfo
	}
	if t := f.Testimonial; t != nil {
		p.Profile["selfTestimonial"] = map[string]interface{}{
			"customerName":  t.CustomerName,
			"customerPhone": t.CustomerPhone,
			"recording":     t.Recording,
		}
	}
	if id := f.IDProof; id != nil {
		p.Profile["identityDocuments"] = map[string]interface{}{
			"aadharNumber": strings.ReplaceAll(strings.TrimSpace(id.AadharNumber), " ", ""),
			"aadharFront":  id.AadharFront,
			"aadharBack":   id.AadharBack,
			"panNumber":    strings.ToUpper(strings.TrimSpace(id.PanNumber)),
			"panDocument":  id.PanCard,
		}
	}
	return p
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// FormStateFromUser rebuilds the wizard state from a stored record so a
// partially onboarded identity resumes where it stopped.
func FormStateFromUser(u *User) FormState {
	var f FormState
	if u == nil {
		return f
	}
	f.LastStep = u.LastStep
	p := u.Profile

	if u.Name != "" || u.Location != "" || u.Gender != "" || u.ProfilePhoto != "" {
		agency := u.ProviderID
		f.Details = &Details{
			FullName:     u.Name,
			JobLocation:  u.Location,
			Gender:       u.Gender,
			ProfilePhoto: u.ProfilePhoto,
			Agency:       agency,
		}
	}
	if wages, ok := p.object("expectedWages"); ok {
		f.Wages = &Wages{
			LessThan5Hours: wages.num("5hrs"),
			Hours12:        wages.num("12hrs"),
			Hours24:        wages.num("24hrs"),
		}
	}
	if p.has("educationQualification") {
		f.Education = &Education{
			Qualification:   p.str("educationQualification"),
			Certificate:     p.str("educationCertificate"),
			ExperienceYears: p.num("experienceYears"),
			MaritalStatus:   p.str("maritalStatus"),
			Languages:       p.list("languagesKnown"),
		}
	}
	if p.has("preferredShifts") {
		f.Shifts = &Shifts{PreferredShifts: p.list("preferredShifts")}
	}
	if p.has("jobRole") {
		f.Skills = &Skills{JobRole: p.str("jobRole"), Services: p.list("extraServicesOffered")}
	}
	if p.has("foodPreference") {
		f.Personal = &Personal{
			FoodPreference: p.str("foodPreference"),
			Smoking:        p.str("smokes"),
			CarryFood:      p.str("carryOwnFood12hrs"),
			AdditionalInfo: p.str("additionalInfo"),
		}
	}
	if t, ok := p.object("selfTestimonial"); ok {
		f.Testimonial = &Testimonial{
			CustomerName:  t.str("customerName"),
			CustomerPhone: t.str("customerPhone"),
			Recording:     t.str("recording"),
		}
	}
	if docs, ok := p.object("identityDocuments"); ok {
		f.IDProof = &IDProof{
			AadharNumber: docs.str("aadharNumber"),
			AadharFront:  docs.str("aadharFront"),
			AadharBack:   docs.str("aadharBack"),
			PanNumber:    docs.str("panNumber"),
			PanCard:      docs.str("panDocument"),
		}
	}
	return f
}

// ResumeStep is the step a returning identity should land on.
func ResumeStep(u *User) Step {
	if u == nil || u.LastStep == "" {
		return StepDetails
	}
	if u.Status.Active() {
		return StepCompleted
	}
	if _, err := ParseStep(string(u.LastStep)); err != nil {
		return StepDetails
	}
	return u.LastStep
}

func (p Profile) has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Profile) str(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p Profile) num(key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func (p Profile) list(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func (p Profile) object(key string) (Profile, bool) {
	switch v := p[key].(type) {
	case map[string]interface{}:
		return Profile(v), true
	case Profile:
		return v, true
	default:
		return nil, false
	}
}
