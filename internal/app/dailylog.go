package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

// DailyTaskStore persists daily logs.
type DailyTaskStore interface {
	GetOrCreateDailyTask(ctx context.Context, userID string, date time.Time) (*domain.DailyTask, error)
	MergeDailyTaskFields(ctx context.Context, userID string, date time.Time, fields map[string]json.RawMessage) (*domain.DailyTask, error)
	UpdateDailyTask(ctx context.Context, userID string, date time.Time, fn func(*domain.DailyTask) error) (*domain.DailyTask, error)
	ListDailyTasks(ctx context.Context, userID string, start, end time.Time) (map[string]domain.DailyTask, error)
}

// RangeEntry is one day of a range query. Data is nil when nothing was logged.
type RangeEntry struct {
	Date string            `json:"date"`
	Data *domain.DailyTask `json:"data"`
}

// DailyLogService reads and writes the per-day care log.
type DailyLogService struct {
	store        DailyTaskStore
	location     *time.Location
	rangeMaxDays int
	logger       *slog.Logger
	now          func() time.Time
}

func NewDailyLogService(store DailyTaskStore, location *time.Location, rangeMaxDays int, logger *slog.Logger) *DailyLogService {
	if location == nil {
		location = time.UTC
	}
	if rangeMaxDays <= 0 {
		rangeMaxDays = 93
	}
	return &DailyLogService{
		store:        store,
		location:     location,
		rangeMaxDays: rangeMaxDays,
		logger:       logger,
		now:          time.Now,
	}
}

// Get returns the record for dateKey, creating an empty one on first access.
func (s *DailyLogService) Get(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error) {
	date, err := domain.ParseDateKey(dateKey)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrCreateDailyTask(ctx, userID, date)
}

// UpdateField writes one field, leaving the rest of the record as stored.
func (s *DailyLogService) UpdateField(ctx context.Context, userID, dateKey, field string, value json.RawMessage) (*domain.DailyTask, error) {
	return s.Merge(ctx, userID, dateKey, map[string]json.RawMessage{field: value})
}

// Merge writes several fields at once. Every field must be editable and
// carry a value of the right shape, otherwise nothing is written.
func (s *DailyLogService) Merge(ctx context.Context, userID, dateKey string, fields map[string]json.RawMessage) (*domain.DailyTask, error) {
	date, err := domain.ParseDateKey(dateKey)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &InputError{Field: "data", Message: "no fields to write"}
	}

	clean := make(map[string]json.RawMessage, len(fields))
	for name, raw := range fields {
		normalized, err := normalizeField(name, raw)
		if err != nil {
			return nil, err
		}
		clean[name] = normalized
	}
	return s.store.MergeDailyTaskFields(ctx, userID, date, clean)
}

// normalizeField decodes raw into the field's type and re-encodes it, so
// stored documents never contain values of the wrong shape.
func normalizeField(name string, raw json.RawMessage) (json.RawMessage, error) {
	if !domain.EditableField(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	var target interface{}
	switch name {
	case domain.FieldTasks:
		v := []domain.Task{}
		target = &v
	case domain.FieldVitals:
		target = &domain.Vitals{}
	case domain.FieldDiet:
		target = &domain.Diet{}
	case domain.FieldActivities:
		v := []string{}
		target = &v
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, &InputError{Field: name, Message: "value is required"}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, &InputError{Field: name, Message: "value has the wrong shape"}
	}
	return json.Marshal(target)
}

func (s *DailyLogService) update(ctx context.Context, userID, dateKey string, fn func(*domain.DailyTask) error) (*domain.DailyTask, error) {
	date, err := domain.ParseDateKey(dateKey)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateDailyTask(ctx, userID, date, fn)
}

func (s *DailyLogService) clockLabel() string {
	return domain.ClockTime(s.now().In(s.location))
}

// ClockIn opens a shift at the current time.
func (s *DailyLogService) ClockIn(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error) {
	label := s.clockLabel()
	return s.update(ctx, userID, dateKey, func(task *domain.DailyTask) error {
		if task.OpenShift() {
			return ErrShiftAlreadyOpen
		}
		task.ClockInTimes = append(task.ClockInTimes, label)
		return nil
	})
}

// ClockOut closes the open shift at the current time.
func (s *DailyLogService) ClockOut(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error) {
	label := s.clockLabel()
	task, err := s.update(ctx, userID, dateKey, func(task *domain.DailyTask) error {
		if !task.OpenShift() {
			return ErrNoOpenShift
		}
		task.ClockOutTimes = append(task.ClockOutTimes, label)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("shift closed", "user_id", userID, "date", dateKey, "total_hours", task.TotalHours)
	return task, nil
}

// AddTask appends a care task to the day's list.
func (s *DailyLogService) AddTask(ctx context.Context, userID, dateKey, title, timeLabel string) (*domain.DailyTask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &InputError{Field: "title", Message: "title is required"}
	}
	return s.update(ctx, userID, dateKey, func(task *domain.DailyTask) error {
		task.Tasks = append(task.Tasks, domain.Task{
			ID:    uuid.NewString(),
			Title: title,
			Time:  strings.TrimSpace(timeLabel),
		})
		return nil
	})
}

// RecordMood appends a mood observation.
func (s *DailyLogService) RecordMood(ctx context.Context, userID, dateKey, rawMood string) (*domain.DailyTask, error) {
	mood, ok := domain.ParseMood(rawMood)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMood, rawMood)
	}
	label := s.clockLabel()
	return s.update(ctx, userID, dateKey, func(task *domain.DailyTask) error {
		task.MoodHistory = append(task.MoodHistory, domain.MoodEntry{Time: label, Mood: mood})
		return nil
	})
}

// RecordVitals replaces the current snapshot and appends it to the history.
func (s *DailyLogService) RecordVitals(ctx context.Context, userID, dateKey string, vitals domain.Vitals) (*domain.DailyTask, error) {
	if vitals == (domain.Vitals{}) {
		return nil, &InputError{Field: "vitals", Message: "at least one reading is required"}
	}
	label := s.clockLabel()
	return s.update(ctx, userID, dateKey, func(task *domain.DailyTask) error {
		task.Vitals = vitals
		task.VitalsHistory = append(task.VitalsHistory, domain.VitalsEntry{Time: label, Vitals: vitals})
		return nil
	})
}

// Range returns one entry per calendar day in [startKey, endKey], ascending.
func (s *DailyLogService) Range(ctx context.Context, userID, startKey, endKey string) ([]RangeEntry, error) {
	start, err := domain.ParseDateKey(startKey)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseDateKey(endKey)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, ErrInvalidRange
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > s.rangeMaxDays {
		return nil, &InputError{Field: "endDate", Message: fmt.Sprintf("range may cover at most %d days", s.rangeMaxDays)}
	}

	stored, err := s.store.ListDailyTasks(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list daily tasks: %w", err)
	}

	entries := make([]RangeEntry, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := domain.DateKey(d)
		entry := RangeEntry{Date: key}
		if task, ok := stored[key]; ok {
			task := task
			entry.Data = &task
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SeedSample overwrites the record for dateKey with demonstration content.
func (s *DailyLogService) SeedSample(ctx context.Context, userID, dateKey string) (*domain.DailyTask, error) {
	return s.update(ctx, userID, dateKey, func(task *domain.DailyTask) error {
		*task = sampleDailyTask()
		return nil
	})
}

func sampleDailyTask() domain.DailyTask {
	task := domain.NewDailyTask()
	task.Tasks = []domain.Task{
		{ID: uuid.NewString(), Title: "Morning medication", Time: "08:00 AM"},
		{ID: uuid.NewString(), Title: "Assist with breakfast", Time: "09:00 AM"},
		{ID: uuid.NewString(), Title: "Physiotherapy exercises", Time: "11:00 AM"},
		{ID: uuid.NewString(), Title: "Evening walk", Time: "05:30 PM"},
	}
	vitals := domain.Vitals{
		BloodPressure: "120/80",
		HeartRate:     "72",
		Temperature:   "98.6",
		OxygenLevel:   "98",
		BloodSugar:    "110",
	}
	task.Vitals = vitals
	task.VitalsHistory = []domain.VitalsEntry{{Time: "08:15 AM", Vitals: vitals}}
	task.ClockInTimes = []string{"08:00 AM"}
	task.ClockOutTimes = []string{"04:30 PM"}
	task.Diet = domain.Diet{Breakfast: true, Lunch: true}
	task.Activities = []string{"Reading", "Walking"}
	task.MoodHistory = []domain.MoodEntry{
		{Time: "09:00 AM", Mood: domain.MoodCalm},
		{Time: "02:00 PM", Mood: domain.MoodCheerful},
	}
	task.Normalize()
	return task
}
