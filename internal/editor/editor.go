// Package editor keeps a local copy of one day's care log in sync with the
// portal. Switching days discards responses for the day left behind, and
// edits made while a day is still loading are held back until the fetched
// record has been applied.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vishwadoshi-19/zense-staff/pkg/portalclient"
)

var (
	ErrNoDate     = errors.New("no date selected")
	ErrSuperseded = errors.New("load superseded by a newer date selection")
)

// Backend is the part of the portal API the editor talks to.
type Backend interface {
	DailyTask(ctx context.Context, userID, date string) (portalclient.Record, error)
	UpdateField(ctx context.Context, date, field string, value json.RawMessage) error
}

// DailyLogEditor is the state behind the daily log screen.
type DailyLogEditor struct {
	backend Backend
	userID  string
	logger  *slog.Logger

	mu           sync.Mutex
	generation   uint64
	date         string
	loaded       bool
	record       portalclient.Record
	pending      map[string]json.RawMessage
	pendingOrder []string
}

func NewDailyLogEditor(backend Backend, userID string, logger *slog.Logger) *DailyLogEditor {
	return &DailyLogEditor{
		backend: backend,
		userID:  userID,
		logger:  logger,
		pending: map[string]json.RawMessage{},
	}
}

// SelectDate switches to date and loads it. When a later call supersedes
// this one before the fetch returns, the fetched record is dropped and
// ErrSuperseded is returned. Edits queued during the load are written once
// the record is in place.
func (e *DailyLogEditor) SelectDate(ctx context.Context, date string) error {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.date = date
	e.loaded = false
	e.record = nil
	e.pending = map[string]json.RawMessage{}
	e.pendingOrder = nil
	e.mu.Unlock()

	fetched, err := e.backend.DailyTask(ctx, e.userID, date)

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		e.logger.Debug("discarding stale daily log", "date", date, "generation", gen)
		return ErrSuperseded
	}
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("load %s: %w", date, err)
	}

	record := make(portalclient.Record, len(fetched)+len(e.pending))
	for k, v := range fetched {
		record[k] = v
	}
	flush := make([]string, len(e.pendingOrder))
	copy(flush, e.pendingOrder)
	values := e.pending
	for _, field := range flush {
		record[field] = values[field]
	}
	e.record = record
	e.pending = map[string]json.RawMessage{}
	e.pendingOrder = nil
	e.loaded = true
	e.mu.Unlock()

	var errs []error
	for _, field := range flush {
		if err := e.backend.UpdateField(ctx, date, field, values[field]); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", field, err))
		}
	}
	return errors.Join(errs...)
}

// Set changes field locally. Once the day has loaded the change is saved
// right away; before that it waits for the load to finish.
func (e *DailyLogEditor) Set(ctx context.Context, field string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}

	e.mu.Lock()
	if e.date == "" {
		e.mu.Unlock()
		return ErrNoDate
	}
	if !e.loaded {
		if _, queued := e.pending[field]; !queued {
			e.pendingOrder = append(e.pendingOrder, field)
		}
		e.pending[field] = raw
		e.mu.Unlock()
		return nil
	}
	e.record[field] = raw
	date := e.date
	e.mu.Unlock()

	return e.backend.UpdateField(ctx, date, field, raw)
}

// Date is the selected day.
func (e *DailyLogEditor) Date() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.date
}

// Loaded reports whether the selected day's record has arrived.
func (e *DailyLogEditor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Pending is the number of edits waiting for the load to finish.
func (e *DailyLogEditor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pendingOrder)
}

// Record returns a copy of the local record.
func (e *DailyLogEditor) Record() portalclient.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(portalclient.Record, len(e.record))
	for k, v := range e.record {
		out[k] = v
	}
	return out
}
