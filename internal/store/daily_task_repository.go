package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

var ErrDailyTaskNotFound = errors.New("daily task record not found")

// PostgresDailyTaskRepository stores one jsonb document per (user, date).
type PostgresDailyTaskRepository struct {
	db *pgxpool.Pool
}

func NewPostgresDailyTaskRepository(db *pgxpool.Pool) *PostgresDailyTaskRepository {
	return &PostgresDailyTaskRepository{db: db}
}

func decodeDailyTask(raw string) (*domain.DailyTask, error) {
	task := domain.NewDailyTask()
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, fmt.Errorf("decode daily task: %w", err)
		}
	}
	task.Normalize()
	return &task, nil
}

func defaultDailyTaskJSON() (string, error) {
	blob, err := json.Marshal(domain.NewDailyTask())
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// GetDailyTask loads a record without creating it.
func (r *PostgresDailyTaskRepository) GetDailyTask(ctx context.Context, userID string, date time.Time) (*domain.DailyTask, error) {
	var raw string
	err := r.db.QueryRow(ctx, `
		SELECT data::text FROM daily_tasks WHERE user_id = $1 AND date = $2
	`, userID, domain.DateKey(date)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDailyTaskNotFound
		}
		return nil, err
	}
	return decodeDailyTask(raw)
}

// GetOrCreateDailyTask loads a record, inserting an empty one first if needed.
func (r *PostgresDailyTaskRepository) GetOrCreateDailyTask(ctx context.Context, userID string, date time.Time) (*domain.DailyTask, error) {
	defaults, err := defaultDailyTaskJSON()
	if err != nil {
		return nil, err
	}
	var raw string
	err = r.db.QueryRow(ctx, `
		INSERT INTO daily_tasks (user_id, date, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_id, date) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING data::text
	`, userID, domain.DateKey(date), defaults).Scan(&raw)
	if err != nil {
		return nil, err
	}
	return decodeDailyTask(raw)
}

// MergeDailyTaskFields merge-writes the given top-level fields. Fields not
// named keep their stored values.
func (r *PostgresDailyTaskRepository) MergeDailyTaskFields(
	ctx context.Context,
	userID string,
	date time.Time,
	fields map[string]json.RawMessage,
) (*domain.DailyTask, error) {
	defaults, err := defaultDailyTaskJSON()
	if err != nil {
		return nil, err
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var raw string
	err = r.db.QueryRow(ctx, `
		INSERT INTO daily_tasks (user_id, date, data)
		VALUES ($1, $2, $3::jsonb || $4::jsonb)
		ON CONFLICT (user_id, date) DO UPDATE
		SET data = daily_tasks.data || $4::jsonb,
		    updated_at = NOW()
		RETURNING data::text
	`, userID, domain.DateKey(date), defaults, string(patch)).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("merge daily task fields: %w", err)
	}
	return decodeDailyTask(raw)
}

// UpdateDailyTask runs fn against the locked record and writes the result
// back. The record is created first if it does not exist.
func (r *PostgresDailyTaskRepository) UpdateDailyTask(
	ctx context.Context,
	userID string,
	date time.Time,
	fn func(task *domain.DailyTask) error,
) (*domain.DailyTask, error) {
	defaults, err := defaultDailyTaskJSON()
	if err != nil {
		return nil, err
	}
	key := domain.DateKey(date)

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_tasks (user_id, date, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_id, date) DO NOTHING
	`, userID, key, defaults); err != nil {
		return nil, err
	}

	var raw string
	if err := tx.QueryRow(ctx, `
		SELECT data::text FROM daily_tasks WHERE user_id = $1 AND date = $2 FOR UPDATE
	`, userID, key).Scan(&raw); err != nil {
		return nil, err
	}
	task, err := decodeDailyTask(raw)
	if err != nil {
		return nil, err
	}

	if err := fn(task); err != nil {
		return nil, err
	}
	task.Normalize()

	blob, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE daily_tasks SET data = $3::jsonb, updated_at = NOW()
		WHERE user_id = $1 AND date = $2
	`, userID, key, string(blob)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return task, nil
}

// ListDailyTasks returns the stored records in [start, end] keyed by date.
func (r *PostgresDailyTaskRepository) ListDailyTasks(
	ctx context.Context,
	userID string,
	start, end time.Time,
) (map[string]domain.DailyTask, error) {
	rows, err := r.db.Query(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), data::text
		FROM daily_tasks
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`, userID, domain.DateKey(start), domain.DateKey(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]domain.DailyTask{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		task, err := decodeDailyTask(raw)
		if err != nil {
			return nil, err
		}
		out[key] = *task
	}
	return out, rows.Err()
}

// OpenShift is a record whose last clock-in has no clock-out.
type OpenShift struct {
	UserID    string
	Date      string
	ClockIns  int
	ClockOuts int
}

// ListOpenShifts finds records on date with more clock-ins than clock-outs.
func (r *PostgresDailyTaskRepository) ListOpenShifts(ctx context.Context, date time.Time) ([]OpenShift, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id,
		       to_char(date, 'YYYY-MM-DD'),
		       jsonb_array_length(COALESCE(data->'clockInTimes', '[]'::jsonb)),
		       jsonb_array_length(COALESCE(data->'clockOutTimes', '[]'::jsonb))
		FROM daily_tasks
		WHERE date = $1
		  AND jsonb_array_length(COALESCE(data->'clockInTimes', '[]'::jsonb))
		    > jsonb_array_length(COALESCE(data->'clockOutTimes', '[]'::jsonb))
	`, domain.DateKey(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shifts []OpenShift
	for rows.Next() {
		var s OpenShift
		if err := rows.Scan(&s.UserID, &s.Date, &s.ClockIns, &s.ClockOuts); err != nil {
			return nil, err
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}
