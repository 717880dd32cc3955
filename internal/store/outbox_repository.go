package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox row states.
const (
	outboxQueued = "queued"
	outboxLeased = "leased"
	outboxSent   = "sent"
	outboxFailed = "failed"
)

const maxOutboxErrorLen = 2000

// OutboxEvent is a committed event waiting for the broker.
type OutboxEvent struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Body       json.RawMessage
	Attempt    int
}

// PostgresOutboxRepository leases, settles and prunes event_outbox rows.
type PostgresOutboxRepository struct {
	db *pgxpool.Pool
}

func NewPostgresOutboxRepository(db *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

// leaseDueSQL takes queued rows that are due plus leased rows whose lease ran
// out, oldest first. Concurrent dispatchers skip each other's locked rows.
const leaseDueSQL = `
UPDATE event_outbox
   SET status = '` + outboxLeased + `',
       leased_until = NOW() + make_interval(secs => $2),
       attempts = attempts + 1
 WHERE id IN (
       SELECT id FROM event_outbox
        WHERE (status = '` + outboxQueued + `' AND next_attempt_at <= NOW())
           OR (status = '` + outboxLeased + `' AND leased_until < NOW())
        ORDER BY id
        LIMIT $1
        FOR UPDATE SKIP LOCKED)
RETURNING id, exchange, routing_key, payload::text, attempts`

// LeaseDue hands out up to limit events for publishing. Each one stays
// leased for lease; an event that is neither sent nor rescheduled by then
// becomes due again.
func (r *PostgresOutboxRepository) LeaseDue(ctx context.Context, limit int, lease time.Duration) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if lease < time.Second {
		lease = 2 * time.Minute
	}

	rows, err := r.db.Query(ctx, leaseDueSQL, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("lease outbox events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxEvent, error) {
		var (
			ev   OutboxEvent
			body string
		)
		err := row.Scan(&ev.ID, &ev.Exchange, &ev.RoutingKey, &body, &ev.Attempt)
		ev.Body = json.RawMessage(body)
		return ev, err
	})
}

// MarkSent settles an event the broker accepted.
func (r *PostgresOutboxRepository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE event_outbox SET status = $2, sent_at = NOW(), leased_until = NULL, last_error = NULL WHERE id = $1`,
		id, outboxSent)
	return err
}

// Reschedule returns an event to the queue, due again after delay.
func (r *PostgresOutboxRepository) Reschedule(ctx context.Context, id int64, delay time.Duration, reason string) error {
	delay = max(delay, time.Second)
	if len(reason) > maxOutboxErrorLen {
		reason = reason[:maxOutboxErrorLen]
	}
	_, err := r.db.Exec(ctx,
		`UPDATE event_outbox
		    SET status = $2, next_attempt_at = NOW() + make_interval(secs => $3), leased_until = NULL, last_error = $4
		  WHERE id = $1`,
		id, outboxQueued, delay.Seconds(), reason)
	return err
}

// MarkFailed parks an event that can never be published. Failed rows are
// not leased again and are kept for inspection.
func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	if len(reason) > maxOutboxErrorLen {
		reason = reason[:maxOutboxErrorLen]
	}
	_, err := r.db.Exec(ctx,
		`UPDATE event_outbox SET status = $2, leased_until = NULL, last_error = $3 WHERE id = $1`,
		id, outboxFailed, reason)
	return err
}

// PruneSent deletes sent events older than olderThan, never less than an hour.
func (r *PostgresOutboxRepository) PruneSent(ctx context.Context, olderThan time.Duration) (int64, error) {
	olderThan = max(olderThan, time.Hour)
	tag, err := r.db.Exec(ctx,
		`DELETE FROM event_outbox WHERE status = $1 AND sent_at < NOW() - make_interval(secs => $2)`,
		outboxSent, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

// appendOutbox queues an event inside tx so it commits with the change it describes.
func appendOutbox(ctx context.Context, tx pgx.Tx, exchange, routingKey string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO event_outbox (exchange, routing_key, payload) VALUES ($1, $2, $3::jsonb)`,
		strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(body),
	); err != nil {
		return fmt.Errorf("queue %s event: %w", routingKey, err)
	}
	return nil
}
