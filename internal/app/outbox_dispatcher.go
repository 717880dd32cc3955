package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vishwadoshi-19/zense-staff/internal/store"
	"github.com/vishwadoshi-19/zense-staff/pkg/rabbitmq"
)

const (
	outboxBatch    = 50
	outboxInterval = 1200 * time.Millisecond
	outboxLease    = 2 * time.Minute
	maxRetryDelay  = 5 * time.Minute
)

// OutboxRepository leases and settles queued events.
type OutboxRepository interface {
	LeaseDue(ctx context.Context, limit int, lease time.Duration) ([]store.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
	Reschedule(ctx context.Context, id int64, delay time.Duration, reason string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// PublisherFactory opens a broker connection on demand.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher relays committed outbox rows to the broker. A publish
// failure drops the connection; the next event dials a fresh one.
type OutboxDispatcher struct {
	repo     OutboxRepository
	connect  PublisherFactory
	logger   *slog.Logger
	batch    int
	interval time.Duration
	lease    time.Duration

	publisher rabbitmq.Publisher
}

func NewOutboxDispatcher(repo OutboxRepository, connect PublisherFactory, logger *slog.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:     repo,
		connect:  connect,
		logger:   logger,
		batch:    outboxBatch,
		interval: outboxInterval,
		lease:    outboxLease,
	}
}

// Run polls the outbox until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	defer d.disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.interval):
		}
		if _, err := d.drain(ctx); err != nil {
			d.logger.Error("outbox drain failed", "error", err)
		}
	}
}

// drain relays one leased batch and reports how many events the broker took.
func (d *OutboxDispatcher) drain(ctx context.Context) (int, error) {
	events, err := d.repo.LeaseDue(ctx, d.batch, d.lease)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, ev := range events {
		var body interface{}
		if err := json.Unmarshal(ev.Body, &body); err != nil {
			d.logger.Error("outbox event is not valid JSON; parking it", "id", ev.ID, "routing_key", ev.RoutingKey, "error", err)
			if err := d.repo.MarkFailed(ctx, ev.ID, "undecodable payload: "+err.Error()); err != nil {
				d.logger.Error("outbox mark failed", "id", ev.ID, "error", err)
			}
			continue
		}
		if err := d.relay(ctx, ev, body); err != nil {
			delay := retryBackoff(ev.Attempt)
			d.logger.Warn("outbox publish failed", "id", ev.ID, "routing_key", ev.RoutingKey, "attempt", ev.Attempt, "retry_in", delay.String(), "error", err)
			if err := d.repo.Reschedule(ctx, ev.ID, delay, err.Error()); err != nil {
				d.logger.Error("outbox reschedule failed", "id", ev.ID, "error", err)
			}
			continue
		}
		if err := d.repo.MarkSent(ctx, ev.ID); err != nil {
			d.logger.Error("outbox settle failed", "id", ev.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (d *OutboxDispatcher) relay(ctx context.Context, ev store.OutboxEvent, body interface{}) error {
	if d.publisher == nil {
		p, err := d.connect()
		if err != nil {
			return err
		}
		d.publisher = p
	}
	if err := d.publisher.Publish(ctx, ev.Exchange, ev.RoutingKey, body); err != nil {
		d.disconnect()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) disconnect() {
	if d.publisher == nil {
		return
	}
	d.publisher.Close()
	d.publisher = nil
}

// retryBackoff doubles from one second per attempt up to maxRetryDelay.
func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		return time.Second
	}
	return min(time.Second<<min(attempt, 9), maxRetryDelay)
}
