package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultTick      = time.Second
	defaultBatchSize = 100
)

// EventSource is the outbox side of the order ledger.
type EventSource interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// OutboxPoller publishes recorded order events. Delivery is at least once:
// an event that was published but not marked is sent again on the next tick.
type OutboxPoller struct {
	tick      time.Duration
	batchSize int
	source    EventSource
	publisher Publisher
	log       *zap.Logger
}

func NewOutboxPoller(source EventSource, publisher Publisher, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		tick:      defaultTick,
		batchSize: defaultBatchSize,
		source:    source,
		publisher: publisher,
		log:       log,
	}
}

// Run blocks until ctx is done.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents returns how many events were published and marked.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.source.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("failed to fetch outbox events", zap.Error(err))
		}
		return 0
	}

	done := 0
	for _, event := range events {
		if err := p.publisher.Publish(ctx, event); err != nil {
			p.log.Warn("failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err))
			// keep per-order ordering: later events wait for the next tick
			return done
		}
		if err := p.source.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Warn("failed to mark event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
			return done
		}
		done++
	}
	return done
}
