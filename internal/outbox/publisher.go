package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-marketplace/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"github.com/sony/gobreaker"
)

// Store hands out unpublished records and marks the ones fn accepts.
type Store interface {
	ProcessOutbox(ctx context.Context, limit int, fn func(rec domain.OutboxRecord) error) (int, error)
}

type MessagePublisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store     Store
	rabbitPub MessagePublisher
	cb        *gobreaker.CircuitBreaker
	logger    observability.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewPublisher(store Store, rabbitPub MessagePublisher, logger observability.Logger, interval time.Duration, batchSize int) *Publisher {
	settings := gobreaker.Settings{
		Name:        "outbox-rabbit",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithField("breaker", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("circuit breaker state changed")
		},
	}
	return &Publisher{
		store:     store,
		rabbitPub: rabbitPub,
		cb:        gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Warn("outbox flush stopped early")
			}
		}
	}
}

// Flush publishes pending records until the outbox is drained or a publish
// fails. Records that failed stay NEW and are picked up by the next flush.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.store.ProcessOutbox(ctx, p.batchSize, func(rec domain.OutboxRecord) error {
			return p.publish(ctx, rec)
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < p.batchSize {
			return total, nil
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec domain.OutboxRecord) error {
	msg := rabbit.Message(rec)
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.rabbitPub.Publish(ctx, rec.EventType, msg)
	})
	if err != nil {
		observability.RabbitPublishRetries.Inc()
		return errors.Wrapf(err, "publish outbox record %s", rec.ID)
	}
	if !rec.CreatedAt.IsZero() {
		observability.OutboxLag.Set(p.now().Sub(rec.CreatedAt).Seconds())
	}
	return nil
}
