package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-marketplace/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// RoutingKeys are the bindings the audit queue needs.
var RoutingKeys = []string{"order.*", "event.*"}

type Sink interface {
	Write(ctx context.Context, rec domain.AuditRecord) error
}

type Consumer struct {
	sink   Sink
	logger observability.Logger
	now    func() time.Time
}

func NewConsumer(sink Sink, logger observability.Logger) *Consumer {
	return &Consumer{sink: sink, logger: logger, now: time.Now}
}

// Run handles deliveries until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle acks d once it is stored. Sink failures requeue the message;
// messages that cannot be decoded are dropped.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	ctx, span := otel.Tracer("audit").Start(rabbit.ExtractTrace(ctx, d.Headers), "audit.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("message_id", d.MessageId))

	log := c.logger.WithField("message_id", d.MessageId).WithField("routing_key", d.RoutingKey)

	rec, err := c.decode(d)
	if err != nil {
		log.WithError(err).Warn("dropping undecodable audit message")
		observability.AuditRecords.WithLabelValues("dropped").Inc()
		if err := d.Nack(false, false); err != nil {
			log.WithError(err).Error("nack failed")
		}
		return
	}

	if err := c.sink.Write(ctx, rec); err != nil {
		log.WithError(err).Error("failed to store audit record")
		observability.AuditRecords.WithLabelValues("requeued").Inc()
		if err := d.Nack(false, true); err != nil {
			log.WithError(err).Error("nack failed")
		}
		return
	}

	observability.AuditRecords.WithLabelValues("stored").Inc()
	if err := d.Ack(false); err != nil {
		log.WithError(err).Error("ack failed")
	}
}

func (c *Consumer) decode(d amqp.Delivery) (domain.AuditRecord, error) {
	if d.MessageId == "" {
		return domain.AuditRecord{}, errors.New("message has no id")
	}
	var data map[string]interface{}
	if err := json.Unmarshal(d.Body, &data); err != nil {
		return domain.AuditRecord{}, errors.Wrap(err, "decode body")
	}

	action := d.Type
	if action == "" {
		action = d.RoutingKey
	}
	rec := domain.AuditRecord{
		MessageID:  d.MessageId,
		Action:     action,
		OccurredAt: d.Timestamp,
		ReceivedAt: c.now().UTC(),
		Data:       data,
	}
	switch action {
	case domain.EventTypeOrderPlaced:
		rec.ActorID, _ = data["buyer_id"].(string)
		rec.AggregateID, _ = data["order_id"].(string)
	case domain.EventTypeEventCreated:
		rec.ActorID, _ = data["organizer_id"].(string)
		rec.AggregateID, _ = data["event_id"].(string)
	}
	if rec.AggregateID == "" {
		rec.AggregateID, _ = d.Headers[rabbit.HeaderAggregateID].(string)
	}
	return rec, nil
}
