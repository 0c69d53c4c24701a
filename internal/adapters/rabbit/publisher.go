package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"go.opentelemetry.io/otel"
)

const (
	Exchange = "marketplace.events"
	AppID    = "marketplace"

	HeaderAggregateType = "aggregate_type"
	HeaderAggregateID   = "aggregate_id"
)

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// Message turns an outbox record into a persistent delivery routed by its
// event type. The dedupe key becomes the message id so consumers can drop
// redeliveries.
func Message(rec domain.OutboxRecord) amqp.Publishing {
	return amqp.Publishing{
		MessageId:    rec.DedupeKey,
		Type:         rec.EventType,
		AppId:        AppID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.CreatedAt,
		Headers: amqp.Table{
			HeaderAggregateType: rec.AggregateType,
			HeaderAggregateID:   rec.AggregateID.String(),
		},
		Body: rec.Payload,
	}
}

// Publish sends msg to the events exchange with the caller's trace context
// in its headers.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	msg.Headers = InjectTrace(ctx, msg.Headers)
	return p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// tableCarrier adapts amqp headers to the otel propagator.
type tableCarrier amqp.Table

func (c tableCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c tableCarrier) Set(key, value string) {
	c[key] = value
}

func (c tableCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectTrace copies the span context of ctx into headers, allocating them
// when nil.
func InjectTrace(ctx context.Context, headers amqp.Table) amqp.Table {
	if headers == nil {
		headers = amqp.Table{}
	}
	otel.GetTextMapPropagator().Inject(ctx, tableCarrier(headers))
	return headers
}

// ExtractTrace returns ctx carrying the span context found in headers.
func ExtractTrace(ctx context.Context, headers amqp.Table) context.Context {
	if headers == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, tableCarrier(headers))
}
