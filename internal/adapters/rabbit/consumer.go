package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

// NewConsumer declares a durable queue bound to the events exchange with each
// of routingKeys.
func NewConsumer(conn *amqp.Connection, queue string, prefetch int, routingKeys ...string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	c := &Consumer{ch: ch, queue: queue}
	if err := c.setup(prefetch, routingKeys); err != nil {
		ch.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) setup(prefetch int, routingKeys []string) error {
	if err := c.ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return err
	}
	for _, key := range routingKeys {
		if err := c.ch.QueueBind(c.queue, key, Exchange, false, nil); err != nil {
			return err
		}
	}
	return c.ch.Qos(prefetch, 0, false)
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
