package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/JailtonJunior94/actionflow/pkg/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConsumeChannel is the subset of *amqp.Channel used by the consumer.
type ConsumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type rabbitMQConsumer struct {
	channel    ConsumeChannel
	queue      string
	deliveries <-chan amqp.Delivery
	cancel     context.CancelFunc
	mu         sync.Mutex
	closed     bool
}

// NewRabbitMQConsumer starts a manual-ack consumer on queue, letting the
// broker push at most prefetch unacknowledged deliveries.
func NewRabbitMQConsumer(ctx context.Context, channel ConsumeChannel, queue string, prefetch int) (messaging.Consumer, error) {
	if queue == "" {
		return nil, fmt.Errorf("rabbitmq: queue cannot be empty")
	}
	if prefetch > 0 {
		if err := channel.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("rabbitmq: set qos: %w", err)
		}
	}

	consumeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	deliveries, err := channel.ConsumeWithContext(consumeCtx, queue, "", false, false, false, false, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("rabbitmq: consume %q: %w", queue, err)
	}

	return &rabbitMQConsumer{
		channel:    channel,
		queue:      queue,
		deliveries: deliveries,
		cancel:     cancel,
	}, nil
}

func (c *rabbitMQConsumer) Fetch(ctx context.Context) (*messaging.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return nil, messaging.ErrConsumerClosed
		}
		return toDelivery(c.queue, d), nil
	}
}

func toDelivery(queue string, d amqp.Delivery) *messaging.Delivery {
	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = fmt.Sprint(v)
	}
	if d.ContentType != "" {
		headers[messaging.HeaderContentType] = d.ContentType
	}

	topic := d.RoutingKey
	if topic == "" {
		topic = queue
	}

	return &messaging.Delivery{
		Topic:        topic,
		Key:          d.MessageId,
		Body:         d.Body,
		Headers:      headers,
		Timestamp:    d.Timestamp,
		Acknowledger: acknowledger{delivery: d},
	}
}

func (c *rabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	return c.channel.Close()
}

type acknowledger struct {
	delivery amqp.Delivery
}

func (a acknowledger) Ack(context.Context) error {
	if err := a.delivery.Ack(false); err != nil {
		return fmt.Errorf("rabbitmq: ack %d: %w", a.delivery.DeliveryTag, err)
	}
	return nil
}

func (a acknowledger) Nack(_ context.Context, requeue bool) error {
	if err := a.delivery.Nack(false, requeue); err != nil {
		return fmt.Errorf("rabbitmq: nack %d: %w", a.delivery.DeliveryTag, err)
	}
	return nil
}
