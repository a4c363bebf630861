// Package rabbitmq publishes messages with github.com/rabbitmq/amqp091-go.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type rabbitMQ struct {
	channel Channel
	mu      sync.Mutex
	closed  bool
}

// NewRabbitMQPublisher publishes to the exchange passed as topicOrQueue with
// key as routing key. An empty exchange routes to the queue named key.
func NewRabbitMQPublisher(channel Channel) messaging.Publisher {
	return &rabbitMQ{channel: channel}
}

func (r *rabbitMQ) Publish(ctx context.Context, topicOrQueue, key string, headers map[string]string, message *messaging.Message) error {
	return r.PublishBatch(ctx, topicOrQueue, key, headers, []*messaging.Message{message})
}

func (r *rabbitMQ) PublishBatch(ctx context.Context, topicOrQueue, key string, headers map[string]string, messages []*messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return messaging.ErrPublisherClosed
	}

	for _, message := range messages {
		if err := r.channel.PublishWithContext(ctx, topicOrQueue, key, false, false, publishing(headers, message)); err != nil {
			return fmt.Errorf("rabbitmq: publish to %q: %w", topicOrQueue, err)
		}
	}
	return nil
}

func publishing(headers map[string]string, message *messaging.Message) amqp.Publishing {
	merged := messaging.MergeHeaders(headers, message)
	msg := amqp.Publishing{
		Body:         message.Body,
		ContentType:  merged[messaging.HeaderContentType],
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{},
	}
	for k, v := range merged {
		msg.Headers[k] = v
	}
	return msg
}

func (r *rabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.channel.Close()
}
