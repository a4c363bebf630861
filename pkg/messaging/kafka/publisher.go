// Package kafka publishes messages with github.com/segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/messaging"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type publisher struct {
	writer Writer
	mu     sync.RWMutex
	closed bool
}

// NewPublisher publishes through w. Topics are set per message, so w must not
// have a fixed Topic.
func NewPublisher(w Writer) messaging.Publisher {
	return &publisher{writer: w}
}

// NewWriter builds a writer for brokers that hashes keys to partitions and
// waits for every in-sync replica.
func NewWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (p *publisher) Publish(ctx context.Context, topicOrQueue, key string, headers map[string]string, message *messaging.Message) error {
	return p.PublishBatch(ctx, topicOrQueue, key, headers, []*messaging.Message{message})
}

func (p *publisher) PublishBatch(ctx context.Context, topicOrQueue, key string, headers map[string]string, messages []*messaging.Message) error {
	if topicOrQueue == "" {
		return errors.New("kafka: topic cannot be empty")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return messaging.ErrPublisherClosed
	}

	batch := make([]kafka.Message, 0, len(messages))
	for _, message := range messages {
		msg := kafka.Message{
			Topic: topicOrQueue,
			Key:   []byte(key),
			Value: message.Body,
		}
		for k, v := range messaging.MergeHeaders(headers, message) {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		batch = append(batch, msg)
	}

	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", topicOrQueue, err)
	}
	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
