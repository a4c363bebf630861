package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/JailtonJunior94/actionflow/pkg/messaging"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader used by the consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type consumer struct {
	reader Reader
	mu     sync.RWMutex
	closed bool
}

// NewConsumer consumes through r. Offsets are committed explicitly on Ack, so
// r must not auto-commit.
func NewConsumer(r Reader) messaging.Consumer {
	return &consumer{reader: r}
}

// NewReader builds a consumer-group reader for topics with explicit commits.
func NewReader(brokers []string, groupID string, topics ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

func (c *consumer) Fetch(ctx context.Context) (*messaging.Delivery, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, messaging.ErrConsumerClosed
	}

	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, messaging.ErrConsumerClosed
		}
		return nil, fmt.Errorf("kafka: fetch message: %w", err)
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &messaging.Delivery{
		Topic:        msg.Topic,
		Key:          string(msg.Key),
		Body:         msg.Value,
		Headers:      headers,
		Timestamp:    msg.Time,
		Acknowledger: &acknowledger{reader: c.reader, msg: msg},
	}, nil
}

func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("kafka: close reader: %w", err)
	}
	return nil
}

type acknowledger struct {
	reader Reader
	msg    kafka.Message
}

func (a *acknowledger) Ack(ctx context.Context) error {
	if err := a.reader.CommitMessages(ctx, a.msg); err != nil {
		return fmt.Errorf("kafka: commit offset %d of %s/%d: %w", a.msg.Offset, a.msg.Topic, a.msg.Partition, err)
	}
	return nil
}

// Nack without requeue commits past the message so it is not redelivered.
// With requeue the offset is left uncommitted and the message is delivered
// again after the next rebalance.
func (a *acknowledger) Nack(ctx context.Context, requeue bool) error {
	if requeue {
		return nil
	}
	return a.Ack(ctx)
}
