// Package messaging defines the publisher contract used to forward execution
// records to a broker. Implementations live in the kafka and rabbitmq
// sub-packages.
package messaging

import (
	"context"
	"errors"
)

// HeaderContentType is the header carrying the body's media type.
const HeaderContentType = "content_type"

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("messaging: publisher closed")

type (
	// Publisher sends messages to a topic (kafka) or exchange (rabbitmq).
	// headers apply to every message; Message.Headers add per-message ones.
	Publisher interface {
		Publish(ctx context.Context, topicOrQueue, key string, headers map[string]string, message *Message) error
		PublishBatch(ctx context.Context, topicOrQueue, key string, headers map[string]string, messages []*Message) error
		Close() error
	}

	Message struct {
		Body    []byte
		Headers []Header
	}

	Header struct {
		Key   string
		Value []byte
	}
)

// MergeHeaders returns the common headers followed by the message headers,
// message headers winning on duplicate keys.
func MergeHeaders(common map[string]string, message *Message) map[string]string {
	merged := make(map[string]string, len(common)+len(message.Headers))
	for k, v := range common {
		merged[k] = v
	}
	for _, h := range message.Headers {
		merged[h.Key] = string(h.Value)
	}
	return merged
}
