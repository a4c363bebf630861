package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JailtonJunior94/actionflow/pkg/history"
	"github.com/JailtonJunior94/actionflow/pkg/messaging"
)

type storeSink struct {
	store history.Store
}

// StoreSink saves records to store.
func StoreSink(store history.Store) Sink {
	return &storeSink{store: store}
}

func (s *storeSink) Name() string { return "store" }

func (s *storeSink) Write(ctx context.Context, e history.Execution) error {
	return s.store.Save(ctx, e)
}

type publisherSink struct {
	publisher messaging.Publisher
	topic     string
}

// PublisherSink publishes records as JSON to topic, keyed by action so that
// records of one action keep their order on partitioned brokers.
func PublisherSink(p messaging.Publisher, topic string) Sink {
	return &publisherSink{publisher: p, topic: topic}
}

func (s *publisherSink) Name() string { return "publisher:" + s.topic }

func (s *publisherSink) Write(ctx context.Context, e history.Execution) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode execution %s: %w", e.ID, err)
	}

	headers := map[string]string{
		messaging.HeaderContentType: "application/json",
		"registry":                  e.Registry,
		"outcome":                   e.Outcome,
	}
	return s.publisher.Publish(ctx, s.topic, e.Action, headers, &messaging.Message{Body: body})
}
