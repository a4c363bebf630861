package messaging

import (
	"context"
	"errors"
	"time"
)

// HeaderAction names the action a delivery should be dispatched to when its
// topic has no explicit route.
const HeaderAction = "action"

// ErrConsumerClosed is returned by Fetch after Close or once the broker
// stopped delivering.
var ErrConsumerClosed = errors.New("messaging: consumer closed")

type (
	// Consumer pulls deliveries from a topic (kafka) or queue (rabbitmq).
	// Fetch blocks until a delivery is available or ctx is done and is safe
	// for concurrent use.
	Consumer interface {
		Fetch(ctx context.Context) (*Delivery, error)
		Close() error
	}

	// Acknowledger settles a delivery with the broker.
	Acknowledger interface {
		Ack(ctx context.Context) error
		// Nack rejects the delivery. requeue asks the broker to deliver it again.
		Nack(ctx context.Context, requeue bool) error
	}

	Delivery struct {
		Topic     string
		Key       string
		Body      []byte
		Headers   map[string]string
		Timestamp time.Time

		Acknowledger Acknowledger
	}
)

// Ack confirms the delivery. Deliveries without an acknowledger are no-ops.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.Acknowledger == nil {
		return nil
	}
	return d.Acknowledger.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, requeue bool) error {
	if d.Acknowledger == nil {
		return nil
	}
	return d.Acknowledger.Nack(ctx, requeue)
}
