package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
)

type fakeConsumeChannel struct {
	deliveries chan amqp.Delivery
	qos        int
	queue      string
	qosErr     error
	consumeErr error
	closed     int
}

func (c *fakeConsumeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.qos = prefetchCount
	return c.qosErr
}

func (c *fakeConsumeChannel) ConsumeWithContext(_ context.Context, queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	c.queue = queue
	return c.deliveries, nil
}

func (c *fakeConsumeChannel) Close() error {
	c.closed++
	return nil
}

type ack struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	acks []ack
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.acks = append(a.acks, ack{tag: tag, acked: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.acks = append(a.acks, ack{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type ConsumerSuite struct {
	suite.Suite

	ctx      context.Context
	channel  *fakeConsumeChannel
	acker    *fakeAcknowledger
	consumer messaging.Consumer
}

func TestConsumerSuite(t *testing.T) {
	suite.Run(t, new(ConsumerSuite))
}

func (s *ConsumerSuite) SetupTest() {
	s.ctx = context.Background()
	s.channel = &fakeConsumeChannel{deliveries: make(chan amqp.Delivery, 4)}
	s.acker = &fakeAcknowledger{}

	consumer, err := NewRabbitMQConsumer(s.ctx, s.channel, "orders", 8)
	s.Require().NoError(err)
	s.consumer = consumer
}

func (s *ConsumerSuite) TestNew() {
	s.Equal(8, s.channel.qos)
	s.Equal("orders", s.channel.queue)

	scenarios := []struct {
		name    string
		queue   string
		channel *fakeConsumeChannel
	}{
		{name: "should reject empty queue", queue: "", channel: &fakeConsumeChannel{}},
		{name: "should wrap qos error", queue: "orders", channel: &fakeConsumeChannel{qosErr: errors.New("qos")}},
		{name: "should wrap consume error", queue: "orders", channel: &fakeConsumeChannel{consumeErr: errors.New("no queue")}},
	}
	for _, scenario := range scenarios {
		s.Run(scenario.name, func() {
			_, err := NewRabbitMQConsumer(s.ctx, scenario.channel, scenario.queue, 1)
			s.Error(err)
		})
	}
}

func (s *ConsumerSuite) TestFetch() {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.channel.deliveries <- amqp.Delivery{
		Acknowledger: s.acker,
		DeliveryTag:  3,
		RoutingKey:   "order.placed",
		MessageId:    "ord-1",
		ContentType:  "application/json",
		Timestamp:    at,
		Headers:      amqp.Table{"attempt": int32(2)},
		Body:         []byte(`{"id":"ord-1"}`),
	}

	d, err := s.consumer.Fetch(s.ctx)
	s.Require().NoError(err)
	s.Equal("order.placed", d.Topic)
	s.Equal("ord-1", d.Key)
	s.Equal("2", d.Headers["attempt"])
	s.Equal("application/json", d.Headers[messaging.HeaderContentType])
	s.Equal(at, d.Timestamp)

	s.Require().NoError(d.Ack(s.ctx))
	s.Equal([]ack{{tag: 3, acked: true}}, s.acker.acks)
}

func (s *ConsumerSuite) TestFetchDefaultsTopicToQueue() {
	s.channel.deliveries <- amqp.Delivery{Acknowledger: s.acker, DeliveryTag: 1}

	d, err := s.consumer.Fetch(s.ctx)
	s.Require().NoError(err)
	s.Equal("orders", d.Topic)

	s.Require().NoError(d.Nack(s.ctx, true))
	s.Equal([]ack{{tag: 1, requeue: true}}, s.acker.acks)
}

func (s *ConsumerSuite) TestFetchStops() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.consumer.Fetch(ctx)
	s.ErrorIs(err, context.Canceled)

	close(s.channel.deliveries)
	_, err = s.consumer.Fetch(s.ctx)
	s.ErrorIs(err, messaging.ErrConsumerClosed)
}

func (s *ConsumerSuite) TestClose() {
	s.Require().NoError(s.consumer.Close())
	s.Require().NoError(s.consumer.Close())
	s.Equal(1, s.channel.closed)
}
