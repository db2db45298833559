package kafka

import (
	"context"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/segmentio/kafka-go"
	"strconv"
	"time"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes notifications as envelopes, keyed by user id. It writes
// synchronously; buffering and retries belong to the caller's dispatcher.
type Producer struct {
	w       messageWriter
	service string
}

func NewProducer(brokers []string, topic, service string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		service: service,
	}
}

func (p *Producer) Send(ctx context.Context, n orders.Notification) error {
	ev, err := orders.NewEnvelope(p.service, n)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   orders.PartitionKey(n.UserID),
		Value: MustMarshal(ev),
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(ev.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
		},
	})
}

func (p *Producer) Close() error { return p.w.Close() }
