package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	amqp "github.com/rabbitmq/amqp091-go"
	"sync"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher fans notification envelopes out to every bound queue.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
	service  string

	mu sync.Mutex
	ch channel
}

func Dial(url, exchange, service string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	p := &Publisher{conn: conn, exchange: exchange, service: service}
	if err := p.open(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) open() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.ch = ch
	return nil
}

func (p *Publisher) Send(ctx context.Context, n orders.Notification) error {
	ev, err := orders.NewEnvelope(p.service, n)
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		// the previous publish broke the channel; reopen for this attempt
		if err := p.open(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    ev.EventID,
		Type:         ev.EventType,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		_ = p.ch.Close()
		p.ch = nil
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
