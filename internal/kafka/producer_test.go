package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestProducerSend_WritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{w: w, service: "fulfillment-api"}
	n := orders.Notification{
		ID: "evt-1", UserID: "cust-1", Kind: orders.KindCheckoutCompleted,
		Title: "Order placed", OrderID: "ord-1",
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.Send(context.Background(), n))
	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, []byte("cust-1"), m.Key)
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
	assert.Equal(t, []byte("CheckoutCompleted"), m.Headers[0].Value)

	ev, err := DecodeEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, "ord-1", ev.CorrelationID)
	assert.Equal(t, "fulfillment-api", ev.Producer)

	got, err := UnwrapPayload[orders.Notification](ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestProducerSend_PropagatesWriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := &Producer{w: &fakeWriter{err: boom}, service: "x"}
	assert.ErrorIs(t, p.Send(context.Background(), orders.Notification{ID: "e", UserID: "u"}), boom)
}
