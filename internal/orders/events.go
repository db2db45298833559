package orders

import (
	"context"
	"encoding/json"
	"time"
)

// Kind classifies a notification for the sink and for the event type header.
type Kind string

const (
	KindCheckoutCompleted   Kind = "CheckoutCompleted"
	KindOrderAssigned       Kind = "OrderAssigned"
	KindReturnRequested     Kind = "ReturnRequested"
	KindReturnApproved      Kind = "ReturnApproved"
	KindReturnRejected      Kind = "ReturnRejected"
	KindItemsCancelled      Kind = "ItemsCancelled"
	KindStatusChanged       Kind = "OrderStatusChanged"
	KindCancellationWarning Kind = "CancellationWarning"
	KindAccountSuspended    Kind = "AccountSuspended"
	KindSupportAssigned     Kind = "SupportAssigned"
)

// Notification is what the engine hands to the sink after a commit.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	OrderID   string    `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier must not block; delivery failures stay on its side.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id when there is one
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps n; the event id is the notification id so consumers can dedup.
func NewEnvelope(producer string, n Notification) (Envelope, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       n.ID,
		EventType:     string(n.Kind),
		EventVersion:  EventVersion,
		OccurredAt:    n.CreatedAt.UTC(),
		Producer:      producer,
		CorrelationID: n.OrderID,
		Payload:       payload,
	}, nil
}
