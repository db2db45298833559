package notify

import (
	"context"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"go.uber.org/zap"
)

// LogSink writes each notification as a structured log line. It is the
// transport when no broker is configured.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Send(_ context.Context, n orders.Notification) error {
	s.Log.Info("notification",
		zap.String("id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("kind", string(n.Kind)),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("order_id", n.OrderID))
	return nil
}
