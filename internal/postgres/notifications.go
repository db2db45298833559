package postgres

import (
	"context"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// SaveNotification stores n once; a redelivered id reports false.
func (s *Store) SaveNotification(ctx context.Context, n orders.Notification) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Body, nullable(n.OrderID), n.CreatedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
