package orders

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"sort"
)

const adminCancelReason = "cancelled by administrator"

// BulkSetStatus moves every listed order to status in one transaction. Any
// missing order or illegal transition aborts the whole call. Cancelling
// restocks every item not already terminal; completing fulfils items still
// processing. Admin cancellations do not count against the customer.
func (s *Service) BulkSetStatus(ctx context.Context, orderIDs []string, status Status) ([]Order, error) {
	if !status.Known() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	switch status {
	case StatusShipping, StatusCompleted, StatusCancelled:
	default:
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("cannot set %q directly", status)}
	}
	if len(orderIDs) == 0 {
		return nil, &ValidationError{Field: "order_ids", Message: "at least one order is required"}
	}
	ids := make([]string, 0, len(orderIDs))
	seen := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		if id == "" {
			return nil, &ValidationError{Field: "order_ids", Message: "empty id"}
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	// fixed lock order across concurrent bulk calls
	sort.Strings(ids)

	var (
		out       []Order
		restocked int
		box       = &outbox{s: s}
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		box.items = nil
		out = out[:0]
		restocked = 0
		now := s.now().UTC()
		for _, id := range ids {
			o, err := tx.LockOrder(ctx, id)
			if err != nil {
				return err
			}
			if o.Status == status {
				out = append(out, o)
				continue
			}
			if !CanTransition(o.Status, status) {
				return &ConflictError{Entity: "order", ID: o.ID, Message: fmt.Sprintf("cannot move from %s to %s", o.Status, status)}
			}
			for i := range o.Items {
				it := &o.Items[i]
				switch {
				case status == StatusCancelled && !it.Status.Terminal():
					if !CanTransitionItem(it.Status, ItemCancelled) {
						return &ConflictError{Entity: "order item", ID: it.ID, Message: fmt.Sprintf("cannot cancel a %s item", it.Status)}
					}
					if err := s.cancelItem(ctx, tx, it, adminCancelReason, now); err != nil {
						return err
					}
					restocked += it.Quantity
				case status == StatusCompleted && it.Status == ItemProcessing:
					it.Status = ItemCompleted
					if err := tx.UpdateItem(ctx, *it); err != nil {
						return err
					}
				}
			}
			o.Status = status
			if err := s.settle(ctx, tx, &o, now); err != nil {
				return err
			}
			box.add(o.CustomerID, KindStatusChanged, o.ID, "Order "+string(o.Status),
				fmt.Sprintf("Your order %s is now %s.", o.ID, o.Status))
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("bulk status failed", zap.Strings("order_ids", ids), zap.String("status", string(status)), zap.Error(err))
		return nil, classify(err)
	}
	s.metrics.StockMoved("in", restocked)
	s.log.Info("bulk status applied", zap.Int("orders", len(out)), zap.String("status", string(status)))
	box.flush(ctx)
	return out, nil
}
