package orders

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"time"
)

func validateBatch(orderID, reason string, reqs []ItemRequest) error {
	if orderID == "" {
		return &ValidationError{Field: "order_id", Message: "required"}
	}
	if reason == "" {
		return &ValidationError{Field: "reason", Message: "required"}
	}
	if len(reqs) == 0 {
		return &ValidationError{Field: "items", Message: "at least one item is required"}
	}
	return nil
}

// batchItem resolves r against o. seen rejects an item listed twice in one batch.
func batchItem(o *Order, seen map[string]bool, r ItemRequest) (*OrderItem, error) {
	if r.OrderItemID == "" {
		return nil, &ValidationError{Field: "order_item_id", Message: "required"}
	}
	if seen[r.OrderItemID] {
		return nil, &ValidationError{Field: "order_item_id", Message: "listed more than once"}
	}
	seen[r.OrderItemID] = true
	it, ok := o.Item(r.OrderItemID)
	if !ok {
		return nil, &NotFoundError{Entity: "order item", ID: r.OrderItemID}
	}
	return it, nil
}

// settle recomputes the derived order status and stamps the order.
func (s *Service) settle(ctx context.Context, tx Tx, o *Order, now time.Time) error {
	o.Status = DeriveStatus(o.Status, o.Items)
	o.UpdatedAt = now
	return tx.UpdateOrderStatus(ctx, o.ID, o.Status, now)
}

// finishBatch sends the outbox for committed batches and shapes the result.
func (s *Service) finishBatch(ctx context.Context, op string, res BatchResult, box *outbox, err error) (BatchResult, error) {
	if err != nil {
		s.log.Warn(op+" batch failed", zap.String("order_id", res.OrderID), zap.Error(err))
		return res, classify(err)
	}
	box.flush(ctx)
	s.log.Info(op+" batch applied",
		zap.String("order_id", res.OrderID),
		zap.Int("accepted", len(res.Accepted)),
		zap.Int("failed", len(res.Failures)),
		zap.String("order_status", string(res.OrderStatus)))
	if len(res.Failures) > 0 {
		return res, &BatchError{Result: res}
	}
	return res, nil
}

func checkReturn(it *OrderItem, r ItemRequest) error {
	if r.Quantity <= 0 {
		return &ValidationError{Field: "qty", Message: "must be positive"}
	}
	if r.Quantity > it.Quantity {
		return &ValidationError{Field: "qty", Message: fmt.Sprintf("exceeds purchased quantity %d", it.Quantity)}
	}
	if !CanTransitionItem(it.Status, ItemReturnedRequested) {
		return &ConflictError{Entity: "order item", ID: it.ID, Message: "cannot request return while " + string(it.Status)}
	}
	return nil
}

// RequestReturn moves every valid item of the batch to returned-requested.
// Invalid items are reported per item; the call fails only when none is valid.
func (s *Service) RequestReturn(ctx context.Context, orderID, reason string, reqs []ItemRequest) (BatchResult, error) {
	if err := validateBatch(orderID, reason, reqs); err != nil {
		return BatchResult{}, err
	}
	var (
		res BatchResult
		box = &outbox{s: s}
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		box.items = nil
		res = BatchResult{OrderID: orderID}
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		seen := make(map[string]bool, len(reqs))
		for _, r := range reqs {
			it, err := batchItem(&o, seen, r)
			if err == nil {
				err = checkReturn(it, r)
			}
			if err != nil {
				res.Failures = append(res.Failures, ItemFailure{OrderItemID: r.OrderItemID, Err: err})
				continue
			}
			it.Status = ItemReturnedRequested
			it.Reason = reason
			it.RequestedReturnQty = r.Quantity
			it.RequestedAt = timePtr(now)
			it.RejectionReason = ""
			it.ResolvedAt = nil
			if err := tx.UpdateItem(ctx, *it); err != nil {
				return err
			}
			res.Accepted = append(res.Accepted, it.ID)
		}
		if len(res.Accepted) == 0 {
			return &BatchError{Result: res}
		}
		if err := s.settle(ctx, tx, &o, now); err != nil {
			return err
		}
		res.OrderStatus = o.Status

		box.add(o.CustomerID, KindReturnRequested, o.ID, "Return requested",
			fmt.Sprintf("We received your return request for %d item(s) of order %s.", len(res.Accepted), o.ID))
		box.add(o.HandlerID, KindReturnRequested, o.ID, "Return to review",
			fmt.Sprintf("Order %s has %d item(s) waiting for a return decision.", o.ID, len(res.Accepted)))
		return nil
	})
	return s.finishBatch(ctx, "return", res, box, err)
}

// ResolveReturn approves or rejects one pending return. Approval restocks the
// returned quantity; rejection puts the item back to completed.
func (s *Service) ResolveReturn(ctx context.Context, itemID string, approve bool, reason string) (Order, error) {
	if itemID == "" {
		return Order{}, &ValidationError{Field: "order_item_id", Message: "required"}
	}
	if !approve && reason == "" {
		return Order{}, &ValidationError{Field: "reason", Message: "required when rejecting"}
	}
	var (
		order    Order
		restored int
		box      = &outbox{s: s}
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		box.items = nil
		restored = 0
		orderID, err := tx.OrderIDForItem(ctx, itemID)
		if err != nil {
			return err
		}
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		it, ok := o.Item(itemID)
		if !ok {
			return &NotFoundError{Entity: "order item", ID: itemID}
		}
		if it.Status != ItemReturnedRequested {
			return &ConflictError{Entity: "order item", ID: it.ID, Message: "no pending return (status " + string(it.Status) + ")"}
		}
		now := s.now().UTC()

		if approve {
			qty := it.RequestedReturnQty
			if qty <= 0 {
				qty = it.Quantity
			}
			if err := s.restock(ctx, tx, *it, qty, ReturnRestockPolicy); err != nil {
				return err
			}
			restored = qty
			it.Status = ItemReturned
			it.ResolvedAt = timePtr(now)
			box.add(o.CustomerID, KindReturnApproved, o.ID, "Return approved",
				fmt.Sprintf("Your return of %d unit(s) from order %s was approved.", qty, o.ID))
		} else {
			rejectReturn(it, reason, now)
			box.add(o.CustomerID, KindReturnRejected, o.ID, "Return rejected",
				fmt.Sprintf("Your return request for order %s was rejected: %s", o.ID, reason))
		}
		if err := tx.UpdateItem(ctx, *it); err != nil {
			return err
		}
		if err := s.settle(ctx, tx, &o, now); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		s.log.Warn("resolve return failed", zap.String("order_item_id", itemID), zap.Error(err))
		return Order{}, classify(err)
	}
	if restored > 0 {
		s.metrics.StockMoved("in", restored)
	}
	s.log.Info("return resolved",
		zap.String("order_id", order.ID),
		zap.String("order_item_id", itemID),
		zap.Bool("approved", approve))
	box.flush(ctx)
	return order, nil
}

func rejectReturn(it *OrderItem, reason string, now time.Time) {
	it.Status = ItemCompleted
	it.RejectionReason = reason
	it.Reason = ""
	it.RequestedReturnQty = 0
	it.RequestedAt = nil
	it.ResolvedAt = timePtr(now)
}

// RejectReturns rejects every pending return of the order at once and marks
// the order reject-return.
func (s *Service) RejectReturns(ctx context.Context, orderID, reason string) (Order, error) {
	if orderID == "" {
		return Order{}, &ValidationError{Field: "order_id", Message: "required"}
	}
	if reason == "" {
		return Order{}, &ValidationError{Field: "reason", Message: "required"}
	}
	var (
		order Order
		box   = &outbox{s: s}
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		box.items = nil
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		n := 0
		for i := range o.Items {
			it := &o.Items[i]
			if it.Status != ItemReturnedRequested {
				continue
			}
			rejectReturn(it, reason, now)
			if err := tx.UpdateItem(ctx, *it); err != nil {
				return err
			}
			n++
		}
		if n == 0 {
			return &ConflictError{Entity: "order", ID: o.ID, Message: "no pending returns"}
		}
		o.Status = StatusRejectReturn
		if err := s.settle(ctx, tx, &o, now); err != nil {
			return err
		}
		box.add(o.CustomerID, KindReturnRejected, o.ID, "Return rejected",
			fmt.Sprintf("Your return request for order %s was rejected: %s", o.ID, reason))
		order = o
		return nil
	})
	if err != nil {
		s.log.Warn("reject returns failed", zap.String("order_id", orderID), zap.Error(err))
		return Order{}, classify(err)
	}
	box.flush(ctx)
	return order, nil
}
