package orders

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"time"
)

const (
	CancellationWarnAt = 3
	SuspensionPeriod   = 30 * 24 * time.Hour
)

type Penalty int

const (
	PenaltyNone Penalty = iota
	PenaltyWarning
	PenaltySuspended
)

// NextPenalty maps a customer's cancelled-order count (after the increment) to
// the action owed: a warning at exactly the threshold, a suspension above it.
func NextPenalty(cancelledCount int) Penalty {
	switch {
	case cancelledCount > CancellationWarnAt:
		return PenaltySuspended
	case cancelledCount == CancellationWarnAt:
		return PenaltyWarning
	default:
		return PenaltyNone
	}
}

func checkCancel(it *OrderItem, r ItemRequest) error {
	if r.Quantity != 0 && r.Quantity != it.Quantity {
		return &ValidationError{Field: "qty", Message: fmt.Sprintf("partial cancellation is not supported; use 0 or %d", it.Quantity)}
	}
	if !CanTransitionItem(it.Status, ItemCancelled) {
		return &ConflictError{Entity: "order item", ID: it.ID, Message: "cannot cancel while " + string(it.Status)}
	}
	return nil
}

// RequestCancellation cancels every valid item of the batch and restocks it.
// Same partial-success contract as RequestReturn.
func (s *Service) RequestCancellation(ctx context.Context, orderID, reason string, reqs []ItemRequest) (BatchResult, error) {
	if err := validateBatch(orderID, reason, reqs); err != nil {
		return BatchResult{}, err
	}
	return s.cancel(ctx, orderID, reason, func(Order) []ItemRequest { return reqs })
}

// CancelOrder cancels every item of the order that is still cancellable.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (BatchResult, error) {
	if orderID == "" {
		return BatchResult{}, &ValidationError{Field: "order_id", Message: "required"}
	}
	if reason == "" {
		return BatchResult{}, &ValidationError{Field: "reason", Message: "required"}
	}
	return s.cancel(ctx, orderID, reason, func(o Order) []ItemRequest {
		var reqs []ItemRequest
		for _, it := range o.Items {
			if !it.Status.Terminal() {
				reqs = append(reqs, ItemRequest{OrderItemID: it.ID})
			}
		}
		return reqs
	})
}

func (s *Service) cancel(ctx context.Context, orderID, reason string, pick func(Order) []ItemRequest) (BatchResult, error) {
	var (
		res       BatchResult
		restocked int
		penalty   Penalty
		box       = &outbox{s: s}
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		box.items = nil
		res = BatchResult{OrderID: orderID}
		restocked = 0
		penalty = PenaltyNone

		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		reqs := pick(o)
		if len(reqs) == 0 {
			return &ConflictError{Entity: "order", ID: o.ID, Message: "nothing left to cancel"}
		}
		now := s.now().UTC()
		seen := make(map[string]bool, len(reqs))
		for _, r := range reqs {
			it, err := batchItem(&o, seen, r)
			if err == nil {
				err = checkCancel(it, r)
			}
			if err != nil {
				res.Failures = append(res.Failures, ItemFailure{OrderItemID: r.OrderItemID, Err: err})
				continue
			}
			if err := s.cancelItem(ctx, tx, it, reason, now); err != nil {
				return err
			}
			restocked += it.Quantity
			res.Accepted = append(res.Accepted, it.ID)
		}
		if len(res.Accepted) == 0 {
			return &BatchError{Result: res}
		}

		prev := o.Status
		if err := s.settle(ctx, tx, &o, now); err != nil {
			return err
		}
		res.OrderStatus = o.Status
		box.add(o.CustomerID, KindItemsCancelled, o.ID, "Items cancelled",
			fmt.Sprintf("%d item(s) of order %s were cancelled.", len(res.Accepted), o.ID))

		if o.Status == StatusCancelled && prev != StatusCancelled {
			if penalty, err = s.penalize(ctx, tx, o.CustomerID, now, box); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.metrics.StockMoved("in", restocked)
		if penalty == PenaltySuspended {
			s.metrics.Suspension()
		}
	}
	return s.finishBatch(ctx, "cancellation", res, box, err)
}

func (s *Service) cancelItem(ctx context.Context, tx Tx, it *OrderItem, reason string, now time.Time) error {
	if err := s.restock(ctx, tx, *it, it.Quantity, CancelRestockPolicy); err != nil {
		return err
	}
	it.Status = ItemCancelled
	it.Reason = reason
	it.RequestedReturnQty = 0
	it.RequestedAt = nil
	it.ResolvedAt = timePtr(now)
	return tx.UpdateItem(ctx, *it)
}

// penalize counts one more cancelled order against the customer, then warns
// or suspends.
func (s *Service) penalize(ctx context.Context, tx Tx, customerID string, now time.Time, box *outbox) (Penalty, error) {
	c, err := tx.LockCustomer(ctx, customerID)
	if err != nil {
		return PenaltyNone, err
	}
	count := c.CancelledOrderCount + 1
	until := c.SuspendedUntil
	p := NextPenalty(count)
	switch p {
	case PenaltyWarning:
		box.add(c.ID, KindCancellationWarning, "", "Cancellation warning",
			fmt.Sprintf("You have cancelled %d orders. One more cancellation will suspend your account for 30 days.", count))
	case PenaltySuspended:
		until = timePtr(now.Add(SuspensionPeriod))
		box.add(c.ID, KindAccountSuspended, "", "Account suspended",
			fmt.Sprintf("Your account is suspended until %s after %d cancelled orders.", until.Format(time.RFC3339), count))
	}
	if err := tx.SaveCustomerPenalty(ctx, c.ID, count, until); err != nil {
		return PenaltyNone, err
	}
	if p != PenaltyNone {
		s.log.Info("cancellation penalty",
			zap.String("customer_id", c.ID),
			zap.Int("cancelled_orders", count),
			zap.Bool("suspended", p == PenaltySuspended))
	}
	return p, nil
}
