package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"sort"
	"time"
)

var hundred = decimal.NewFromInt(100)

// Discount returns what v takes off subtotal at now.
func (v Voucher) Discount(subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if v.ExpiresAt != nil && !now.Before(*v.ExpiresAt) {
		return decimal.Zero, &ConflictError{Entity: "voucher", ID: v.Code, Message: "expired"}
	}
	if v.UsageLimit > 0 && v.UsedCount >= v.UsageLimit {
		return decimal.Zero, &ConflictError{Entity: "voucher", ID: v.Code, Message: "usage limit reached"}
	}
	if subtotal.LessThan(v.MinTotal) {
		return decimal.Zero, &ValidationError{Field: "voucher_code", Message: fmt.Sprintf("order total below minimum %s", v.MinTotal)}
	}
	d := subtotal.Mul(v.PercentOff).Div(hundred).Round(2)
	if v.MaxDiscount.IsPositive() && d.GreaterThan(v.MaxDiscount) {
		d = v.MaxDiscount
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	return d, nil
}

// mergeLines validates the cart and folds repeated variants into one line,
// keeping first-seen order.
func mergeLines(req CheckoutRequest) ([]CartLine, error) {
	if req.CustomerID == "" {
		return nil, &ValidationError{Field: "customer_id", Message: "required"}
	}
	if len(req.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Message: "cart is empty"}
	}
	if !req.PaymentMethod.Valid() {
		return nil, &ValidationError{Field: "payment_method", Message: fmt.Sprintf("unsupported %q", req.PaymentMethod)}
	}
	idx := make(map[string]int, len(req.Lines))
	out := make([]CartLine, 0, len(req.Lines))
	for i, l := range req.Lines {
		if l.VariantID == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].variant_id", i), Message: "required"}
		}
		if l.Quantity <= 0 {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].qty", i), Message: "must be positive"}
		}
		if j, ok := idx[l.VariantID]; ok {
			out[j].Quantity += l.Quantity
			continue
		}
		idx[l.VariantID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

// Checkout turns a cart into an order. Stock consumption for every line, the
// voucher usage, handler assignment and the order insert commit together or
// not at all. The bool reports a replay of an earlier checkout with the same
// external id.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (Order, bool, error) {
	lines, err := mergeLines(req)
	if err != nil {
		s.metrics.CheckoutOutcome("invalid")
		return Order{}, false, err
	}

	var (
		order   Order
		existed bool
		box     = &outbox{s: s}
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		box.items = nil
		existed = false

		// The customer row lock serializes checkouts sharing an external id,
		// so the lookup below sees any order a concurrent duplicate committed.
		cust, err := tx.LockCustomer(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if req.ExternalID != "" {
			prev, err := tx.OrderByExternalID(ctx, req.CustomerID, req.ExternalID)
			if err == nil {
				order, existed = prev, true
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		now := s.now().UTC()
		if cust.SuspendedAt(now) {
			return &ConflictError{Entity: "customer", ID: cust.ID, Message: "account suspended until " + cust.SuspendedUntil.UTC().Format(time.RFC3339)}
		}
		if cust.Address == nil {
			return &ValidationError{Field: "shipping_address", Message: "customer has no address on file"}
		}

		order = Order{
			ID:              s.newID(),
			ExternalID:      req.ExternalID,
			CustomerID:      cust.ID,
			Status:          StatusProcessing,
			PaymentMethod:   req.PaymentMethod,
			ShippingAddress: *cust.Address,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if order.Items, err = s.consumeLines(ctx, tx, order.ID, lines); err != nil {
			return err
		}

		order.Subtotal = decimal.Zero
		for _, it := range order.Items {
			order.Subtotal = order.Subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		order.Discount = decimal.Zero
		if req.VoucherCode != "" {
			v, err := tx.LockVoucher(ctx, req.VoucherCode)
			if err != nil {
				return err
			}
			if order.Discount, err = v.Discount(order.Subtotal, now); err != nil {
				return err
			}
			if err := tx.MarkVoucherUsed(ctx, v.ID); err != nil {
				return err
			}
			order.VoucherIDs = []string{v.ID}
		}
		order.Total = order.Subtotal.Sub(order.Discount)

		pool, err := s.staffPool(ctx, tx, staff.CapabilityOrders)
		if err != nil {
			return err
		}
		handler, err := s.balancer.Assign(ctx, staff.CapabilityOrders, pool, tx)
		if errors.Is(err, staff.ErrNoneAvailable) {
			return fmt.Errorf("%w: order handling", ErrNoHandlerAvailable)
		}
		if err != nil {
			return err
		}
		order.HandlerID = handler.ID

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		box.add(order.CustomerID, KindCheckoutCompleted, order.ID, "Order placed",
			fmt.Sprintf("Your order %s for %s has been placed.", order.ID, order.Total.StringFixed(2)))
		box.add(handler.ID, KindOrderAssigned, order.ID, "New order assigned",
			fmt.Sprintf("Order %s with %d item(s) was assigned to you.", order.ID, len(order.Items)))
		return nil
	})
	if err != nil {
		s.metrics.CheckoutOutcome(checkoutOutcome(err))
		s.log.Warn("checkout failed",
			zap.String("customer_id", req.CustomerID),
			zap.String("external_id", req.ExternalID),
			zap.Error(err))
		return Order{}, false, classify(err)
	}
	if existed {
		s.metrics.CheckoutOutcome("replayed")
		return order, true, nil
	}

	units := 0
	for _, it := range order.Items {
		units += it.Quantity
	}
	s.metrics.CheckoutOutcome("completed")
	s.metrics.StockMoved("out", units)
	s.log.Info("checkout completed",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.String("handler_id", order.HandlerID),
		zap.String("total", order.Total.StringFixed(2)))
	box.flush(ctx)
	return order, false, nil
}

// consumeLines resolves prices and draws stock for every line. Variants are
// locked in id order so two carts sharing variants cannot deadlock; the items
// keep cart order.
func (s *Service) consumeLines(ctx context.Context, tx Tx, orderID string, lines []CartLine) ([]OrderItem, error) {
	items := make([]OrderItem, len(lines))
	for i, l := range lines {
		v, err := tx.Variant(ctx, l.VariantID)
		if err != nil {
			return nil, err
		}
		items[i] = OrderItem{
			ID:        s.newID(),
			OrderID:   orderID,
			ProductID: v.ProductID,
			VariantID: v.ID,
			Quantity:  l.Quantity,
			UnitPrice: v.UnitPrice,
			Status:    ItemProcessing,
		}
	}

	byVariant := make([]int, len(items))
	for i := range byVariant {
		byVariant[i] = i
	}
	sort.Slice(byVariant, func(a, b int) bool { return items[byVariant[a]].VariantID < items[byVariant[b]].VariantID })

	for _, i := range byVariant {
		c, err := s.ledger.Consume(ctx, tx, items[i].VariantID, items[i].Quantity)
		if err != nil {
			return nil, err
		}
		items[i].Allocations = c.Takes
		items[i].Cost = inventory.WeightedCost(c)
	}
	return items, nil
}

func checkoutOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNoHandlerAvailable):
		return "no_handler"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return "rejected"
	default:
		return "error"
	}
}
