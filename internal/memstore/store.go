// Package memstore is a process-local implementation of the order and lot
// stores. Every transaction runs under one mutex against a private copy of the
// state that replaces the live state only on commit.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"sort"
	"sync"
	"time"
)

type state struct {
	lots      map[string]inventory.Lot
	variants  map[string]orders.Variant
	customers map[string]orders.Customer
	vouchers  map[string]orders.Voucher // by code
	staff     map[string]staff.Member
	orders    map[string]orders.Order
	itemOrder map[string]string
	support   map[string]orders.SupportAssignment
}

func newState() *state {
	return &state{
		lots:      map[string]inventory.Lot{},
		variants:  map[string]orders.Variant{},
		customers: map[string]orders.Customer{},
		vouchers:  map[string]orders.Voucher{},
		staff:     map[string]staff.Member{},
		orders:    map[string]orders.Order{},
		itemOrder: map[string]string{},
		support:   map[string]orders.SupportAssignment{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.lots {
		c.lots[k] = v
	}
	for k, v := range st.variants {
		c.variants[k] = v
	}
	for k, v := range st.customers {
		c.customers[k] = v
	}
	for k, v := range st.vouchers {
		c.vouchers[k] = v
	}
	for k, v := range st.staff {
		c.staff[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range st.itemOrder {
		c.itemOrder[k] = v
	}
	for k, v := range st.support {
		c.support[k] = v
	}
	return c
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	for i := range o.Items {
		o.Items[i].Allocations = append([]inventory.Take(nil), o.Items[i].Allocations...)
	}
	o.VoucherIDs = append([]string(nil), o.VoucherIDs...)
	return o
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) WithinLotTx(ctx context.Context, fn func(ctx context.Context, lots inventory.LotStore) error) error {
	return s.WithinTx(ctx, func(ctx context.Context, t orders.Tx) error {
		return fn(ctx, t)
	})
}

// ReadLots returns the variant's lots oldest first without opening a transaction.
func (s *Store) ReadLots(_ context.Context, variantID string) ([]inventory.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.variants[variantID]; !ok {
		return nil, fmt.Errorf("variant %s: %w", variantID, inventory.ErrUnknownVariant)
	}
	return (&tx{st: s.st}).LockLots(context.Background(), variantID)
}

func (s *Store) Order(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return orders.Order{}, &orders.NotFoundError{Entity: "order", ID: id}
	}
	return copyOrder(o), nil
}

// ClearExpiredSuspensions lifts every suspension that ended at or before now.
func (s *Store) ClearExpiredSuspensions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.st.customers {
		if c.SuspendedUntil != nil && !now.Before(*c.SuspendedUntil) {
			c.SuspendedUntil = nil
			s.st.customers[id] = c
			n++
		}
	}
	return n, nil
}

var errNegative = errors.New("lot quantity would go negative")

type tx struct{ st *state }

func (t *tx) LockLots(_ context.Context, variantID string) ([]inventory.Lot, error) {
	var out []inventory.Lot
	for _, l := range t.st.lots {
		if l.VariantID == variantID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}

func (t *tx) SetLotQuantity(_ context.Context, lotID string, qty int) error {
	l, ok := t.st.lots[lotID]
	if !ok {
		return fmt.Errorf("lot %s not found", lotID)
	}
	if qty < 0 {
		return fmt.Errorf("lot %s: %w", lotID, errNegative)
	}
	l.QuantityRemaining = qty
	t.st.lots[lotID] = l
	return nil
}

func (t *tx) InsertLot(_ context.Context, lot inventory.Lot) error {
	if _, ok := t.st.lots[lot.ID]; ok {
		return fmt.Errorf("lot %s already exists", lot.ID)
	}
	if _, ok := t.st.variants[lot.VariantID]; !ok {
		return &orders.NotFoundError{Entity: "variant", ID: lot.VariantID}
	}
	t.st.lots[lot.ID] = lot
	return nil
}

func (t *tx) ActiveLoads(_ context.Context, capability staff.Capability, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = 0
		want[id] = true
	}
	switch capability {
	case staff.CapabilityOrders:
		for _, o := range t.st.orders {
			if want[o.HandlerID] && o.Status.Open() {
				out[o.HandlerID]++
			}
		}
	case staff.CapabilitySupport:
		for _, a := range t.st.support {
			if want[a.StaffID] && a.ClosedAt == nil {
				out[a.StaffID]++
			}
		}
	}
	return out, nil
}

func (t *tx) Variant(_ context.Context, id string) (orders.Variant, error) {
	v, ok := t.st.variants[id]
	if !ok {
		return orders.Variant{}, &orders.NotFoundError{Entity: "variant", ID: id}
	}
	return v, nil
}

func (t *tx) LockCustomer(_ context.Context, id string) (orders.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return orders.Customer{}, &orders.NotFoundError{Entity: "customer", ID: id}
	}
	return c, nil
}

func (t *tx) SaveCustomerPenalty(_ context.Context, customerID string, count int, until *time.Time) error {
	c, ok := t.st.customers[customerID]
	if !ok {
		return &orders.NotFoundError{Entity: "customer", ID: customerID}
	}
	c.CancelledOrderCount = count
	c.SuspendedUntil = until
	t.st.customers[customerID] = c
	return nil
}

func (t *tx) LockVoucher(_ context.Context, code string) (orders.Voucher, error) {
	v, ok := t.st.vouchers[code]
	if !ok {
		return orders.Voucher{}, &orders.NotFoundError{Entity: "voucher", ID: code}
	}
	return v, nil
}

func (t *tx) MarkVoucherUsed(_ context.Context, voucherID string) error {
	for code, v := range t.st.vouchers {
		if v.ID == voucherID {
			v.UsedCount++
			t.st.vouchers[code] = v
			return nil
		}
	}
	return &orders.NotFoundError{Entity: "voucher", ID: voucherID}
}

func (t *tx) StaffByCapability(_ context.Context, capability staff.Capability) ([]staff.Member, error) {
	var out []staff.Member
	for _, m := range t.st.staff {
		if m.Has(capability) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) OrderByExternalID(_ context.Context, customerID, externalID string) (orders.Order, error) {
	for _, o := range t.st.orders {
		if o.CustomerID == customerID && o.ExternalID == externalID {
			return copyOrder(o), nil
		}
	}
	return orders.Order{}, &orders.NotFoundError{Entity: "order", ID: externalID}
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if o.ExternalID != "" {
		for _, prev := range t.st.orders {
			if prev.CustomerID == o.CustomerID && prev.ExternalID == o.ExternalID {
				return &orders.ConflictError{Entity: "order", ID: o.ExternalID, Message: "external id already used"}
			}
		}
	}
	t.st.orders[o.ID] = copyOrder(o)
	for _, it := range o.Items {
		t.st.itemOrder[it.ID] = o.ID
	}
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, &orders.NotFoundError{Entity: "order", ID: id}
	}
	return copyOrder(o), nil
}

func (t *tx) OrderIDForItem(_ context.Context, itemID string) (string, error) {
	id, ok := t.st.itemOrder[itemID]
	if !ok {
		return "", &orders.NotFoundError{Entity: "order item", ID: itemID}
	}
	return id, nil
}

func (t *tx) UpdateOrderStatus(_ context.Context, id string, status orders.Status, at time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return &orders.NotFoundError{Entity: "order", ID: id}
	}
	o.Status = status
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *tx) UpdateItem(_ context.Context, it orders.OrderItem) error {
	o, ok := t.st.orders[it.OrderID]
	if !ok {
		return &orders.NotFoundError{Entity: "order", ID: it.OrderID}
	}
	for i := range o.Items {
		if o.Items[i].ID == it.ID {
			o.Items[i] = it
			t.st.orders[o.ID] = o
			return nil
		}
	}
	return &orders.NotFoundError{Entity: "order item", ID: it.ID}
}

func (t *tx) InsertSupportAssignment(_ context.Context, a orders.SupportAssignment) error {
	if _, ok := t.st.support[a.ID]; ok {
		return fmt.Errorf("support assignment %s already exists", a.ID)
	}
	t.st.support[a.ID] = a
	return nil
}

func (t *tx) CloseSupportAssignment(_ context.Context, id string, at time.Time) (orders.SupportAssignment, error) {
	a, ok := t.st.support[id]
	if !ok {
		return orders.SupportAssignment{}, &orders.NotFoundError{Entity: "support assignment", ID: id}
	}
	if a.ClosedAt != nil {
		return orders.SupportAssignment{}, &orders.ConflictError{Entity: "support assignment", ID: id, Message: "already closed"}
	}
	a.ClosedAt = &at
	t.st.support[id] = a
	return a, nil
}
