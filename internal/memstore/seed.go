package memstore

import (
	"context"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
)

// Put* and the readers below bypass transactions. They exist for seeding and
// inspection from tests and the dev server.

func (s *Store) PutVariant(v orders.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.variants[v.ID] = v
}

func (s *Store) PutCustomer(c orders.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.customers[c.ID] = c
}

func (s *Store) PutVoucher(v orders.Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.vouchers[v.Code] = v
}

func (s *Store) PutStaff(m staff.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.staff[m.ID] = m
}

func (s *Store) PutLot(l inventory.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.lots[l.ID] = l
}

func (s *Store) Customer(id string) (orders.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.customers[id]
	return c, ok
}

func (s *Store) Voucher(code string) (orders.Voucher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.vouchers[code]
	return v, ok
}

func (s *Store) SupportAssignment(id string) (orders.SupportAssignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.support[id]
	return a, ok
}

// Lots returns the variant's lots oldest first.
func (s *Store) Lots(variantID string) []inventory.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	lots, _ := (&tx{st: s.st}).LockLots(context.Background(), variantID)
	return lots
}

// Remaining is the per-lot remaining quantity, oldest first.
func (s *Store) Remaining(variantID string) []int {
	lots := s.Lots(variantID)
	out := make([]int, len(lots))
	for i, l := range lots {
		out[i] = l.QuantityRemaining
	}
	return out
}
