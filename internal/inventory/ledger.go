package inventory

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"sort"
	"time"
)

// Ledger owns every mutation of lot quantities. It holds no state of its own;
// callers pass the transactional LotStore so several ledger calls can share
// one commit.
type Ledger struct {
	now   func() time.Time
	newID func() string
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now, newID: uuid.NewString}
}

// WithClock replaces the clock used for lots received without an explicit date.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Consume draws qty units from the variant's lots, oldest first. Nothing is
// written unless the whole quantity can be covered.
func (l *Ledger) Consume(ctx context.Context, s LotStore, variantID string, qty int) (Consumption, error) {
	if qty <= 0 {
		return Consumption{}, ErrInvalidQuantity
	}
	lots, err := s.LockLots(ctx, variantID)
	if err != nil {
		return Consumption{}, fmt.Errorf("lock lots %s: %w", variantID, err)
	}
	sortFIFO(lots)

	plan := make([]Take, 0, 2)
	need := qty
	for _, lot := range lots {
		if need == 0 {
			break
		}
		if lot.QuantityRemaining <= 0 {
			continue
		}
		n := min(lot.QuantityRemaining, need)
		plan = append(plan, Take{LotID: lot.ID, Quantity: n, UnitCost: lot.UnitCost})
		need -= n
	}
	if need > 0 {
		return Consumption{}, &InsufficientStockError{VariantID: variantID, Requested: qty, Available: qty - need}
	}

	remaining := make(map[string]int, len(lots))
	for _, lot := range lots {
		remaining[lot.ID] = lot.QuantityRemaining
	}
	for _, t := range plan {
		if err := s.SetLotQuantity(ctx, t.LotID, remaining[t.LotID]-t.Quantity); err != nil {
			return Consumption{}, fmt.Errorf("update lot %s: %w", t.LotID, err)
		}
	}
	return Consumption{VariantID: variantID, Takes: plan}, nil
}

// Restock returns qty units to the lot chosen by policy.
func (l *Ledger) Restock(ctx context.Context, s LotStore, variantID string, qty int, policy Policy) (Lot, error) {
	if qty <= 0 {
		return Lot{}, ErrInvalidQuantity
	}
	lots, err := s.LockLots(ctx, variantID)
	if err != nil {
		return Lot{}, fmt.Errorf("lock lots %s: %w", variantID, err)
	}
	if len(lots) == 0 {
		return Lot{}, fmt.Errorf("restock %s: %w", variantID, ErrNoLots)
	}
	sortFIFO(lots)

	var target Lot
	switch policy {
	case OldestLot:
		target = lots[0]
	case NewestLot:
		target = lots[len(lots)-1]
	default:
		return Lot{}, fmt.Errorf("restock %s: unknown %s", variantID, policy)
	}
	target.QuantityRemaining += qty
	if err := s.SetLotQuantity(ctx, target.ID, target.QuantityRemaining); err != nil {
		return Lot{}, fmt.Errorf("update lot %s: %w", target.ID, err)
	}
	return target, nil
}

// Receive records a new lot. A zero receivedAt means now.
func (l *Ledger) Receive(ctx context.Context, s LotStore, variantID string, qty int, unitCost decimal.Decimal, receivedAt time.Time) (Lot, error) {
	if qty <= 0 {
		return Lot{}, ErrInvalidQuantity
	}
	if unitCost.IsNegative() {
		return Lot{}, fmt.Errorf("%w: %s", ErrInvalidCost, unitCost)
	}
	if receivedAt.IsZero() {
		receivedAt = l.now()
	}
	lot := Lot{
		ID:                l.newID(),
		VariantID:         variantID,
		ReceivedAt:        receivedAt.UTC(),
		QuantityRemaining: qty,
		UnitCost:          unitCost,
	}
	if err := s.InsertLot(ctx, lot); err != nil {
		return Lot{}, fmt.Errorf("insert lot: %w", err)
	}
	return lot, nil
}

func sortFIFO(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if lots[i].ReceivedAt.Equal(lots[j].ReceivedAt) {
			return lots[i].ID < lots[j].ID
		}
		return lots[i].ReceivedAt.Before(lots[j].ReceivedAt)
	})
}
