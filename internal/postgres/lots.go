package postgres

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

const selectLots = `
		SELECT id, variant_id, received_at, quantity_remaining, unit_cost
		FROM stock_lots
		WHERE variant_id = $1
		ORDER BY received_at ASC, id ASC`

// LockLots locks the variant's lots oldest first. Callers lock variants in id
// order, which keeps lot locks acquired in one global order.
func (t *pgTx) LockLots(ctx context.Context, variantID string) ([]inventory.Lot, error) {
	return queryLots(ctx, t.q, selectLots+` FOR UPDATE`, variantID)
}

// ReadLots reads the variant's lots outside any transaction and without locks.
func (s *Store) ReadLots(ctx context.Context, variantID string) ([]inventory.Lot, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, variantID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("variant %s: %w", variantID, inventory.ErrUnknownVariant)
	}
	return queryLots(ctx, s.DB, selectLots, variantID)
}

func queryLots(ctx context.Context, q querier, sql, variantID string) ([]inventory.Lot, error) {
	rows, err := q.Query(ctx, sql, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Lot
	for rows.Next() {
		var l inventory.Lot
		if err := rows.Scan(&l.ID, &l.VariantID, &l.ReceivedAt, &l.QuantityRemaining, &l.UnitCost); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgTx) SetLotQuantity(ctx context.Context, lotID string, qty int) error {
	ct, err := t.q.Exec(ctx, `UPDATE stock_lots SET quantity_remaining = $2 WHERE id = $1`, lotID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("lot %s not found", lotID)
	}
	return nil
}

func (t *pgTx) InsertLot(ctx context.Context, lot inventory.Lot) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_lots (id, variant_id, received_at, quantity_remaining, unit_cost)
		VALUES ($1, $2, $3, $4, $5)`,
		lot.ID, lot.VariantID, lot.ReceivedAt, lot.QuantityRemaining, lot.UnitCost)
	if pgCode(err) == codeForeignKeyViolation {
		return &orders.NotFoundError{Entity: "variant", ID: lot.VariantID}
	}
	return err
}
