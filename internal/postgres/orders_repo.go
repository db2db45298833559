package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"time"
)

const orderColumns = `id, external_id, customer_id, handler_id, subtotal, discount, total,
	status, payment_method, voucher_ids, shipping_address, created_at, updated_at`

func loadOrder(ctx context.Context, q querier, id string, lock bool) (orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var (
		o          orders.Order
		externalID *string
		status     string
		payment    string
		addr       []byte
	)
	err := q.QueryRow(ctx, sql, id).Scan(&o.ID, &externalID, &o.CustomerID, &o.HandlerID,
		&o.Subtotal, &o.Discount, &o.Total, &status, &payment, &o.VoucherIDs, &addr,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, &orders.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return orders.Order{}, err
	}
	if externalID != nil {
		o.ExternalID = *externalID
	}
	o.Status = orders.Status(status)
	o.PaymentMethod = orders.PaymentMethod(payment)
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return orders.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price, cost, allocations,
		       status, reason, rejection_reason, requested_return_qty, requested_at, resolved_at
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it     orders.OrderItem
			allocs []byte
			st     string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Quantity,
			&it.UnitPrice, &it.Cost, &allocs, &st, &it.Reason, &it.RejectionReason,
			&it.RequestedReturnQty, &it.RequestedAt, &it.ResolvedAt); err != nil {
			return orders.Order{}, err
		}
		if err := json.Unmarshal(allocs, &it.Allocations); err != nil {
			return orders.Order{}, fmt.Errorf("decode allocations: %w", err)
		}
		it.Status = orders.ItemStatus(st)
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return loadOrder(ctx, t.q, id, true)
}

func (t *pgTx) OrderByExternalID(ctx context.Context, customerID, externalID string) (orders.Order, error) {
	var id string
	err := t.q.QueryRow(ctx, `SELECT id FROM orders WHERE customer_id = $1 AND external_id = $2`,
		customerID, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, &orders.NotFoundError{Entity: "order", ID: externalID}
	}
	if err != nil {
		return orders.Order{}, err
	}
	return loadOrder(ctx, t.q, id, false)
}

func (t *pgTx) InsertOrder(ctx context.Context, o orders.Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	vouchers := o.VoucherIDs
	if vouchers == nil {
		vouchers = []string{}
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, nullable(o.ExternalID), o.CustomerID, o.HandlerID, o.Subtotal, o.Discount, o.Total,
		string(o.Status), string(o.PaymentMethod), vouchers, addr, o.CreatedAt, o.UpdatedAt)
	if pgCode(err) == codeUniqueViolation {
		return &orders.ConflictError{Entity: "order", ID: o.ExternalID, Message: "external id already used"}
	}
	if err != nil {
		return err
	}

	for i, it := range o.Items {
		allocs, err := json.Marshal(it.Allocations)
		if err != nil {
			return err
		}
		if _, err := t.q.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, variant_id, quantity,
			                         unit_price, cost, allocations, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			it.ID, o.ID, i, it.ProductID, it.VariantID, it.Quantity,
			it.UnitPrice, it.Cost, allocs, string(it.Status)); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) OrderIDForItem(ctx context.Context, itemID string) (string, error) {
	var id string
	err := t.q.QueryRow(ctx, `SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &orders.NotFoundError{Entity: "order item", ID: itemID}
	}
	return id, err
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status orders.Status, at time.Time) error {
	ct, err := t.q.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Entity: "order", ID: id}
	}
	return nil
}

func (t *pgTx) UpdateItem(ctx context.Context, it orders.OrderItem) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE order_items
		SET status = $3, reason = $4, rejection_reason = $5, requested_return_qty = $6,
		    requested_at = $7, resolved_at = $8
		WHERE id = $1 AND order_id = $2`,
		it.ID, it.OrderID, string(it.Status), it.Reason, it.RejectionReason, it.RequestedReturnQty,
		it.RequestedAt, it.ResolvedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Entity: "order item", ID: it.ID}
	}
	return nil
}
