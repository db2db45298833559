package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"github.com/jackc/pgx/v5"
	"time"
)

func (t *pgTx) Variant(ctx context.Context, id string) (orders.Variant, error) {
	var v orders.Variant
	err := t.q.QueryRow(ctx, `SELECT id, product_id, unit_price FROM variants WHERE id = $1`, id).
		Scan(&v.ID, &v.ProductID, &v.UnitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Variant{}, &orders.NotFoundError{Entity: "variant", ID: id}
	}
	return v, err
}

func (t *pgTx) LockCustomer(ctx context.Context, id string) (orders.Customer, error) {
	var (
		c    orders.Customer
		addr []byte
	)
	err := t.q.QueryRow(ctx, `
		SELECT id, name, address, cancelled_order_count, suspended_until
		FROM customers WHERE id = $1 FOR UPDATE`, id).
		Scan(&c.ID, &c.Name, &addr, &c.CancelledOrderCount, &c.SuspendedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Customer{}, &orders.NotFoundError{Entity: "customer", ID: id}
	}
	if err != nil {
		return orders.Customer{}, err
	}
	if len(addr) > 0 && string(addr) != "null" {
		c.Address = &orders.Address{}
		if err := json.Unmarshal(addr, c.Address); err != nil {
			return orders.Customer{}, err
		}
	}
	return c, nil
}

func (t *pgTx) SaveCustomerPenalty(ctx context.Context, customerID string, count int, until *time.Time) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE customers SET cancelled_order_count = $2, suspended_until = $3 WHERE id = $1`,
		customerID, count, until)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Entity: "customer", ID: customerID}
	}
	return nil
}

func (t *pgTx) LockVoucher(ctx context.Context, code string) (orders.Voucher, error) {
	var v orders.Voucher
	err := t.q.QueryRow(ctx, `
		SELECT id, code, percent_off, max_discount, min_total, usage_limit, used_count, expires_at
		FROM vouchers WHERE code = $1 FOR UPDATE`, code).
		Scan(&v.ID, &v.Code, &v.PercentOff, &v.MaxDiscount, &v.MinTotal, &v.UsageLimit, &v.UsedCount, &v.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Voucher{}, &orders.NotFoundError{Entity: "voucher", ID: code}
	}
	return v, err
}

func (t *pgTx) MarkVoucherUsed(ctx context.Context, voucherID string) error {
	ct, err := t.q.Exec(ctx, `UPDATE vouchers SET used_count = used_count + 1 WHERE id = $1`, voucherID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Entity: "voucher", ID: voucherID}
	}
	return nil
}

func (t *pgTx) StaffByCapability(ctx context.Context, capability staff.Capability) ([]staff.Member, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, name, capabilities, online, last_activity_at, heartbeat_at
		FROM staff_members WHERE $1 = ANY(capabilities) ORDER BY id`, string(capability))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []staff.Member
	for rows.Next() {
		var (
			m    staff.Member
			caps []string
		)
		if err := rows.Scan(&m.ID, &m.Name, &caps, &m.Online, &m.LastActivityAt, &m.HeartbeatAt); err != nil {
			return nil, err
		}
		for _, c := range caps {
			m.Capabilities = append(m.Capabilities, staff.Capability(c))
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) ActiveLoads(ctx context.Context, capability staff.Capability, ids []string) (map[string]int, error) {
	var sql string
	switch capability {
	case staff.CapabilityOrders:
		sql = `SELECT handler_id, count(*) FROM orders
		       WHERE handler_id = ANY($1) AND status IN ('processing', 'shipping')
		       GROUP BY handler_id`
	case staff.CapabilitySupport:
		sql = `SELECT staff_id, count(*) FROM support_assignments
		       WHERE staff_id = ANY($1) AND closed_at IS NULL
		       GROUP BY staff_id`
	}
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = 0
	}
	if sql == "" {
		return out, nil
	}
	rows, err := t.q.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (t *pgTx) InsertSupportAssignment(ctx context.Context, a orders.SupportAssignment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO support_assignments (id, customer_id, staff_id, opened_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.CustomerID, a.StaffID, a.OpenedAt)
	return err
}

func (t *pgTx) CloseSupportAssignment(ctx context.Context, id string, at time.Time) (orders.SupportAssignment, error) {
	var a orders.SupportAssignment
	err := t.q.QueryRow(ctx, `
		SELECT id, customer_id, staff_id, opened_at, closed_at
		FROM support_assignments WHERE id = $1 FOR UPDATE`, id).
		Scan(&a.ID, &a.CustomerID, &a.StaffID, &a.OpenedAt, &a.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.SupportAssignment{}, &orders.NotFoundError{Entity: "support assignment", ID: id}
	}
	if err != nil {
		return orders.SupportAssignment{}, err
	}
	if a.ClosedAt != nil {
		return orders.SupportAssignment{}, &orders.ConflictError{Entity: "support assignment", ID: id, Message: "already closed"}
	}
	if _, err := t.q.Exec(ctx, `UPDATE support_assignments SET closed_at = $2 WHERE id = $1`, id, at); err != nil {
		return orders.SupportAssignment{}, err
	}
	a.ClosedAt = &at
	return a, nil
}
