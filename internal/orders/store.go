package orders

import (
	"context"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"time"
)

// Tx is the transactional view used by every lifecycle operation. Lock*
// methods hold the row until the transaction ends. Missing rows are reported
// with a *NotFoundError.
type Tx interface {
	inventory.LotStore
	staff.LoadCounter

	Variant(ctx context.Context, id string) (Variant, error)

	LockCustomer(ctx context.Context, id string) (Customer, error)
	SaveCustomerPenalty(ctx context.Context, customerID string, cancelledCount int, suspendedUntil *time.Time) error

	LockVoucher(ctx context.Context, code string) (Voucher, error)
	MarkVoucherUsed(ctx context.Context, voucherID string) error

	StaffByCapability(ctx context.Context, capability staff.Capability) ([]staff.Member, error)

	// OrderByExternalID returns a *NotFoundError when the customer never used externalID.
	OrderByExternalID(ctx context.Context, customerID, externalID string) (Order, error)
	InsertOrder(ctx context.Context, o Order) error
	LockOrder(ctx context.Context, id string) (Order, error)
	OrderIDForItem(ctx context.Context, itemID string) (string, error)
	UpdateOrderStatus(ctx context.Context, id string, status Status, at time.Time) error
	UpdateItem(ctx context.Context, it OrderItem) error

	InsertSupportAssignment(ctx context.Context, a SupportAssignment) error
	CloseSupportAssignment(ctx context.Context, id string, at time.Time) (SupportAssignment, error)
}

// Store runs fn in one transaction. Implementations may call fn again after a
// serialization failure, so fn must not leak side effects outside tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Order(ctx context.Context, id string) (Order, error)
}

// Metrics is the slice of the metrics registry the engine reports to.
type Metrics interface {
	CheckoutOutcome(outcome string)
	StockMoved(direction string, units int)
	Suspension()
}

type nopMetrics struct{}

func (nopMetrics) CheckoutOutcome(string) {}
func (nopMetrics) StockMoved(string, int) {}
func (nopMetrics) Suspension()            {}
