package inventory

import (
	"context"
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"time"
)

// Lot is a batch of stock received at one time with its own cost basis.
type Lot struct {
	ID                string
	VariantID         string
	ReceivedAt        time.Time
	QuantityRemaining int
	UnitCost          decimal.Decimal
}

// Take records how much one consumption drew from a single lot.
type Take struct {
	LotID    string          `json:"lot_id"`
	Quantity int             `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Consumption is the result of a successful FIFO consume.
type Consumption struct {
	VariantID string
	Takes     []Take
}

func (c Consumption) Quantity() int {
	n := 0
	for _, t := range c.Takes {
		n += t.Quantity
	}
	return n
}

// WeightedCost is the sum of amountTaken x unitCost over the lots actually consumed.
func WeightedCost(c Consumption) decimal.Decimal {
	total := decimal.Zero
	for _, t := range c.Takes {
		total = total.Add(t.UnitCost.Mul(decimal.NewFromInt(int64(t.Quantity))))
	}
	return total
}

// Policy selects the lot that receives restocked units.
type Policy int

const (
	OldestLot Policy = iota
	NewestLot
)

func (p Policy) String() string {
	switch p {
	case OldestLot:
		return "oldest_lot"
	case NewestLot:
		return "newest_lot"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoLots            = errors.New("variant has no stock lots")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidCost       = errors.New("unit cost must not be negative")
	ErrUnknownVariant    = errors.New("unknown variant")
	ErrUnknownPolicy     = errors.New("unknown restock policy")
)

// ParsePolicy accepts the String form of a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "oldest_lot":
		return OldestLot, nil
	case "newest_lot":
		return NewestLot, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// OnHand is the sum of remaining quantity over lots.
func OnHand(lots []Lot) int {
	total := 0
	for _, l := range lots {
		total += l.QuantityRemaining
	}
	return total
}

// InsufficientStockError carries the shortfall for one variant.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// LotStore is the transactional view of stock lots. Implementations must hold
// the returned lots locked until the enclosing transaction ends.
type LotStore interface {
	// LockLots returns every lot of the variant ordered by ReceivedAt ascending (ties by ID).
	LockLots(ctx context.Context, variantID string) ([]Lot, error)
	SetLotQuantity(ctx context.Context, lotID string, qty int) error
	InsertLot(ctx context.Context, lot Lot) error
}

// Store runs a function inside one transaction over the lot table.
type Store interface {
	WithinLotTx(ctx context.Context, fn func(ctx context.Context, lots LotStore) error) error
	// ReadLots is a lock-free read of the variant's lots. A variant that does
	// not exist is reported with ErrUnknownVariant.
	ReadLots(ctx context.Context, variantID string) ([]Lot, error)
}
