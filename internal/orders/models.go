package orders

import (
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/shopspring/decimal"
	"time"
)

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "cod"
	PaymentCard    PaymentMethod = "card"
	PaymentEWallet PaymentMethod = "ewallet"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCOD, PaymentCard, PaymentEWallet:
		return true
	}
	return false
}

// Address is copied into the order at checkout; later profile edits do not touch it.
type Address struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Customer struct {
	ID      string
	Name    string
	Address *Address
	// CancelledOrderCount counts orders the customer's own cancellation moved
	// to cancelled. Orders that reach cancelled through a return resolution or
	// an admin bulk update do not count.
	CancelledOrderCount int
	SuspendedUntil      *time.Time
}

func (c Customer) SuspendedAt(now time.Time) bool {
	return c.SuspendedUntil != nil && now.Before(*c.SuspendedUntil)
}

// Variant is the catalog projection checkout needs.
type Variant struct {
	ID        string
	ProductID string
	UnitPrice decimal.Decimal
}

type Voucher struct {
	ID          string
	Code        string
	PercentOff  decimal.Decimal
	MaxDiscount decimal.Decimal // zero = uncapped
	MinTotal    decimal.Decimal
	UsageLimit  int // zero = unlimited
	UsedCount   int
	ExpiresAt   *time.Time
}

type Order struct {
	ID              string          `json:"id"`
	ExternalID      string          `json:"external_id,omitempty"`
	CustomerID      string          `json:"customer_id"`
	HandlerID       string          `json:"handler_id"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	Status          Status          `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	VoucherIDs      []string        `json:"voucher_ids,omitempty"`
	ShippingAddress Address         `json:"shipping_address"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (o *Order) Item(id string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

type OrderItem struct {
	ID                 string           `json:"id"`
	OrderID            string           `json:"order_id"`
	ProductID          string           `json:"product_id"`
	VariantID          string           `json:"variant_id"`
	Quantity           int              `json:"quantity"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	Cost               decimal.Decimal  `json:"cost"`
	Allocations        []inventory.Take `json:"allocations,omitempty"`
	Status             ItemStatus       `json:"status"`
	Reason             string           `json:"reason,omitempty"`
	RejectionReason    string           `json:"rejection_reason,omitempty"`
	RequestedReturnQty int              `json:"requested_return_qty,omitempty"`
	RequestedAt        *time.Time       `json:"requested_at,omitempty"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty"`
}

type CartLine struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"qty"`
}

type CheckoutRequest struct {
	CustomerID    string        `json:"customer_id"`
	ExternalID    string        `json:"external_id,omitempty"`
	Lines         []CartLine    `json:"lines"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	VoucherCode   string        `json:"voucher_code,omitempty"`
}

// ItemRequest names one order item in a return or cancellation batch.
// For cancellations Quantity 0 means the whole item.
type ItemRequest struct {
	OrderItemID string `json:"order_item_id"`
	Quantity    int    `json:"qty"`
}

type SupportAssignment struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	StaffID    string     `json:"staff_id"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}
