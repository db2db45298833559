package memstore

import (
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

// Fixture is the YAML catalog the memory backend boots from. Money fields are
// decimal strings.
type Fixture struct {
	Variants []struct {
		ID        string `yaml:"id"`
		ProductID string `yaml:"product_id"`
		UnitPrice string `yaml:"unit_price"`
	} `yaml:"variants"`
	Lots []struct {
		ID         string    `yaml:"id"`
		VariantID  string    `yaml:"variant_id"`
		Quantity   int       `yaml:"quantity"`
		UnitCost   string    `yaml:"unit_cost"`
		ReceivedAt time.Time `yaml:"received_at"`
	} `yaml:"lots"`
	Customers []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Address *struct {
			Recipient  string `yaml:"recipient"`
			Phone      string `yaml:"phone"`
			Line1      string `yaml:"line1"`
			City       string `yaml:"city"`
			PostalCode string `yaml:"postal_code"`
			Country    string `yaml:"country"`
		} `yaml:"address"`
	} `yaml:"customers"`
	Staff []struct {
		ID           string   `yaml:"id"`
		Name         string   `yaml:"name"`
		Capabilities []string `yaml:"capabilities"`
		Online       bool     `yaml:"online"`
	} `yaml:"staff"`
	Vouchers []struct {
		ID          string     `yaml:"id"`
		Code        string     `yaml:"code"`
		PercentOff  string     `yaml:"percent_off"`
		MaxDiscount string     `yaml:"max_discount"`
		MinTotal    string     `yaml:"min_total"`
		UsageLimit  int        `yaml:"usage_limit"`
		ExpiresAt   *time.Time `yaml:"expires_at"`
	} `yaml:"vouchers"`
}

func money(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// LoadFixtureFile parses path and seeds s. Nothing is written when the file
// is invalid.
func (s *Store) LoadFixtureFile(path string, now time.Time) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	return s.LoadFixture(b, now)
}

// LoadFixture seeds s from YAML. Lots without received_at are stamped now and
// staff heartbeats start at now.
func (s *Store) LoadFixture(b []byte, now time.Time) error {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	next := newState()
	for _, v := range f.Variants {
		price, err := money("variant "+v.ID+" unit_price", v.UnitPrice)
		if err != nil {
			return err
		}
		next.variants[v.ID] = orders.Variant{ID: v.ID, ProductID: v.ProductID, UnitPrice: price}
	}
	for i, l := range f.Lots {
		if _, ok := next.variants[l.VariantID]; !ok {
			return fmt.Errorf("lots[%d]: unknown variant %q", i, l.VariantID)
		}
		if l.Quantity < 0 {
			return fmt.Errorf("lots[%d]: negative quantity", i)
		}
		cost, err := money(fmt.Sprintf("lots[%d].unit_cost", i), l.UnitCost)
		if err != nil {
			return err
		}
		id, at := l.ID, l.ReceivedAt
		if id == "" {
			id = uuid.NewString()
		}
		if at.IsZero() {
			at = now
		}
		next.lots[id] = inventory.Lot{ID: id, VariantID: l.VariantID, ReceivedAt: at.UTC(), QuantityRemaining: l.Quantity, UnitCost: cost}
	}
	for _, c := range f.Customers {
		cust := orders.Customer{ID: c.ID, Name: c.Name}
		if a := c.Address; a != nil {
			cust.Address = &orders.Address{Recipient: a.Recipient, Phone: a.Phone, Line1: a.Line1, City: a.City, PostalCode: a.PostalCode, Country: a.Country}
		}
		next.customers[c.ID] = cust
	}
	for _, m := range f.Staff {
		mem := staff.Member{ID: m.ID, Name: m.Name, Online: m.Online, LastActivityAt: now, HeartbeatAt: now}
		for _, c := range m.Capabilities {
			mem.Capabilities = append(mem.Capabilities, staff.Capability(c))
		}
		next.staff[m.ID] = mem
	}
	for _, v := range f.Vouchers {
		pct, err := money("voucher "+v.Code+" percent_off", v.PercentOff)
		if err != nil {
			return err
		}
		capped, err := money("voucher "+v.Code+" max_discount", v.MaxDiscount)
		if err != nil {
			return err
		}
		minTotal, err := money("voucher "+v.Code+" min_total", v.MinTotal)
		if err != nil {
			return err
		}
		next.vouchers[v.Code] = orders.Voucher{ID: v.ID, Code: v.Code, PercentOff: pct, MaxDiscount: capped,
			MinTotal: minTotal, UsageLimit: v.UsageLimit, ExpiresAt: v.ExpiresAt}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	merge(s.st.variants, next.variants)
	merge(s.st.lots, next.lots)
	merge(s.st.customers, next.customers)
	merge(s.st.staff, next.staff)
	merge(s.st.vouchers, next.vouchers)
	return nil
}

func merge[V any](dst, src map[string]V) {
	for k, v := range src {
		dst[k] = v
	}
}
