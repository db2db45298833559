package memstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
variants:
  - {id: v-mug, product_id: p-mug, unit_price: "8.50"}
lots:
  - {id: mug-a, variant_id: v-mug, quantity: 4, unit_cost: "3", received_at: 2024-01-01T00:00:00Z}
  - {variant_id: v-mug, quantity: 6, unit_cost: "3.25"}
customers:
  - id: cust-1
    name: Ana
    address: {recipient: Ana, line1: Jl. Melati 4, city: Bandung, postal_code: "40115", country: ID}
staff:
  - {id: handler-1, name: Citra, capabilities: [order-handling], online: true}
vouchers:
  - {id: vch-1, code: TENOFF, percent_off: "10", usage_limit: 5}
`

func TestLoadFixture_SeedsEveryTable(t *testing.T) {
	s := New()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.LoadFixture([]byte(fixtureYAML), now))

	assert.Equal(t, []int{4, 6}, s.Remaining("v-mug"))
	lots := s.Lots("v-mug")
	assert.Equal(t, now, lots[1].ReceivedAt)
	assert.Equal(t, "3.25", lots[1].UnitCost.String())

	c, ok := s.Customer("cust-1")
	require.True(t, ok)
	require.NotNil(t, c.Address)
	assert.Equal(t, "40115", c.Address.PostalCode)

	v, ok := s.Voucher("TENOFF")
	require.True(t, ok)
	assert.Equal(t, "10", v.PercentOff.String())

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		pool, err := tx.StaffByCapability(ctx, staff.CapabilityOrders)
		require.NoError(t, err)
		require.Len(t, pool, 1)
		assert.True(t, pool[0].Online)
		variant, err := tx.Variant(ctx, "v-mug")
		require.NoError(t, err)
		assert.Equal(t, "8.5", variant.UnitPrice.String())
		return nil
	}))
}

func TestLoadFixture_InvalidWritesNothing(t *testing.T) {
	s := New()
	bad := `
variants:
  - {id: v-mug, product_id: p-mug, unit_price: "8"}
lots:
  - {variant_id: v-ghost, quantity: 1, unit_cost: "1"}
`
	err := s.LoadFixture([]byte(bad), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v-ghost")

	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.Variant(ctx, "v-mug")
		assert.ErrorIs(t, err, orders.ErrNotFound)
		return nil
	}))
}

func TestLoadFixtureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	s := New()
	require.NoError(t, s.LoadFixtureFile(path, time.Now()))
	_, ok := s.Customer("cust-1")
	assert.True(t, ok)

	assert.Error(t, New().LoadFixtureFile(filepath.Join(t.TempDir(), "missing.yaml"), time.Now()))
}
