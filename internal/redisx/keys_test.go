package redisx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:checkout:cust-1:cart-77", IdemCheckoutKey("cust-1", "cart-77"))
	assert.Equal(t, "order_status:ord-9", OrderStatusKey("ord-9"))
	assert.Equal(t, "dedup:notifier:evt-1", DedupKey("notifier", "evt-1"))
}
