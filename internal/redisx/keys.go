package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency checkout: idem:checkout:{customer_id}:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache order view: order_status:{order_id} -> order JSON
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func IdemCheckoutKey(customerID, externalID string) string {
	return fmt.Sprintf(KeyIdemCheckout, customerID, externalID)
}

func OrderStatusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func DedupKey(service, eventID string) string { return fmt.Sprintf(KeyDedup, service, eventID) }
