package orders

const (
	TopicNotifications    = "fulfillment.notifications"
	ExchangeNotifications = "fulfillment_notifications"
)

// Partition key = user id, so one user's notifications keep their order.
func PartitionKey(userID string) []byte { return []byte(userID) }
