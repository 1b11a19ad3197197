package events

// Topic constants for domain events emitted by the platform.
const (
	TopicBillCreated      = "bill.created"
	TopicBillPaid         = "bill.paid"
	TopicBillDelivered    = "bill.delivered"
	TopicBillReturned     = "bill.returned"
	TopicStockLow         = "stock.low"
	TopicPurchaseReceived = "purchase.received"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicBillCreated,
		TopicBillPaid,
		TopicBillDelivered,
		TopicBillReturned,
		TopicStockLow,
		TopicPurchaseReceived,
	}
}
