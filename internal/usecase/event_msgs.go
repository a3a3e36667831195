package usecase

// Published to RabbitMQ for the fulfillment pipeline when an order is created.
type OrderCreatedMsg struct {
	OrderID    string `json:"orderId"`
	UserID     string `json:"userId"`
	StoreID    string `json:"storeId,omitempty"`
	TotalCents int64  `json:"totalCents"`
}

// Published to Kafka on every order status transition.
type OrderStatusChangedMsg struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// BroadcastMsg arrives on Kafka from the marketing backoffice and is fanned
// out to every live connection.
type BroadcastMsg struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
