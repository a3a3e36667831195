package ws

const (
	TypeOrderStatus = "ORDER_STATUS"
	TypeSystem      = "SYSTEM"
	TypeBroadcast   = "BROADCAST"
)

// Payload is the outbound push message shape.
type Payload struct {
	Type      string `json:"type"`
	OrderID   string `json:"orderId,omitempty"`
	Status    string `json:"status,omitempty"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}
