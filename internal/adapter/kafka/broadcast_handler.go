package kafka

import (
	"context"
	"time"

	"github.com/npquoc/mallcore/internal/adapter/ws"
	"github.com/npquoc/mallcore/internal/usecase"
)

// BroadcastHandler fans marketing notices from the backoffice topic out to
// every live connection.
type BroadcastHandler struct {
	hub *ws.Hub
}

func NewBroadcastHandler(hub *ws.Hub) *BroadcastHandler {
	return &BroadcastHandler{hub: hub}
}

func (h *BroadcastHandler) Handle(_ context.Context, ev usecase.BroadcastMsg) error {
	h.hub.Broadcast(ws.Payload{
		Type:      ws.TypeBroadcast,
		Title:     ev.Title,
		Content:   ev.Content,
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}
