package queue

import (
	"context"
	"errors"

	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/npquoc/mallcore/internal/usecase"
)

// PaymentResultMsg is published by the payment gateway.
type PaymentResultMsg struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"` // SUCCEEDED | FAILED
	TxnID   string `json:"txnId,omitempty"`
}

// PaymentResultHandler settles orders from gateway callbacks. Intended for
// the JSON adapter (queue.JSONHandler[PaymentResultMsg]).
type PaymentResultHandler struct {
	lifecycle *usecase.OrderLifecycle
}

func NewPaymentResultHandler(lc *usecase.OrderLifecycle) *PaymentResultHandler {
	return &PaymentResultHandler{lifecycle: lc}
}

func (h *PaymentResultHandler) Handle(ctx context.Context, msg PaymentResultMsg) error {
	var err error
	switch msg.Status {
	case "SUCCEEDED":
		_, err = h.lifecycle.Pay(ctx, msg.OrderID)
	default:
		_, err = h.lifecycle.Cancel(ctx, msg.OrderID, "payment failed")
	}
	// a redelivered result may find the order already settled; ack it
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	return err
}
