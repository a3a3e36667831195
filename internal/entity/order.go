package domain

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidCoupon     = errors.New("coupon not applicable to this order")
	ErrCouponUnavailable = errors.New("coupon not in required status")
	ErrRateLimited       = errors.New("too many requests")
)

// CanTransition reports whether from→to is a legal edge of the order
// state machine. Status never moves backward.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPaid || to == StatusCancelled
	case StatusPaid:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

type OrderItem struct {
	SkuID          string
	Qty            int64
	UnitPriceCents int64 // price at purchase time, frozen
}

type Order struct {
	ID               string
	UserID           string
	StoreID          string
	Items            []OrderItem
	CouponInstanceID string // empty when no coupon bound
	TotalCents       int64  // frozen at creation, never recomputed
	Status           Status
	CreatedAt        time.Time
}

func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrInvalidAmount
	}
	for _, it := range o.Items {
		if it.Qty <= 0 || it.UnitPriceCents <= 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}

// SubtotalCents is the undiscounted item sum.
func (o *Order) SubtotalCents() int64 {
	var sum int64
	for _, it := range o.Items {
		sum += it.UnitPriceCents * it.Qty
	}
	return sum
}
