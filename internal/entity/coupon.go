package domain

import "time"

type CouponStatus string

const (
	CouponAvailable CouponStatus = "AVAILABLE"
	CouponLocked    CouponStatus = "LOCKED"
	CouponUsed      CouponStatus = "USED"
	CouponExpired   CouponStatus = "EXPIRED"
)

// CouponTemplate is the issuable promotional rule. Remaining decrements
// only on issuance, never on lock/unlock.
type CouponTemplate struct {
	ID            string
	Name          string
	DiscountCents int64
	MinSpendCents int64
	Total         int64
	Remaining     int64
	ValidFrom     time.Time
	ValidTo       time.Time
}

func (t *CouponTemplate) ValidAt(now time.Time) bool {
	return !now.Before(t.ValidFrom) && now.Before(t.ValidTo)
}

// CouponInstance is one user's claim against a template.
type CouponInstance struct {
	ID         string
	UserID     string
	TemplateID string
	Status     CouponStatus
	OrderID    string // set while LOCKED, records the owning order
}

// Applicable checks the instance against an order subtotal for the given
// user. Status is re-checked atomically at lock time; this is the
// business-rule gate only.
func (c *CouponInstance) Applicable(t *CouponTemplate, userID string, subtotalCents int64, now time.Time) error {
	if c.UserID != userID {
		return ErrInvalidCoupon
	}
	if c.Status != CouponAvailable {
		return ErrInvalidCoupon
	}
	if !t.ValidAt(now) {
		return ErrInvalidCoupon
	}
	if subtotalCents < t.MinSpendCents {
		return ErrInvalidCoupon
	}
	return nil
}
