package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	domain "github.com/npquoc/mallcore/internal/entity"
)

// CouponLedger owns coupon templates and per-user instances. Every status
// move goes through the repo's conditional update, so concurrent callers on
// one instance see exactly one winner.
type CouponLedger struct {
	coupons CouponRepo
	log     *slog.Logger
}

func NewCouponLedger(coupons CouponRepo, log *slog.Logger) *CouponLedger {
	return &CouponLedger{coupons: coupons, log: log}
}

// Issue claims one instance of a template for the user. Remaining decrements
// exactly once; an exhausted or lapsed template yields ErrCouponUnavailable.
func (l *CouponLedger) Issue(ctx context.Context, templateID, userID string) (*domain.CouponInstance, error) {
	tpl, err := l.coupons.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if !tpl.ValidAt(time.Now()) {
		return nil, domain.ErrCouponUnavailable
	}
	ok, err := l.coupons.DecrementRemaining(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("decrement remaining: %w", err)
	}
	if !ok {
		return nil, domain.ErrCouponUnavailable
	}
	inst := &domain.CouponInstance{
		ID:         uuid.NewString(),
		UserID:     userID,
		TemplateID: templateID,
		Status:     domain.CouponAvailable,
	}
	if err := l.coupons.CreateInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return inst, nil
}

// Lock swaps AVAILABLE→LOCKED, tagging the instance with its owning order.
// Under concurrent attempts exactly one wins; losers get ErrCouponUnavailable.
func (l *CouponLedger) Lock(ctx context.Context, instanceID, orderID string) error {
	ok, err := l.coupons.UpdateInstanceStatusIf(ctx, instanceID, domain.CouponAvailable, domain.CouponLocked, orderID)
	if err != nil {
		return fmt.Errorf("lock coupon %s: %w", instanceID, err)
	}
	if !ok {
		return domain.ErrCouponUnavailable
	}
	return nil
}

// Unlock reverts LOCKED→AVAILABLE and clears the order binding. Unlocking an
// instance that is not locked is a no-op, not an error.
func (l *CouponLedger) Unlock(ctx context.Context, instanceID string) error {
	_, err := l.coupons.UpdateInstanceStatusIf(ctx, instanceID, domain.CouponLocked, domain.CouponAvailable, "")
	if err != nil {
		return fmt.Errorf("unlock coupon %s: %w", instanceID, err)
	}
	return nil
}

// Consume burns a locked instance on payment. Irreversible.
func (l *CouponLedger) Consume(ctx context.Context, instanceID string) error {
	inst, err := l.coupons.GetInstance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("get instance %s: %w", instanceID, err)
	}
	ok, err := l.coupons.UpdateInstanceStatusIf(ctx, instanceID, domain.CouponLocked, domain.CouponUsed, inst.OrderID)
	if err != nil {
		return fmt.Errorf("consume coupon %s: %w", instanceID, err)
	}
	if !ok {
		return domain.ErrCouponUnavailable
	}
	return nil
}

// ExpireTemplateHolders expires every AVAILABLE or LOCKED instance of a
// template whose validity ended before now. Deliberately aggressive on
// LOCKED holders: the governing order gets cancelled independently by the
// expiration watchdog.
func (l *CouponLedger) ExpireTemplateHolders(ctx context.Context, templateID string, now time.Time) (int64, error) {
	tpl, err := l.coupons.GetTemplate(ctx, templateID)
	if err != nil {
		return 0, fmt.Errorf("get template: %w", err)
	}
	if !tpl.ValidTo.Before(now) {
		return 0, nil
	}
	n, err := l.coupons.ExpireInstances(ctx, templateID)
	if err != nil {
		return 0, fmt.Errorf("expire instances of %s: %w", templateID, err)
	}
	if n > 0 {
		l.log.Info("coupon holders expired", "template", templateID, "count", n)
	}
	return n, nil
}
