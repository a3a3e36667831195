package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MarkerPrefix is the key prefix of per-order expiration markers. The
// expiry-notification collaborator reports the full key back when the
// marker's TTL lapses.
const MarkerPrefix = "order:expire:"

var expiredCancels = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_expiry_cancellations_total",
		Help: "Stale pending orders cancelled, by trigger path",
	},
	[]string{"path"},
)

// ExpirationCoordinator is the dual-path watchdog over stale PENDING
// orders. The event path reacts to marker-expiry notifications; the sweep
// path periodically re-scans and is the correctness backstop when no
// notification support exists. Both converge on CancelIfStillPending,
// which is safe to invoke concurrently or redundantly.
type ExpirationCoordinator struct {
	lifecycle *OrderLifecycle
	ledger    *CouponLedger
	coupons   CouponRepo
	interval  time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewExpirationCoordinator(lifecycle *OrderLifecycle, ledger *CouponLedger,
	coupons CouponRepo, sweepInterval time.Duration, log *slog.Logger) *ExpirationCoordinator {
	return &ExpirationCoordinator{
		lifecycle: lifecycle,
		ledger:    ledger,
		coupons:   coupons,
		interval:  sweepInterval,
		log:       log,
		now:       time.Now,
	}
}

// CancelIfStillPending re-checks the order status right before cancelling,
// guarding against a payment that lands between trigger and execution.
// Redundant invocation is harmless: Cancel is idempotent.
func (c *ExpirationCoordinator) CancelIfStillPending(ctx context.Context, orderID, path string) error {
	o, err := c.lifecycle.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusPending {
		return nil
	}
	if _, err := c.lifecycle.Cancel(ctx, orderID, "payment timeout"); err != nil {
		// a concurrent Pay winning the race shows up as InvalidTransition
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	expiredCancels.WithLabelValues(path).Inc()
	c.log.Info("stale order cancelled", "order", orderID, "path", path)
	return nil
}

// HandleExpiredKey is the event-path entry. The subscriber feeds it every
// expired key; non-marker keys are ignored, a malformed marker is logged
// and dropped.
func (c *ExpirationCoordinator) HandleExpiredKey(ctx context.Context, key string) {
	if !strings.HasPrefix(key, MarkerPrefix) {
		return
	}
	orderID := strings.TrimPrefix(key, MarkerPrefix)
	if orderID == "" {
		c.log.Warn("expiry event with malformed key", "key", key)
		return
	}
	if err := c.CancelIfStillPending(ctx, orderID, "event"); err != nil {
		c.log.Error("event-path cancellation", "order", orderID, "err", err)
	}
}

// RunSweep blocks until ctx is done, scanning on a fixed period for PENDING
// orders past the timeout and for coupon templates past their validity.
// Per-order failures are logged; the batch never aborts.
func (c *ExpirationCoordinator) RunSweep(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	c.log.Info("expiration sweep started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("expiration sweep stopped")
			return
		case <-t.C:
			c.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep pass.
func (c *ExpirationCoordinator) SweepOnce(ctx context.Context) {
	cutoff := c.now().Add(-c.lifecycle.PendingTTL())
	stale, err := c.lifecycle.orders.ListPendingBefore(ctx, cutoff)
	if err != nil {
		c.log.Error("sweep scan", "err", err)
	} else {
		for _, o := range stale {
			if err := c.CancelIfStillPending(ctx, o.ID, "sweep"); err != nil {
				c.log.Error("sweep cancellation", "order", o.ID, "err", err)
			}
		}
	}

	lapsed, err := c.coupons.ListLapsedTemplates(ctx, c.now())
	if err != nil {
		c.log.Error("sweep template scan", "err", err)
		return
	}
	for _, tpl := range lapsed {
		if _, err := c.ledger.ExpireTemplateHolders(ctx, tpl.ID, c.now()); err != nil {
			c.log.Error("sweep template expiry", "template", tpl.ID, "err", err)
		}
	}
}
