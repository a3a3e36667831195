package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	domain "github.com/npquoc/mallcore/internal/entity"
)

type CreateOrderInput struct {
	UserID           string
	StoreID          string
	Items            []domain.OrderItem
	CouponInstanceID string
}

// OrderLifecycle drives the order state machine. All transitions go through
// the repo's conditional status update, so a concurrent Pay/Cancel race on
// one order has exactly one winner; the loser observes ErrInvalidTransition.
type OrderLifecycle struct {
	orders     OrderRepo
	coupons    CouponRepo
	ledger     *CouponLedger
	markers    MarkerStore
	cache      OrderCache
	notifier   Notifier
	created    CreatedPublisher
	statusPub  StatusPublisher
	pendingTTL time.Duration
	log        *slog.Logger
	now        func() time.Time
}

func NewOrderLifecycle(orders OrderRepo, coupons CouponRepo, ledger *CouponLedger,
	markers MarkerStore, cache OrderCache, notifier Notifier,
	created CreatedPublisher, statusPub StatusPublisher,
	pendingTTL time.Duration, log *slog.Logger) *OrderLifecycle {
	return &OrderLifecycle{
		orders:     orders,
		coupons:    coupons,
		ledger:     ledger,
		markers:    markers,
		cache:      cache,
		notifier:   notifier,
		created:    created,
		statusPub:  statusPub,
		pendingTTL: pendingTTL,
		log:        log,
		now:        time.Now,
	}
}

// PendingTTL is the timeout after which an unpaid order is eligible for
// cancellation by the expiration watchdog.
func (s *OrderLifecycle) PendingTTL() time.Duration { return s.pendingTTL }

func (s *OrderLifecycle) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// OrderStatus serves the hot status poll from the cache projection; a miss
// or a cache error falls back to the repo and refreshes the projection.
func (s *OrderLifecycle) OrderStatus(ctx context.Context, id string) (domain.Status, error) {
	if s.cache != nil {
		v, ok, err := s.cache.GetStatus(ctx, id)
		if err != nil {
			s.log.Warn("status cache read", "order", id, "err", err)
		} else if ok {
			return domain.Status(v), nil
		}
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, o.ID, string(o.Status)); err != nil {
			s.log.Error("cache order status", "order", o.ID, "err", err)
		}
	}
	return o.Status, nil
}

// CreateOrder validates items and the optional coupon, locks the coupon,
// freezes the total (discount clamped so it never goes negative), persists
// the order PENDING and arms its expiration marker.
func (s *OrderLifecycle) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	o := &domain.Order{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		StoreID:          in.StoreID,
		Items:            in.Items,
		CouponInstanceID: in.CouponInstanceID,
		Status:           domain.StatusPending,
		CreatedAt:        s.now(),
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	subtotal := o.SubtotalCents()
	var discount int64
	if in.CouponInstanceID != "" {
		inst, err := s.coupons.GetInstance(ctx, in.CouponInstanceID)
		if err != nil {
			return nil, fmt.Errorf("get coupon instance: %w", err)
		}
		tpl, err := s.coupons.GetTemplate(ctx, inst.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("get coupon template: %w", err)
		}
		if err := inst.Applicable(tpl, in.UserID, subtotal, o.CreatedAt); err != nil {
			return nil, err
		}
		if err := s.ledger.Lock(ctx, in.CouponInstanceID, o.ID); err != nil {
			return nil, err
		}
		discount = tpl.DiscountCents
	}

	o.TotalCents = subtotal - discount
	if o.TotalCents < 0 {
		o.TotalCents = 0
	}

	if err := s.orders.Create(ctx, o); err != nil {
		if in.CouponInstanceID != "" {
			// compensate: the order never existed, release the coupon
			if uerr := s.ledger.Unlock(ctx, in.CouponInstanceID); uerr != nil {
				s.log.Error("coupon unlock after failed create", "coupon", in.CouponInstanceID, "err", uerr)
			}
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}

	// The marker's TTL expiry is the fast cancellation path. Losing it is
	// tolerable: the periodic sweep backstops it.
	if err := s.markers.Arm(ctx, o.ID, s.pendingTTL); err != nil {
		s.log.Error("arm expiration marker", "order", o.ID, "err", err)
	}
	s.afterTransition(ctx, o, "")

	return o, nil
}

// Pay transitions PENDING→PAID, burns the locked coupon and disarms the
// expiration marker.
func (s *OrderLifecycle) Pay(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(o.Status, domain.StatusPaid) {
		return nil, domain.ErrInvalidTransition
	}
	ok, err := s.orders.UpdateStatusIf(ctx, orderID, domain.StatusPending, domain.StatusPaid)
	if err != nil {
		return nil, fmt.Errorf("pay order %s: %w", orderID, err)
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	o.Status = domain.StatusPaid

	if o.CouponInstanceID != "" {
		if err := s.ledger.Consume(ctx, o.CouponInstanceID); err != nil {
			// payment already landed; the coupon may have been force-expired
			s.log.Error("consume coupon on pay", "order", orderID, "coupon", o.CouponInstanceID, "err", err)
		}
	}
	if err := s.markers.Disarm(ctx, orderID); err != nil {
		s.log.Error("disarm expiration marker", "order", orderID, "err", err)
	}
	s.afterTransition(ctx, o, "")

	return o, nil
}

// Cancel transitions PENDING or PAID to CANCELLED and releases a locked
// coupon. Cancelling an already-cancelled order is a no-op success.
func (s *OrderLifecycle) Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == domain.StatusCancelled {
		return o, nil
	}
	if !domain.CanTransition(o.Status, domain.StatusCancelled) {
		return nil, domain.ErrInvalidTransition
	}

	from := o.Status
	ok, err := s.orders.UpdateStatusIf(ctx, orderID, from, domain.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if !ok {
		// lost a race; idempotent only when the winner also cancelled
		cur, gerr := s.orders.GetByID(ctx, orderID)
		if gerr == nil && cur.Status == domain.StatusCancelled {
			return cur, nil
		}
		return nil, domain.ErrInvalidTransition
	}
	o.Status = domain.StatusCancelled

	// A coupon locked by a pending order goes back to the user. A USED
	// coupon stays used: refund semantics are out of scope here.
	if from == domain.StatusPending && o.CouponInstanceID != "" {
		if err := s.ledger.Unlock(ctx, o.CouponInstanceID); err != nil {
			s.log.Error("unlock coupon on cancel", "order", orderID, "coupon", o.CouponInstanceID, "err", err)
		}
	}
	if err := s.markers.Disarm(ctx, orderID); err != nil {
		s.log.Error("disarm expiration marker", "order", orderID, "err", err)
	}
	s.afterTransition(ctx, o, reason)

	return o, nil
}

// Complete transitions PAID→COMPLETED. Terminal.
func (s *OrderLifecycle) Complete(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(o.Status, domain.StatusCompleted) {
		return nil, domain.ErrInvalidTransition
	}
	ok, err := s.orders.UpdateStatusIf(ctx, orderID, domain.StatusPaid, domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("complete order %s: %w", orderID, err)
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}
	o.Status = domain.StatusCompleted
	s.afterTransition(ctx, o, "")
	return o, nil
}

// afterTransition does the best-effort fan-out shared by every transition:
// status cache, live push, downstream events. Failures are logged, never
// surfaced to the business operation.
func (s *OrderLifecycle) afterTransition(ctx context.Context, o *domain.Order, reason string) {
	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, o.ID, string(o.Status)); err != nil {
			s.log.Error("cache order status", "order", o.ID, "err", err)
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyOrderStatus(o.UserID, o.ID, o.Status,
			"Order "+string(o.Status), orderStatusContent(o.Status, reason))
	}
	if o.Status == domain.StatusPending {
		if s.created != nil {
			if err := s.created.PublishCreated(ctx, OrderCreatedMsg{
				OrderID: o.ID, UserID: o.UserID, StoreID: o.StoreID, TotalCents: o.TotalCents,
			}); err != nil {
				s.log.Error("publish order.created", "order", o.ID, "err", err)
			}
		}
		return
	}
	if s.statusPub != nil {
		if err := s.statusPub.PublishStatusChanged(ctx, OrderStatusChangedMsg{
			OrderID: o.ID, UserID: o.UserID, Status: string(o.Status), Reason: reason,
		}); err != nil {
			s.log.Error("publish status change", "order", o.ID, "err", err)
		}
	}
}

func orderStatusContent(st domain.Status, reason string) string {
	switch st {
	case domain.StatusPaid:
		return "your payment was received"
	case domain.StatusCompleted:
		return "your order is complete"
	case domain.StatusCancelled:
		if reason != "" {
			return "your order was cancelled: " + reason
		}
		return "your order was cancelled"
	default:
		return "your order was placed"
	}
}
