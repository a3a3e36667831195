package usecase

import (
	"context"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
)

type OrderRepo interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// UpdateStatusIf flips status only when the stored value still equals
	// fromStatus. Returns false (no error) when nothing matched.
	UpdateStatusIf(ctx context.Context, id string, fromStatus, toStatus domain.Status) (bool, error)
	// ListPendingBefore returns PENDING orders created before the cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.Order, error)
}

type CouponRepo interface {
	GetInstance(ctx context.Context, id string) (*domain.CouponInstance, error)
	GetTemplate(ctx context.Context, id string) (*domain.CouponTemplate, error)
	CreateInstance(ctx context.Context, inst *domain.CouponInstance) error
	// UpdateInstanceStatusIf is the per-instance CAS: status moves from→to
	// only if it still equals from; orderID is stored alongside (empty
	// clears the binding). Returns false when the swap lost.
	UpdateInstanceStatusIf(ctx context.Context, id string, from, to domain.CouponStatus, orderID string) (bool, error)
	// DecrementRemaining takes one unit off the template's remaining count,
	// guarded against going below zero. Returns false when exhausted.
	DecrementRemaining(ctx context.Context, templateID string) (bool, error)
	// ExpireInstances marks every AVAILABLE or LOCKED instance of the
	// template EXPIRED and returns how many rows changed.
	ExpireInstances(ctx context.Context, templateID string) (int64, error)
	// ListLapsedTemplates returns templates whose validity window ended
	// before now.
	ListLapsedTemplates(ctx context.Context, now time.Time) ([]*domain.CouponTemplate, error)
}

// MarkerStore arms the per-order expiration marker whose TTL drives the
// event-delivery expiry path.
type MarkerStore interface {
	Arm(ctx context.Context, orderID string, ttl time.Duration) error
	Disarm(ctx context.Context, orderID string) error
}

// Notifier pushes a status-change message to the owning user's live
// connection, if any. Best-effort: implementations never return delivery
// failures to the caller.
type Notifier interface {
	NotifyOrderStatus(userID, orderID string, status domain.Status, title, content string)
}

// CreatedPublisher hands a fresh order to the fulfillment pipeline.
type CreatedPublisher interface {
	PublishCreated(ctx context.Context, msg OrderCreatedMsg) error
}

// StatusPublisher streams status transitions to downstream systems.
type StatusPublisher interface {
	PublishStatusChanged(ctx context.Context, msg OrderStatusChangedMsg) error
}

// OrderCache is the status projection: written on every transition, read
// first on status lookups. A miss is (_, false, nil), not an error.
type OrderCache interface {
	SetStatus(ctx context.Context, orderID string, status string) error
	GetStatus(ctx context.Context, orderID string) (string, bool, error)
}
