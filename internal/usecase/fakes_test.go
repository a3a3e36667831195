package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) UpdateStatusIf(_ context.Context, id string, from, to domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (r *fakeOrderRepo) ListPendingBefore(_ context.Context, cutoff time.Time) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.StatusPending && o.CreatedAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) status(id string) domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id].Status
}

type fakeCouponRepo struct {
	mu        sync.Mutex
	instances map[string]*domain.CouponInstance
	templates map[string]*domain.CouponTemplate
}

func newFakeCouponRepo() *fakeCouponRepo {
	return &fakeCouponRepo{
		instances: make(map[string]*domain.CouponInstance),
		templates: make(map[string]*domain.CouponTemplate),
	}
}

func (r *fakeCouponRepo) GetInstance(_ context.Context, id string) (*domain.CouponInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.instances[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCouponRepo) GetTemplate(_ context.Context, id string) (*domain.CouponTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeCouponRepo) CreateInstance(_ context.Context, inst *domain.CouponInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inst
	r.instances[inst.ID] = &cp
	return nil
}

func (r *fakeCouponRepo) UpdateInstanceStatusIf(_ context.Context, id string, from, to domain.CouponStatus, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.instances[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.OrderID = orderID
	return true, nil
}

func (r *fakeCouponRepo) DecrementRemaining(_ context.Context, templateID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[templateID]
	if !ok || t.Remaining <= 0 {
		return false, nil
	}
	t.Remaining--
	return true, nil
}

func (r *fakeCouponRepo) ExpireInstances(_ context.Context, templateID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.instances {
		if c.TemplateID != templateID {
			continue
		}
		if c.Status == domain.CouponAvailable || c.Status == domain.CouponLocked {
			c.Status = domain.CouponExpired
			n++
		}
	}
	return n, nil
}

func (r *fakeCouponRepo) ListLapsedTemplates(_ context.Context, now time.Time) ([]*domain.CouponTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CouponTemplate
	for _, t := range r.templates {
		if t.ValidTo.Before(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCouponRepo) instanceStatus(id string) domain.CouponStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id].Status
}

type fakeMarkers struct {
	mu       sync.Mutex
	armed    map[string]time.Duration
	disarmed map[string]bool
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{armed: make(map[string]time.Duration), disarmed: make(map[string]bool)}
}

func (m *fakeMarkers) Arm(_ context.Context, orderID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[orderID] = ttl
	return nil
}

func (m *fakeMarkers) Disarm(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disarmed[orderID] = true
	return nil
}

type fakeStatusCache struct {
	mu       sync.Mutex
	statuses map[string]string
	failRead bool
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{statuses: make(map[string]string)}
}

func (c *fakeStatusCache) SetStatus(_ context.Context, orderID, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[orderID] = status
	return nil
}

func (c *fakeStatusCache) GetStatus(_ context.Context, orderID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRead {
		return "", false, errors.New("cache down")
	}
	v, ok := c.statuses[orderID]
	return v, ok, nil
}

func (c *fakeStatusCache) drop(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, orderID)
}

type pushRecord struct {
	UserID  string
	OrderID string
	Status  domain.Status
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []pushRecord
}

func (n *recordingNotifier) NotifyOrderStatus(userID, orderID string, status domain.Status, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, pushRecord{UserID: userID, OrderID: orderID, Status: status})
}

func (n *recordingNotifier) last() (pushRecord, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pushes) == 0 {
		return pushRecord{}, false
	}
	return n.pushes[len(n.pushes)-1], true
}
