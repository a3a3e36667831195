package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lifecycleFixture struct {
	lifecycle *OrderLifecycle
	ledger    *CouponLedger
	orders    *fakeOrderRepo
	coupons   *fakeCouponRepo
	markers   *fakeMarkers
	cache     *fakeStatusCache
	notifier  *recordingNotifier
}

func newLifecycleFixture(pendingTTL time.Duration) *lifecycleFixture {
	orders := newFakeOrderRepo()
	coupons := newFakeCouponRepo()
	markers := newFakeMarkers()
	statusCache := newFakeStatusCache()
	notifier := &recordingNotifier{}
	ledger := NewCouponLedger(coupons, discardLogger())
	lc := NewOrderLifecycle(orders, coupons, ledger, markers, statusCache, notifier, nil, nil,
		pendingTTL, discardLogger())
	return &lifecycleFixture{
		lifecycle: lc, ledger: ledger, orders: orders,
		coupons: coupons, markers: markers, cache: statusCache, notifier: notifier,
	}
}

func (f *lifecycleFixture) seedCoupon(instanceID, userID string, discount, minSpend int64) {
	f.coupons.templates["tpl-1"] = &domain.CouponTemplate{
		ID: "tpl-1", Name: "test", DiscountCents: discount, MinSpendCents: minSpend,
		Total: 100, Remaining: 50,
		ValidFrom: time.Now().Add(-time.Hour), ValidTo: time.Now().Add(time.Hour),
	}
	f.coupons.instances[instanceID] = &domain.CouponInstance{
		ID: instanceID, UserID: userID, TemplateID: "tpl-1", Status: domain.CouponAvailable,
	}
}

func TestCreateOrderAppliesCouponDiscount(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	f.seedCoupon("cp-1", "u-1", 1000, 5000)

	// 3 × ¥25.00 with ¥10.00 off a ¥50.00 minimum → ¥65.00
	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID:           "u-1",
		Items:            []domain.OrderItem{{SkuID: "sku-1", Qty: 3, UnitPriceCents: 2500}},
		CouponInstanceID: "cp-1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6500), o.TotalCents)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, domain.CouponLocked, f.coupons.instanceStatus("cp-1"))
	assert.Equal(t, o.ID, f.coupons.instances["cp-1"].OrderID)
	assert.Equal(t, 30*time.Minute, f.markers.armed[o.ID])
}

func TestCreateOrderClampsDiscountToZero(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	f.seedCoupon("cp-1", "u-1", 10_000, 100)

	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID:           "u-1",
		Items:            []domain.OrderItem{{SkuID: "sku-1", Qty: 1, UnitPriceCents: 200}},
		CouponInstanceID: "cp-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), o.TotalCents)
}

func TestCreateOrderRejectsBadItems(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)

	tests := []struct {
		name  string
		items []domain.OrderItem
	}{
		{"no items", nil},
		{"zero qty", []domain.OrderItem{{SkuID: "s", Qty: 0, UnitPriceCents: 100}}},
		{"zero price", []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 0}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
				UserID: "u-1", Items: tc.items,
			})
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
}

func TestCreateOrderCouponValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *lifecycleFixture)
		items []domain.OrderItem
	}{
		{
			name:  "coupon owned by someone else",
			setup: func(f *lifecycleFixture) { f.seedCoupon("cp-1", "other-user", 1000, 0) },
			items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		},
		{
			name:  "subtotal below minimum spend",
			setup: func(f *lifecycleFixture) { f.seedCoupon("cp-1", "u-1", 1000, 10_000) },
			items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		},
		{
			name: "coupon not available",
			setup: func(f *lifecycleFixture) {
				f.seedCoupon("cp-1", "u-1", 1000, 0)
				f.coupons.instances["cp-1"].Status = domain.CouponUsed
			},
			items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		},
		{
			name: "template lapsed",
			setup: func(f *lifecycleFixture) {
				f.seedCoupon("cp-1", "u-1", 1000, 0)
				f.coupons.templates["tpl-1"].ValidTo = time.Now().Add(-time.Minute)
			},
			items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newLifecycleFixture(30 * time.Minute)
			tc.setup(f)
			_, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
				UserID: "u-1", Items: tc.items, CouponInstanceID: "cp-1",
			})
			assert.ErrorIs(t, err, domain.ErrInvalidCoupon)
			// a rejected coupon is never left locked
			assert.NotEqual(t, domain.CouponLocked, f.coupons.instanceStatus("cp-1"))
		})
	}
}

func TestPayConsumesCouponAndDisarmsMarker(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	f.seedCoupon("cp-1", "u-1", 1000, 0)

	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID:           "u-1",
		Items:            []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		CouponInstanceID: "cp-1",
	})
	require.NoError(t, err)

	paid, err := f.lifecycle.Pay(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, domain.CouponUsed, f.coupons.instanceStatus("cp-1"))
	assert.True(t, f.markers.disarmed[o.ID])

	// paying twice is a caller error
	_, err = f.lifecycle.Pay(context.Background(), o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelReleasesCouponAndIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	f.seedCoupon("cp-1", "u-1", 1000, 0)

	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID:           "u-1",
		Items:            []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		CouponInstanceID: "cp-1",
	})
	require.NoError(t, err)

	cancelled, err := f.lifecycle.Cancel(context.Background(), o.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, domain.CouponAvailable, f.coupons.instanceStatus("cp-1"))

	// second cancel: no-op success, coupon untouched
	again, err := f.lifecycle.Cancel(context.Background(), o.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, again.Status)
	assert.Equal(t, domain.CouponAvailable, f.coupons.instanceStatus("cp-1"))
}

func TestCancelPaidKeepsCouponUsed(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	f.seedCoupon("cp-1", "u-1", 1000, 0)

	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID:           "u-1",
		Items:            []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		CouponInstanceID: "cp-1",
	})
	require.NoError(t, err)
	_, err = f.lifecycle.Pay(context.Background(), o.ID)
	require.NoError(t, err)

	cancelled, err := f.lifecycle.Cancel(context.Background(), o.ID, "refund requested")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, domain.CouponUsed, f.coupons.instanceStatus("cp-1"))
}

func TestCompleteOnlyFromPaid(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)

	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u-1", Items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
	})
	require.NoError(t, err)

	_, err = f.lifecycle.Complete(context.Background(), o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.lifecycle.Pay(context.Background(), o.ID)
	require.NoError(t, err)

	done, err := f.lifecycle.Complete(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	// terminal: nothing moves a completed order
	_, err = f.lifecycle.Cancel(context.Background(), o.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestConcurrentPayCancelSingleWinner(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newLifecycleFixture(30 * time.Minute)
		o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
			UserID: "u-1", Items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var payErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, payErr = f.lifecycle.Pay(context.Background(), o.ID)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.lifecycle.Cancel(context.Background(), o.ID, "race")
		}()
		wg.Wait()

		final := f.orders.status(o.ID)
		switch {
		case payErr == nil && cancelErr == nil:
			// cancel landed after the payment; that path is legal
			assert.Equal(t, domain.StatusCancelled, final)
		case payErr == nil:
			assert.ErrorIs(t, cancelErr, domain.ErrInvalidTransition)
			assert.Equal(t, domain.StatusPaid, final)
		default:
			assert.ErrorIs(t, payErr, domain.ErrInvalidTransition)
			assert.NoError(t, cancelErr)
			assert.Equal(t, domain.StatusCancelled, final)
		}
	}
}

func TestConcurrentCancelAllSucceed(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	f.seedCoupon("cp-1", "u-1", 1000, 0)
	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID:           "u-1",
		Items:            []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
		CouponInstanceID: "cp-1",
	})
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.lifecycle.Cancel(context.Background(), o.ID, "race")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
	}
	assert.Equal(t, domain.StatusCancelled, f.orders.status(o.ID))
	assert.Equal(t, domain.CouponAvailable, f.coupons.instanceStatus("cp-1"))
}

func TestTransitionsPushStatusToOwner(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u-1", Items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
	})
	require.NoError(t, err)

	_, err = f.lifecycle.Pay(context.Background(), o.ID)
	require.NoError(t, err)

	last, ok := f.notifier.last()
	require.True(t, ok)
	assert.Equal(t, "u-1", last.UserID)
	assert.Equal(t, o.ID, last.OrderID)
	assert.Equal(t, domain.StatusPaid, last.Status)
}

func TestOrderStatusServedFromProjection(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u-1", Items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
	})
	require.NoError(t, err)

	// overwrite the projection: a cache hit must win over the repo
	require.NoError(t, f.cache.SetStatus(context.Background(), o.ID, string(domain.StatusPaid)))
	st, err := f.lifecycle.OrderStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, st)
}

func TestOrderStatusMissFallsBackAndRefills(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u-1", Items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
	})
	require.NoError(t, err)

	f.cache.drop(o.ID)
	st, err := f.lifecycle.OrderStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, st)

	// the miss refilled the projection
	v, ok, err := f.cache.GetStatus(context.Background(), o.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(domain.StatusPending), v)
}

func TestOrderStatusSurvivesCacheOutage(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	o, err := f.lifecycle.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u-1", Items: []domain.OrderItem{{SkuID: "s", Qty: 1, UnitPriceCents: 5000}},
	})
	require.NoError(t, err)

	f.cache.failRead = true
	st, err := f.lifecycle.OrderStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, st)
}

func TestOrderStatusUnknownOrder(t *testing.T) {
	f := newLifecycleFixture(30 * time.Minute)
	_, err := f.lifecycle.OrderStatus(context.Background(), "no-such-order")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
