package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLedger(remaining int64, validTo time.Time) (*CouponLedger, *fakeCouponRepo) {
	coupons := newFakeCouponRepo()
	coupons.templates["tpl-1"] = &domain.CouponTemplate{
		ID: "tpl-1", Name: "test", DiscountCents: 1000, MinSpendCents: 0,
		Total: remaining, Remaining: remaining,
		ValidFrom: time.Now().Add(-time.Hour), ValidTo: validTo,
	}
	return NewCouponLedger(coupons, discardLogger()), coupons
}

func TestLockConcurrentSingleWinner(t *testing.T) {
	ledger, coupons := seedLedger(10, time.Now().Add(time.Hour))
	coupons.instances["cp-1"] = &domain.CouponInstance{
		ID: "cp-1", UserID: "u-1", TemplateID: "tpl-1", Status: domain.CouponAvailable,
	}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ledger.Lock(context.Background(), "cp-1", fmt.Sprintf("order-%d", i))
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, domain.ErrCouponUnavailable)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, domain.CouponLocked, coupons.instanceStatus("cp-1"))
	assert.NotEmpty(t, coupons.instances["cp-1"].OrderID)
}

func TestUnlockIsNoopUnlessLocked(t *testing.T) {
	ledger, coupons := seedLedger(10, time.Now().Add(time.Hour))

	for _, st := range []domain.CouponStatus{domain.CouponAvailable, domain.CouponUsed, domain.CouponExpired} {
		coupons.instances["cp-1"] = &domain.CouponInstance{
			ID: "cp-1", UserID: "u-1", TemplateID: "tpl-1", Status: st,
		}
		require.NoError(t, ledger.Unlock(context.Background(), "cp-1"))
		assert.Equal(t, st, coupons.instanceStatus("cp-1"))
	}
}

func TestUnlockReleasesLockedInstance(t *testing.T) {
	ledger, coupons := seedLedger(10, time.Now().Add(time.Hour))
	coupons.instances["cp-1"] = &domain.CouponInstance{
		ID: "cp-1", UserID: "u-1", TemplateID: "tpl-1", Status: domain.CouponLocked, OrderID: "o-1",
	}

	require.NoError(t, ledger.Unlock(context.Background(), "cp-1"))
	assert.Equal(t, domain.CouponAvailable, coupons.instanceStatus("cp-1"))
	assert.Empty(t, coupons.instances["cp-1"].OrderID)
}

func TestConsumeRequiresLocked(t *testing.T) {
	ledger, coupons := seedLedger(10, time.Now().Add(time.Hour))
	coupons.instances["cp-1"] = &domain.CouponInstance{
		ID: "cp-1", UserID: "u-1", TemplateID: "tpl-1", Status: domain.CouponAvailable,
	}

	err := ledger.Consume(context.Background(), "cp-1")
	assert.ErrorIs(t, err, domain.ErrCouponUnavailable)

	coupons.instances["cp-1"].Status = domain.CouponLocked
	coupons.instances["cp-1"].OrderID = "o-1"
	require.NoError(t, ledger.Consume(context.Background(), "cp-1"))
	assert.Equal(t, domain.CouponUsed, coupons.instanceStatus("cp-1"))
}

func TestIssueDecrementsRemainingOnce(t *testing.T) {
	ledger, coupons := seedLedger(2, time.Now().Add(time.Hour))

	first, err := ledger.Issue(context.Background(), "tpl-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CouponAvailable, first.Status)

	_, err = ledger.Issue(context.Background(), "tpl-1", "u-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), coupons.templates["tpl-1"].Remaining)

	_, err = ledger.Issue(context.Background(), "tpl-1", "u-3")
	assert.ErrorIs(t, err, domain.ErrCouponUnavailable)
}

func TestIssueRejectsLapsedTemplate(t *testing.T) {
	ledger, _ := seedLedger(10, time.Now().Add(-time.Minute))

	_, err := ledger.Issue(context.Background(), "tpl-1", "u-1")
	assert.ErrorIs(t, err, domain.ErrCouponUnavailable)
}

func TestExpireTemplateHolders(t *testing.T) {
	ledger, coupons := seedLedger(10, time.Now().Add(-time.Minute))
	coupons.instances["cp-a"] = &domain.CouponInstance{ID: "cp-a", TemplateID: "tpl-1", Status: domain.CouponAvailable}
	coupons.instances["cp-l"] = &domain.CouponInstance{ID: "cp-l", TemplateID: "tpl-1", Status: domain.CouponLocked, OrderID: "o-1"}
	coupons.instances["cp-u"] = &domain.CouponInstance{ID: "cp-u", TemplateID: "tpl-1", Status: domain.CouponUsed}
	coupons.instances["cp-other"] = &domain.CouponInstance{ID: "cp-other", TemplateID: "tpl-2", Status: domain.CouponAvailable}
	coupons.templates["tpl-2"] = &domain.CouponTemplate{ID: "tpl-2", ValidTo: time.Now().Add(time.Hour)}

	n, err := ledger.ExpireTemplateHolders(context.Background(), "tpl-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, domain.CouponExpired, coupons.instanceStatus("cp-a"))
	assert.Equal(t, domain.CouponExpired, coupons.instanceStatus("cp-l"))
	assert.Equal(t, domain.CouponUsed, coupons.instanceStatus("cp-u"))
	assert.Equal(t, domain.CouponAvailable, coupons.instanceStatus("cp-other"))
}

func TestExpireTemplateHoldersSkipsLiveTemplate(t *testing.T) {
	ledger, coupons := seedLedger(10, time.Now().Add(time.Hour))
	coupons.instances["cp-a"] = &domain.CouponInstance{ID: "cp-a", TemplateID: "tpl-1", Status: domain.CouponAvailable}

	n, err := ledger.ExpireTemplateHolders(context.Background(), "tpl-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, domain.CouponAvailable, coupons.instanceStatus("cp-a"))
}
