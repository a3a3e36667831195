package ratelimit

import (
	"context"
	"fmt"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_gate_rejections_total",
		Help: "Requests rejected by the admission gate, by rule",
	},
	[]string{"rule"},
)

// CounterStore backs the gate's windowed counters. Incr returns the
// post-increment count; the first increment of a key must arm its expiry at
// window. Arming twice for the same key is harmless.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Rule is one declared admission limit for a route, applied per caller.
type Rule struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Gate is a fixed-window admission counter keyed by (rule, caller). The
// window boundary is fixed, not rolling: a burst spanning a boundary can
// momentarily pass up to 2×limit. Accepted approximation.
type Gate struct {
	store CounterStore
}

func NewGate(store CounterStore) *Gate {
	return &Gate{store: store}
}

// Admit counts the request against (rule, caller) and returns
// ErrRateLimited once the window's count exceeds the limit. The increment
// is never rolled back on rejection.
func (g *Gate) Admit(ctx context.Context, r Rule, caller string) error {
	key := "rate:" + r.Name + ":" + caller
	n, err := g.store.Incr(ctx, key, r.Window)
	if err != nil {
		return fmt.Errorf("rate counter %s: %w", key, err)
	}
	if n > r.Limit {
		rejections.WithLabelValues(r.Name).Inc()
		return domain.ErrRateLimited
	}
	return nil
}
