package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for query pacing.
var (
	pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "seer_pacer_wait_seconds",
		Help:    "Time a query waited for its slot",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	pacerWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seer_pacer_waits_total",
		Help: "Total number of queries delayed to stay inside the query budget",
	})

	pacerStoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seer_pacer_store_errors_total",
		Help: "Total number of pacing store failures (local pacing used instead)",
	})
)

// Pacer spaces query starts at least Config.Interval apart.
type Pacer struct {
	store    Store
	fallback *MemoryStore
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPacer creates a pacer over store. A nil store paces within this
// process only.
func NewPacer(store Store, cfg Config, logger zerolog.Logger) *Pacer {
	fallback := NewMemoryStore()
	if store == nil {
		store = fallback
	}
	return &Pacer{
		store:    store,
		fallback: fallback,
		interval: cfg.Interval(),
		now:      time.Now,
		logger:   logger,
	}
}

// Interval returns the spacing enforced between queries.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until the caller may start a query. It returns early with
// the context's error if ctx is done first.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return nil
	}

	now := p.now()
	slot, err := p.store.Reserve(ctx, now, p.interval)
	if err != nil {
		pacerStoreErrorsTotal.Inc()
		p.logger.Warn().Err(err).Msg("Pacing store unavailable, pacing locally")
		slot, _ = p.fallback.Reserve(ctx, now, p.interval)
	}

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}

	pacerWaitsTotal.Inc()
	pacerWaitSeconds.Observe(wait.Seconds())
	p.logger.Debug().Dur("wait", wait).Msg("Waiting for query slot")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
