package app

import (
	"context"
	"fmt"
	"time"

	"tradedash/internal/ports"
)

// DefaultRefreshInterval is the dashboard poll cadence when none is
// configured.
const DefaultRefreshInterval = 60 * time.Second

// Runner drives the periodic reconcile loop: on each tick it refreshes the
// dashboard, feeds the recent-orders stream into the order store and then
// refreshes the current order page. The engine stays authoritative; the loop
// converges local optimistic patches to engine truth.
type Runner struct {
	orders     *OrderStore
	strategies *StrategyStore
	logger     ports.Logger
	interval   time.Duration
}

// RunnerConfig holds the dependencies for a Runner.
type RunnerConfig struct {
	Orders     *OrderStore
	Strategies *StrategyStore
	Logger     ports.Logger
	Interval   time.Duration
}

// NewRunner creates a new reconcile loop runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Orders == nil || cfg.Strategies == nil {
		return nil, fmt.Errorf("order and strategy stores are required for runner")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for runner")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	return &Runner{
		orders:     cfg.Orders,
		strategies: cfg.Strategies,
		logger:     cfg.Logger,
		interval:   cfg.Interval,
	}, nil
}

// SyncOnce performs one full reconcile round trip. Partial failures are
// logged and the remaining steps still run; the stores keep their last-known
// state for whatever could not be fetched.
func (r *Runner) SyncOnce(ctx context.Context) {
	recent, err := r.strategies.RefreshDashboard(ctx)
	if err == nil {
		r.orders.ApplyEngine(ctx, recent)
	}
	if err := r.orders.Refresh(ctx); err != nil {
		r.logger.Warn(ctx, "Order refresh failed during sync", map[string]interface{}{"error": err.Error()})
	}
}

// Run blocks, reconciling on the configured interval until the context is
// canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info(ctx, "Reconcile loop started", map[string]interface{}{"interval": r.interval.String()})
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "Reconcile loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.SyncOnce(ctx)
		}
	}
}
