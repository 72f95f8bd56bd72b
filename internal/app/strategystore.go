package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradedash/internal/adapt"
	"tradedash/internal/analytics"
	"tradedash/internal/domain"
	"tradedash/internal/ports"
)

// StrategySnapshot is a point-in-time copy of the strategy store's state.
type StrategySnapshot struct {
	Strategies   []*domain.Strategy     // the user's activated strategies
	Catalog      []*domain.Strategy     // marketplace browse list
	Portfolio    ports.PortfolioSummary
	User         ports.UserInfo
	SystemStatus string
	Loading      bool
	Submitting   bool
	LastError    error
}

// StrategyStore owns the user's strategy collection and the marketplace
// catalog. Lifecycle actions (activate, pause, resume, deactivate) are
// validated against the local status graph before any remote call, then
// reconciled from the engine's response.
type StrategyStore struct {
	client ports.EngineClient
	repo   ports.StrategyRepository
	logger ports.Logger
	now    func() time.Time

	mu           sync.RWMutex
	strategies   []*domain.Strategy
	catalog      []*domain.Strategy
	filter       ports.StrategyFilter
	rawCatalog   map[string]ports.EngineStrategy
	portfolio    ports.PortfolioSummary
	user         ports.UserInfo
	systemStatus string
	loading      bool
	lastError    error

	guard *submitGuard

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// StrategyStoreConfig holds the dependencies for a StrategyStore.
type StrategyStoreConfig struct {
	Client ports.EngineClient
	Repo   ports.StrategyRepository // optional mirror
	Logger ports.Logger
	Now    func() time.Time
}

// NewStrategyStore creates a new strategy store.
func NewStrategyStore(cfg StrategyStoreConfig) (*StrategyStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("engine client is required for strategy store")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for strategy store")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &StrategyStore{
		client:     cfg.Client,
		repo:       cfg.Repo,
		logger:     cfg.Logger,
		now:        cfg.Now,
		filter:     DefaultMarketplaceFilter(),
		rawCatalog: make(map[string]ports.EngineStrategy),
		guard:      newSubmitGuard(),
		subs:       make(map[int]func()),
	}, nil
}

// DefaultMarketplaceFilter returns an unfiltered first-page catalog request.
func DefaultMarketplaceFilter() ports.StrategyFilter {
	return ports.StrategyFilter{Page: 1, Limit: DefaultPageSize}
}

// RefreshMarketplace fetches the strategy catalog and replaces the browse
// list. The raw entries are retained so later activation records can be
// enriched with catalog metadata.
func (s *StrategyStore) RefreshMarketplace(ctx context.Context, f ports.StrategyFilter) error {
	op := "RefreshMarketplace"

	s.setLoading(true)
	s.notify()

	entries, err := s.client.Marketplace(ctx, f)

	if err != nil {
		actionErr := ports.NewActionError(op, "", err)
		s.mu.Lock()
		s.loading = false
		s.lastError = actionErr
		s.mu.Unlock()
		s.logger.Error(ctx, err, "Marketplace refresh failed")
		s.notify()
		return actionErr
	}

	now := s.now()
	catalog := make([]*domain.Strategy, 0, len(entries))
	raw := make(map[string]ports.EngineStrategy, len(entries))
	for _, e := range entries {
		catalog = append(catalog, adapt.StrategyFromCatalog(e, now))
		raw[e.StrategyID] = e
	}

	s.mu.Lock()
	s.loading = false
	s.catalog = catalog
	for id, e := range raw {
		s.rawCatalog[id] = e
	}
	s.lastError = nil
	s.mu.Unlock()

	s.logger.Debug(ctx, "Marketplace refreshed", map[string]interface{}{"count": len(catalog)})
	s.notify()
	return nil
}

// RefreshDashboard fetches the per-user aggregate and replaces the activated
// strategy collection. It returns the dashboard's recent engine orders so the
// caller can feed them to the order store.
func (s *StrategyStore) RefreshDashboard(ctx context.Context) ([]ports.EngineOrder, error) {
	op := "RefreshDashboard"

	s.setLoading(true)
	s.notify()

	d, err := s.client.Dashboard(ctx)

	if err != nil {
		actionErr := ports.NewActionError(op, "", err)
		s.mu.Lock()
		s.loading = false
		s.lastError = actionErr
		s.mu.Unlock()
		s.logger.Error(ctx, err, "Dashboard refresh failed")
		s.notify()
		return nil, actionErr
	}

	s.mu.Lock()
	catalog := make([]ports.EngineStrategy, 0, len(s.rawCatalog))
	for _, e := range s.rawCatalog {
		catalog = append(catalog, e)
	}
	s.mu.Unlock()

	strategies := adapt.StrategiesFromDashboard(d.ActiveStrategies, catalog, s.now())

	s.mu.Lock()
	s.loading = false
	s.strategies = strategies
	s.portfolio = d.PortfolioSummary
	s.user = d.UserInfo
	s.systemStatus = d.SystemStatus
	s.lastError = nil
	s.mu.Unlock()

	s.mirrorAll(ctx, strategies)
	s.logger.Debug(ctx, "Dashboard refreshed", map[string]interface{}{
		"strategies": len(strategies), "recentOrders": len(d.RecentOrders),
	})
	s.notify()
	return d.RecentOrders, nil
}

// SetMarketplaceFilter replaces the server-side catalog filter and refetches
// from the first page.
func (s *StrategyStore) SetMarketplaceFilter(ctx context.Context, f ports.StrategyFilter) error {
	f.Page = 1
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	return s.RefreshMarketplace(ctx, f)
}

// SetMarketplacePage moves the catalog cursor and refetches.
func (s *StrategyStore) SetMarketplacePage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.filter.Page = page
	f := s.filter
	s.mu.Unlock()
	return s.RefreshMarketplace(ctx, f)
}

// Search filters the user's loaded strategies client-side by case-insensitive
// substring match over name, identifier and traded symbols. It never issues a
// remote call.
func (s *StrategyStore) Search(query string) []*domain.Strategy {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Strategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		if q == "" || strategyMatches(st, q) {
			out = append(out, st.Clone())
		}
	}
	return out
}

func strategyMatches(st *domain.Strategy, q string) bool {
	if strings.Contains(strings.ToLower(st.Name), q) || strings.Contains(strings.ToLower(st.ID), q) {
		return true
	}
	for _, sym := range st.Symbols {
		if strings.Contains(strings.ToLower(sym), q) {
			return true
		}
	}
	return false
}

// Activate activates a strategy with the given capital allocation.
func (s *StrategyStore) Activate(ctx context.Context, id string, allocation decimal.Decimal) error {
	op := "ActivateStrategy"
	if err := s.validateTransition(op, id, domain.StrategyActive); err != nil {
		return err
	}
	return s.lifecycle(ctx, op, id, "", func(ctx context.Context) (*ports.UserStrategy, error) {
		return s.client.ActivateStrategy(ctx, id, allocation)
	})
}

// Deactivate stops a running or paused strategy and releases its allocation.
// The engine's status vocabulary has no stopped token (a deactivated strategy
// reverts to "available"), so the local record is forced to STOPPED rather
// than patched from the response.
func (s *StrategyStore) Deactivate(ctx context.Context, id string) error {
	op := "DeactivateStrategy"
	if err := s.validateTransition(op, id, domain.StrategyStopped); err != nil {
		return err
	}
	return s.lifecycle(ctx, op, id, domain.StrategyStopped, func(ctx context.Context) (*ports.UserStrategy, error) {
		return s.client.DeactivateStrategy(ctx, id)
	})
}

// Pause suspends signal execution. Only an active strategy can be paused.
func (s *StrategyStore) Pause(ctx context.Context, id string) error {
	op := "PauseStrategy"
	if err := s.validateTransition(op, id, domain.StrategyPaused); err != nil {
		return err
	}
	return s.lifecycle(ctx, op, id, "", func(ctx context.Context) (*ports.UserStrategy, error) {
		return s.client.PauseStrategy(ctx, id)
	})
}

// Resume resumes a paused strategy.
func (s *StrategyStore) Resume(ctx context.Context, id string) error {
	op := "ResumeStrategy"

	s.mu.RLock()
	existing := s.findLocked(id)
	s.mu.RUnlock()
	if existing != nil && existing.Status != domain.StrategyPaused {
		return ports.NewActionError(op, id, fmt.Errorf("%s failed: %w: strategy is %s", op, ports.ErrInvalidTransition, existing.Status))
	}

	return s.lifecycle(ctx, op, id, "", func(ctx context.Context) (*ports.UserStrategy, error) {
		return s.client.ResumeStrategy(ctx, id)
	})
}

// Update applies a structural update. On success the local record's version
// counter is bumped so concurrent readers can detect the change.
func (s *StrategyStore) Update(ctx context.Context, id string, upd ports.StrategyUpdate) error {
	op := "UpdateStrategy"

	if !s.beginSubmit(op, id) {
		return ports.NewActionError(op, id, ports.ErrAlreadySubmitting)
	}
	defer s.endSubmit(op, id)

	s.setError(nil)

	updated, err := s.client.UpdateStrategy(ctx, id, upd)
	if err != nil {
		actionErr := ports.NewActionError(op, id, err)
		s.setError(actionErr)
		s.logger.Error(ctx, err, "Strategy update failed", map[string]interface{}{"strategyID": id})
		s.notify()
		return actionErr
	}

	s.mu.Lock()
	existing := s.findLocked(id)
	if existing != nil {
		applyStrategyUpdate(existing, upd)
		existing.Status = domain.StrategyStatusFromEngine(updated.Status)
		existing.Version++
		existing.UpdatedAt = s.now()
		existing = existing.Clone()
	}
	s.lastError = nil
	s.mu.Unlock()

	if existing != nil {
		s.mirror(ctx, existing)
	}
	s.logger.Info(ctx, "Strategy updated", map[string]interface{}{"strategyID": id})
	s.notify()
	return nil
}

// Delete removes the per-user strategy record. On success the collection
// shrinks by one.
func (s *StrategyStore) Delete(ctx context.Context, id string) error {
	op := "DeleteStrategy"

	if !s.beginSubmit(op, id) {
		return ports.NewActionError(op, id, ports.ErrAlreadySubmitting)
	}
	defer s.endSubmit(op, id)

	s.setError(nil)

	if err := s.client.DeleteStrategy(ctx, id); err != nil {
		actionErr := ports.NewActionError(op, id, err)
		s.setError(actionErr)
		s.logger.Error(ctx, err, "Strategy delete failed", map[string]interface{}{"strategyID": id})
		s.notify()
		return actionErr
	}

	s.mu.Lock()
	for i, st := range s.strategies {
		if st.ID == id {
			s.strategies = append(s.strategies[:i], s.strategies[i+1:]...)
			break
		}
	}
	s.lastError = nil
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.DeleteStrategy(ctx, id); err != nil {
			s.logger.Warn(ctx, "Strategy mirror delete failed", map[string]interface{}{"strategyID": id, "error": err.Error()})
		}
	}
	s.logger.Info(ctx, "Strategy deleted", map[string]interface{}{"strategyID": id})
	s.notify()
	return nil
}

// ReallocateCapital changes a running strategy's allocation by deactivating
// it and re-activating with the new amount. The two steps are not atomic: if
// the second step fails the strategy is left deactivated and the error is
// surfaced, with no automatic retry or rollback.
func (s *StrategyStore) ReallocateCapital(ctx context.Context, id string, allocation decimal.Decimal) error {
	op := "ReallocateCapital"

	if !s.beginSubmit(op, id) {
		return ports.NewActionError(op, id, ports.ErrAlreadySubmitting)
	}
	defer s.endSubmit(op, id)

	if err := s.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "Reallocation step 1 complete, strategy deactivated", map[string]interface{}{
		"strategyID": id, "newAllocation": allocation.String(),
	})

	if err := s.Activate(ctx, id, allocation); err != nil {
		s.logger.Error(ctx, err, "Reallocation step 2 failed, strategy left deactivated", map[string]interface{}{
			"strategyID": id,
		})
		return err
	}
	s.logger.Info(ctx, "Capital reallocated", map[string]interface{}{
		"strategyID": id, "allocation": allocation.String(),
	})
	return nil
}

// Summary aggregates the activated strategies into portfolio-level figures.
func (s *StrategyStore) Summary() analytics.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analytics.Aggregate(s.strategies)
}

// Hydrate loads the persisted mirror into the collection.
func (s *StrategyStore) Hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	strategies, err := s.repo.FindStrategies(ctx)
	if err != nil {
		return fmt.Errorf("strategy hydrate failed: %w", err)
	}
	s.mu.Lock()
	s.strategies = strategies
	s.mu.Unlock()
	s.logger.Debug(ctx, "Strategy collection hydrated from mirror", map[string]interface{}{"count": len(strategies)})
	s.notify()
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *StrategyStore) Snapshot() StrategySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	strategies := make([]*domain.Strategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		strategies = append(strategies, st.Clone())
	}
	catalog := make([]*domain.Strategy, 0, len(s.catalog))
	for _, st := range s.catalog {
		catalog = append(catalog, st.Clone())
	}
	return StrategySnapshot{
		Strategies:   strategies,
		Catalog:      catalog,
		Portfolio:    s.portfolio,
		User:         s.user,
		SystemStatus: s.systemStatus,
		Loading:      s.loading,
		Submitting:   s.guard.busy(),
		LastError:    s.lastError,
	}
}

// LastError returns the sticky error from the most recent failed action.
func (s *StrategyStore) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// ClearError resets the sticky error.
func (s *StrategyStore) ClearError() {
	s.setError(nil)
	s.notify()
}

// Subscribe registers a callback invoked after every state change. The
// returned function unsubscribes.
func (s *StrategyStore) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// --- internal helpers ---

// lifecycle runs the shared reconcile cycle for status-changing actions:
// guard, clear error, remote call, patch from response. A non-empty force
// status overrides whatever status the response maps to.
func (s *StrategyStore) lifecycle(ctx context.Context, op, id string, force domain.StrategyStatus, call func(context.Context) (*ports.UserStrategy, error)) error {
	if !s.beginSubmit(op, id) {
		return ports.NewActionError(op, id, ports.ErrAlreadySubmitting)
	}
	defer s.endSubmit(op, id)

	s.setError(nil)

	updated, err := call(ctx)
	if err != nil {
		actionErr := ports.NewActionError(op, id, err)
		s.setError(actionErr)
		s.logger.Error(ctx, err, "Strategy lifecycle action failed", map[string]interface{}{
			"action": op, "strategyID": id,
		})
		s.notify()
		return actionErr
	}

	s.patchFromActivation(ctx, *updated, force)
	s.logger.Info(ctx, "Strategy lifecycle action applied", map[string]interface{}{
		"action": op, "strategyID": id, "status": updated.Status,
	})
	s.notify()
	return nil
}

// validateTransition rejects a lifecycle action locally when the local record
// forbids the target status. Unknown strategies (catalog-only, not yet in the
// collection) pass through; the engine is authoritative for those.
func (s *StrategyStore) validateTransition(op, id string, next domain.StrategyStatus) error {
	s.mu.RLock()
	existing := s.findLocked(id)
	s.mu.RUnlock()
	if existing == nil {
		return nil
	}
	if !existing.Status.CanTransitionTo(next) {
		return ports.NewActionError(op, id, fmt.Errorf("%s failed: %w: %s -> %s", op, ports.ErrInvalidTransition, existing.Status, next))
	}
	return nil
}

// patchFromActivation reconciles the local record with the engine's
// activation response, enriching from the retained catalog entry. A non-empty
// force status replaces the mapped one; the engine reports a deactivated
// strategy as "available" again, which must not demote the record to DRAFT.
func (s *StrategyStore) patchFromActivation(ctx context.Context, us ports.UserStrategy, force domain.StrategyStatus) {
	s.mu.Lock()
	var catalogEntry *ports.EngineStrategy
	if e, ok := s.rawCatalog[us.StrategyID]; ok {
		catalogEntry = &e
	}
	patched := adapt.StrategyFromActivation(us, catalogEntry, s.now())
	if force != "" {
		patched.Status = force
	}
	if existing := s.findLocked(us.StrategyID); existing != nil {
		// Preserve locally accumulated fields the activation record lacks.
		patched.Version = existing.Version
		patched.CreatedAt = existing.CreatedAt
		if patched.Name == "" {
			patched.Name = existing.Name
		}
		*existing = *patched
	} else {
		s.strategies = append([]*domain.Strategy{patched}, s.strategies...)
	}
	s.lastError = nil
	s.mu.Unlock()

	s.mirror(ctx, patched.Clone())
}

// beginSubmit acquires the submit guard and notifies subscribers so they can
// observe the raised submitting flag while the action is in flight.
func (s *StrategyStore) beginSubmit(op, id string) bool {
	if !s.guard.acquire(op, id) {
		return false
	}
	s.notify()
	return true
}

func (s *StrategyStore) endSubmit(op, id string) {
	s.guard.release(op, id)
	s.notify()
}

func (s *StrategyStore) findLocked(id string) *domain.Strategy {
	for _, st := range s.strategies {
		if st.ID == id {
			return st
		}
	}
	return nil
}

func applyStrategyUpdate(st *domain.Strategy, upd ports.StrategyUpdate) {
	if upd.Name != nil {
		st.Name = *upd.Name
	}
	if upd.Description != nil {
		st.Description = *upd.Description
	}
	if upd.Timeframe != nil {
		st.Timeframe = *upd.Timeframe
	}
	if upd.Parameters != nil {
		st.Parameters = upd.Parameters
	}
	if upd.RiskParameters != nil {
		st.RiskParameters = upd.RiskParameters
	}
	if upd.MaxOpenPositions != nil {
		st.MaxOpenPositions = *upd.MaxOpenPositions
	}
}

func (s *StrategyStore) mirror(ctx context.Context, st *domain.Strategy) {
	if s.repo == nil || st == nil {
		return
	}
	if err := s.repo.UpsertStrategy(ctx, st); err != nil {
		s.logger.Warn(ctx, "Strategy mirror write failed", map[string]interface{}{"strategyID": st.ID, "error": err.Error()})
	}
}

func (s *StrategyStore) mirrorAll(ctx context.Context, strategies []*domain.Strategy) {
	for _, st := range strategies {
		s.mirror(ctx, st)
	}
}

func (s *StrategyStore) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *StrategyStore) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}

func (s *StrategyStore) notify() {
	s.subMu.Lock()
	subs := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
