// Package app holds the reconciling stores: stateful services that own the
// canonical in-memory collections, drive remote mutations through the engine
// client, and reconcile local state with the engine's responses. Stores are
// safe for concurrent use; every read hands out deep copies so callers can
// never alias store-owned records.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradedash/internal/adapt"
	"tradedash/internal/domain"
	"tradedash/internal/ports"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 20

// OrderSnapshot is a point-in-time copy of the order store's state.
type OrderSnapshot struct {
	Orders       []*domain.Order
	Total        int
	Page         int
	TotalPages   int
	PageSize     int
	StatusFilter string
	SymbolFilter string
	Loading      bool
	Submitting   bool
	LastError    error
}

// OrderStore owns the canonical order collection. Listing is server-paginated;
// mutations follow the reconcile cycle: local validation, submit guard, remote
// call, then an atomic patch from the engine's response on success or
// untouched state plus a classified error on failure.
type OrderStore struct {
	client ports.EngineClient
	repo   ports.OrderRepository
	logger ports.Logger
	now    func() time.Time

	mu           sync.RWMutex
	orders       []*domain.Order
	total        int
	page         int
	totalPages   int
	pageSize     int
	statusFilter string
	symbolFilter string
	loading      bool
	lastError    error

	guard *submitGuard

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// OrderStoreConfig holds the dependencies for an OrderStore.
type OrderStoreConfig struct {
	Client   ports.EngineClient
	Repo     ports.OrderRepository // optional mirror
	Logger   ports.Logger
	PageSize int
	Now      func() time.Time
}

// NewOrderStore creates a new order store.
func NewOrderStore(cfg OrderStoreConfig) (*OrderStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("engine client is required for order store")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for order store")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OrderStore{
		client:   cfg.Client,
		repo:     cfg.Repo,
		logger:   cfg.Logger,
		now:      cfg.Now,
		page:     1,
		pageSize: cfg.PageSize,
		guard:    newSubmitGuard(),
		subs:     make(map[int]func()),
	}, nil
}

// Refresh fetches the current page from the engine and replaces the
// collection. On failure the previous collection is kept so the dashboard
// keeps rendering the last-known state.
func (s *OrderStore) Refresh(ctx context.Context) error {
	op := "RefreshOrders"

	s.mu.Lock()
	s.loading = true
	filter := ports.OrderFilter{
		Status: s.statusFilter,
		Symbol: s.symbolFilter,
		Page:   s.page,
		Limit:  s.pageSize,
	}
	s.mu.Unlock()
	s.notify()

	page, err := s.client.ListOrders(ctx, filter)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastError = ports.NewActionError(op, "", err)
		s.mu.Unlock()
		s.logger.Error(ctx, err, "Order refresh failed", map[string]interface{}{"page": filter.Page})
		s.notify()
		return s.LastError()
	}
	orders := adapt.OrdersFromAPI(page.Data, s.now())
	s.orders = orders
	s.total = page.Total
	s.totalPages = page.TotalPages
	s.lastError = nil
	s.mu.Unlock()

	s.mirrorAll(ctx, orders)
	s.logger.Debug(ctx, "Order collection refreshed", map[string]interface{}{
		"count": len(orders), "total": page.Total, "page": filter.Page,
	})
	s.notify()
	return nil
}

// SetStatusFilter replaces the server-side status filter and refetches from
// the first page.
func (s *OrderStore) SetStatusFilter(ctx context.Context, status string) error {
	s.mu.Lock()
	s.statusFilter = status
	s.page = 1
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// SetSymbolFilter replaces the server-side symbol filter and refetches from
// the first page.
func (s *OrderStore) SetSymbolFilter(ctx context.Context, symbol string) error {
	s.mu.Lock()
	s.symbolFilter = symbol
	s.page = 1
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// SetPage moves the pagination cursor and refetches.
func (s *OrderStore) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// SetPageSize changes the page size and refetches from the first page.
func (s *OrderStore) SetPageSize(ctx context.Context, size int) error {
	if size <= 0 {
		size = DefaultPageSize
	}
	s.mu.Lock()
	s.pageSize = size
	s.page = 1
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Search filters the loaded page client-side by case-insensitive substring
// match over symbol, order ID and broker order ID. It never issues a remote
// call.
func (s *OrderStore) Search(query string) []*domain.Order {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if q == "" ||
			strings.Contains(strings.ToLower(o.Symbol), q) ||
			strings.Contains(strings.ToLower(o.ID), q) ||
			strings.Contains(strings.ToLower(o.BrokerOrderID), q) {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Cancel cancels an open order. Orders already in a terminal state are
// rejected locally without a remote call.
func (s *OrderStore) Cancel(ctx context.Context, id string) error {
	op := "CancelOrder"

	s.mu.RLock()
	existing := s.findLocked(id)
	var status domain.OrderStatus
	if existing != nil {
		status = existing.Status
	}
	s.mu.RUnlock()

	if existing != nil && status.IsTerminal() {
		err := ports.NewActionError(op, id, fmt.Errorf("%s failed: %w: order is %s", op, ports.ErrTerminalState, status))
		s.logger.Warn(ctx, "Cancel rejected locally", map[string]interface{}{"orderID": id, "status": status})
		return err
	}

	if !s.beginSubmit(op, id) {
		return ports.NewActionError(op, id, ports.ErrAlreadySubmitting)
	}
	defer s.endSubmit(op, id)

	s.setError(nil)

	updated, err := s.client.CancelOrder(ctx, id)
	if err != nil {
		actionErr := ports.NewActionError(op, id, err)
		s.setError(actionErr)
		s.logger.Error(ctx, err, "Order cancel failed", map[string]interface{}{"orderID": id})
		s.notify()
		return actionErr
	}

	s.patchOrder(ctx, adapt.OrderFromAPI(*updated, s.now()))
	s.logger.Info(ctx, "Order cancelled", map[string]interface{}{"orderID": id})
	s.notify()
	return nil
}

// Update applies a tags/notes annotation update. Annotations are allowed in
// any status, terminal included.
func (s *OrderStore) Update(ctx context.Context, id string, upd ports.OrderUpdate) error {
	op := "UpdateOrder"

	if !s.beginSubmit(op, id) {
		return ports.NewActionError(op, id, ports.ErrAlreadySubmitting)
	}
	defer s.endSubmit(op, id)

	s.setError(nil)

	updated, err := s.client.UpdateOrder(ctx, id, upd)
	if err != nil {
		actionErr := ports.NewActionError(op, id, err)
		s.setError(actionErr)
		s.logger.Error(ctx, err, "Order update failed", map[string]interface{}{"orderID": id})
		s.notify()
		return actionErr
	}

	s.patchOrder(ctx, adapt.OrderFromAPI(*updated, s.now()))
	s.logger.Info(ctx, "Order updated", map[string]interface{}{"orderID": id})
	s.notify()
	return nil
}

// Delete removes an order record. On success the collection shrinks and the
// reported total decrements by exactly one.
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	op := "DeleteOrder"

	if !s.beginSubmit(op, id) {
		return ports.NewActionError(op, id, ports.ErrAlreadySubmitting)
	}
	defer s.endSubmit(op, id)

	s.setError(nil)

	if err := s.client.DeleteOrder(ctx, id); err != nil {
		actionErr := ports.NewActionError(op, id, err)
		s.setError(actionErr)
		s.logger.Error(ctx, err, "Order delete failed", map[string]interface{}{"orderID": id})
		s.notify()
		return actionErr
	}

	s.mu.Lock()
	for i, o := range s.orders {
		if o.ID == id {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			break
		}
	}
	if s.total > 0 {
		s.total--
	}
	s.lastError = nil
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.DeleteOrder(ctx, id); err != nil {
			s.logger.Warn(ctx, "Order mirror delete failed", map[string]interface{}{"orderID": id, "error": err.Error()})
		}
	}
	s.logger.Info(ctx, "Order deleted", map[string]interface{}{"orderID": id})
	s.notify()
	return nil
}

// ApplyEngine merges engine-shape order records into the collection, patching
// existing records by ID and prepending unseen ones. Used for the dashboard's
// recent-orders feed.
func (s *OrderStore) ApplyEngine(ctx context.Context, src []ports.EngineOrder) {
	if len(src) == 0 {
		return
	}
	orders := adapt.OrdersFromEngine(src, s.now())

	s.mu.Lock()
	for _, o := range orders {
		if existing := s.findLocked(o.ID); existing != nil {
			*existing = *o.Clone()
		} else {
			s.orders = append([]*domain.Order{o}, s.orders...)
			s.total++
		}
	}
	s.mu.Unlock()

	s.mirrorAll(ctx, orders)
	s.notify()
}

// Hydrate loads the persisted mirror into the collection. Called at startup
// so the dashboard renders last-known data before the first engine round
// trip.
func (s *OrderStore) Hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	orders, err := s.repo.FindOrders(ctx)
	if err != nil {
		return fmt.Errorf("order hydrate failed: %w", err)
	}
	s.mu.Lock()
	s.orders = orders
	s.total = len(orders)
	s.mu.Unlock()
	s.logger.Debug(ctx, "Order collection hydrated from mirror", map[string]interface{}{"count": len(orders)})
	s.notify()
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *OrderStore) Snapshot() OrderSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]*domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o.Clone())
	}
	return OrderSnapshot{
		Orders:       orders,
		Total:        s.total,
		Page:         s.page,
		TotalPages:   s.totalPages,
		PageSize:     s.pageSize,
		StatusFilter: s.statusFilter,
		SymbolFilter: s.symbolFilter,
		Loading:      s.loading,
		Submitting:   s.guard.busy(),
		LastError:    s.lastError,
	}
}

// LastError returns the store's sticky error from the most recent failed
// action, or nil.
func (s *OrderStore) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// ClearError resets the sticky error, e.g. after the UI has displayed it.
func (s *OrderStore) ClearError() {
	s.setError(nil)
	s.notify()
}

// Subscribe registers a callback invoked after every state change. The
// returned function unsubscribes. Callbacks must not call back into the
// store synchronously with blocking work.
func (s *OrderStore) Subscribe(fn func()) func() {
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

// beginSubmit acquires the submit guard and notifies subscribers so they can
// observe the raised submitting flag while the action is in flight.
func (s *OrderStore) beginSubmit(op, id string) bool {
	if !s.guard.acquire(op, id) {
		return false
	}
	s.notify()
	return true
}

func (s *OrderStore) endSubmit(op, id string) {
	s.guard.release(op, id)
	s.notify()
}

// findLocked returns the store-owned record; the caller must hold s.mu.
func (s *OrderStore) findLocked(id string) *domain.Order {
	for _, o := range s.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// patchOrder atomically replaces (or prepends) the record and mirrors it.
func (s *OrderStore) patchOrder(ctx context.Context, o *domain.Order) {
	s.mu.Lock()
	if existing := s.findLocked(o.ID); existing != nil {
		*existing = *o.Clone()
	} else {
		s.orders = append([]*domain.Order{o.Clone()}, s.orders...)
		s.total++
	}
	s.lastError = nil
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.UpsertOrder(ctx, o); err != nil {
			s.logger.Warn(ctx, "Order mirror write failed", map[string]interface{}{"orderID": o.ID, "error": err.Error()})
		}
	}
}

func (s *OrderStore) mirrorAll(ctx context.Context, orders []*domain.Order) {
	if s.repo == nil {
		return
	}
	for _, o := range orders {
		if err := s.repo.UpsertOrder(ctx, o); err != nil {
			s.logger.Warn(ctx, "Order mirror write failed", map[string]interface{}{"orderID": o.ID, "error": err.Error()})
		}
	}
}

func (s *OrderStore) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}

func (s *OrderStore) notify() {
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
