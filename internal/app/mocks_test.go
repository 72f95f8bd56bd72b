package app

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"tradedash/internal/domain"
	"tradedash/internal/ports"
)

// Mock implementations

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockEngineClient implements ports.EngineClient with canned responses and
// per-method call counting.
type mockEngineClient struct {
	mu     sync.Mutex
	calls  map[string]int
	onCall func(method string) // invoked mid-call, outside the mock's lock

	loginResp *ports.AuthResponse
	loginErr  error
	logoutErr error

	marketplaceResp []ports.EngineStrategy
	marketplaceErr  error
	dashboardResp   *ports.Dashboard
	dashboardErr    error

	activateResp       *ports.UserStrategy
	activateErr        error
	deactivateResp     *ports.UserStrategy
	deactivateErr      error
	pauseResp          *ports.UserStrategy
	pauseErr           error
	resumeResp         *ports.UserStrategy
	resumeErr          error
	updateStrategyResp *ports.UserStrategy
	updateStrategyErr  error
	deleteStrategyErr  error

	listOrdersResp *ports.OrderPage
	listOrdersErr  error
	cancelResp     *ports.APIOrder
	cancelErr      error
	updateResp     *ports.APIOrder
	updateErr      error
	deleteOrderErr error
}

func newMockEngineClient() *mockEngineClient {
	return &mockEngineClient{calls: make(map[string]int)}
}

func (m *mockEngineClient) count(method string) {
	m.mu.Lock()
	m.calls[method]++
	hook := m.onCall
	m.mu.Unlock()
	if hook != nil {
		hook(method)
	}
}

func (m *mockEngineClient) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *mockEngineClient) Login(ctx context.Context) (*ports.AuthResponse, error) {
	m.count("Login")
	return m.loginResp, m.loginErr
}

func (m *mockEngineClient) Logout(ctx context.Context) error {
	m.count("Logout")
	return m.logoutErr
}

func (m *mockEngineClient) Marketplace(ctx context.Context, f ports.StrategyFilter) ([]ports.EngineStrategy, error) {
	m.count("Marketplace")
	return m.marketplaceResp, m.marketplaceErr
}

func (m *mockEngineClient) Dashboard(ctx context.Context) (*ports.Dashboard, error) {
	m.count("Dashboard")
	return m.dashboardResp, m.dashboardErr
}

func (m *mockEngineClient) ActivateStrategy(ctx context.Context, id string, allocation decimal.Decimal) (*ports.UserStrategy, error) {
	m.count("ActivateStrategy")
	return m.activateResp, m.activateErr
}

func (m *mockEngineClient) DeactivateStrategy(ctx context.Context, id string) (*ports.UserStrategy, error) {
	m.count("DeactivateStrategy")
	return m.deactivateResp, m.deactivateErr
}

func (m *mockEngineClient) PauseStrategy(ctx context.Context, id string) (*ports.UserStrategy, error) {
	m.count("PauseStrategy")
	return m.pauseResp, m.pauseErr
}

func (m *mockEngineClient) ResumeStrategy(ctx context.Context, id string) (*ports.UserStrategy, error) {
	m.count("ResumeStrategy")
	return m.resumeResp, m.resumeErr
}

func (m *mockEngineClient) UpdateStrategy(ctx context.Context, id string, upd ports.StrategyUpdate) (*ports.UserStrategy, error) {
	m.count("UpdateStrategy")
	return m.updateStrategyResp, m.updateStrategyErr
}

func (m *mockEngineClient) DeleteStrategy(ctx context.Context, id string) error {
	m.count("DeleteStrategy")
	return m.deleteStrategyErr
}

func (m *mockEngineClient) ListOrders(ctx context.Context, f ports.OrderFilter) (*ports.OrderPage, error) {
	m.count("ListOrders")
	return m.listOrdersResp, m.listOrdersErr
}

func (m *mockEngineClient) CancelOrder(ctx context.Context, id string) (*ports.APIOrder, error) {
	m.count("CancelOrder")
	return m.cancelResp, m.cancelErr
}

func (m *mockEngineClient) UpdateOrder(ctx context.Context, id string, upd ports.OrderUpdate) (*ports.APIOrder, error) {
	m.count("UpdateOrder")
	return m.updateResp, m.updateErr
}

func (m *mockEngineClient) DeleteOrder(ctx context.Context, id string) error {
	m.count("DeleteOrder")
	return m.deleteOrderErr
}

// mockOrderRepo is an in-memory ports.OrderRepository.
type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*domain.Order)}
}

func (m *mockOrderRepo) UpsertOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *mockOrderRepo) DeleteOrder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
	return nil
}

func (m *mockOrderRepo) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		return o.Clone(), nil
	}
	return nil, nil
}

func (m *mockOrderRepo) FindOrders(ctx context.Context) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}
