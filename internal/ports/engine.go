package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AuthResponse is the engine's response to a login or token refresh.
type AuthResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"` // seconds
	UserID       string   `json:"user_id"`
	Permissions  []string `json:"permissions"`
}

// AuthTokens is the persisted session state kept between runs.
type AuthTokens struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

// EngineStrategy is a strategy catalog entry from GET /marketplace.
type EngineStrategy struct {
	StrategyID     string                 `json:"strategy_id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Category       string                 `json:"category"`
	AssetClass     string                 `json:"asset_class"`
	Symbols        []string               `json:"symbols"`
	Timeframe      string                 `json:"timeframe"`
	Status         string                 `json:"status"` // available|active|paused
	Parameters     map[string]interface{} `json:"parameters"`
	RiskParameters map[string]interface{} `json:"risk_parameters"`
	MinCapital     decimal.Decimal        `json:"min_capital"`
	MaxPositions   int                    `json:"max_positions"`
	TradingStart   string                 `json:"trading_start"` // "09:15"
	TradingEnd     string                 `json:"trading_end"`   // "15:30"
	TradingDays    []string               `json:"trading_days"`  // "Monday", ...
	CreatedAt      time.Time              `json:"created_at"`
}

// UserStrategy is a per-user strategy activation record, returned by the
// dashboard and by the activate/deactivate/pause/resume endpoints.
type UserStrategy struct {
	StrategyID       string          `json:"strategy_id"`
	UserID           string          `json:"user_id"`
	Status           string          `json:"status"` // available|active|paused
	AllocationAmount decimal.Decimal `json:"allocation_amount"`
	TotalOrders      int             `json:"total_orders"`
	SuccessfulOrders int             `json:"successful_orders"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	ActivatedAt      time.Time       `json:"activated_at"`
	LastExecuted     time.Time       `json:"last_executed"`
}

// EngineOrder is an order record in the engine's wire shape (snake_case,
// lowercase status vocabulary).
type EngineOrder struct {
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	StrategyID     string          `json:"strategy_id"`
	Symbol         string          `json:"symbol"`
	Exchange       string          `json:"exchange"`
	Side           string          `json:"side"`
	OrderType      string          `json:"order_type"`
	Product        string          `json:"product"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	TriggerPrice   decimal.Decimal `json:"trigger_price"`
	BrokerOrderID  string          `json:"broker_order_id"`
	Status         string          `json:"status"` // pending|placed|filled|rejected|cancelled
	FilledQuantity int64           `json:"filled_quantity"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	Tags           []string        `json:"tags"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	PlacedAt       *time.Time      `json:"placed_at"`
	ExecutedAt     *time.Time      `json:"executed_at"`
	CancelledAt    *time.Time      `json:"cancelled_at"`
}

// APIOrder is an order record in the REST backend's wire shape (camelCase,
// uppercase status vocabulary).
type APIOrder struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	StrategyID     string          `json:"strategyId"`
	Symbol         string          `json:"symbol"`
	Exchange       string          `json:"exchange"`
	Side           string          `json:"side"`
	OrderType      string          `json:"orderType"`
	ProductType    string          `json:"productType"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	TriggerPrice   decimal.Decimal `json:"triggerPrice"`
	BrokerOrderID  string          `json:"brokerOrderId"`
	Status         string          `json:"status"` // PENDING..QUEUED, FAILED, NULL, ...
	FilledQuantity int64           `json:"filledQuantity"`
	AveragePrice   decimal.Decimal `json:"averagePrice"`
	Tags           []string        `json:"tags"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"createdAt"`
	PlacedAt       *time.Time      `json:"placedAt"`
	ExecutedAt     *time.Time      `json:"executedAt"`
	CancelledAt    *time.Time      `json:"cancelledAt"`
}

// OrderPage is the paginated REST shape returned by GET /orders.
type OrderPage struct {
	Data       []APIOrder `json:"data"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// UserInfo identifies the authenticated dashboard user.
type UserInfo struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// PortfolioSummary is the engine-computed account-level aggregate.
type PortfolioSummary struct {
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	DayPnL          decimal.Decimal `json:"day_pnl"`
	CapitalDeployed decimal.Decimal `json:"capital_deployed"`
}

// Dashboard is the per-user aggregate from GET /user/dashboard.
type Dashboard struct {
	UserInfo         UserInfo         `json:"user_info"`
	ActiveStrategies []UserStrategy   `json:"active_strategies"`
	RecentOrders     []EngineOrder    `json:"recent_orders"`
	PortfolioSummary PortfolioSummary `json:"portfolio_summary"`
	SystemStatus     string           `json:"system_status"`
}

// OrderFilter carries the server-side filters and cursor for order listing.
type OrderFilter struct {
	Status string
	Symbol string
	Page   int
	Limit  int
}

// StrategyFilter carries the server-side filters and cursor for the catalog.
type StrategyFilter struct {
	Status     string
	AssetClass string
	Category   string
	Page       int
	Limit      int
}

// StrategyUpdate is a partial structural update; nil fields are untouched.
type StrategyUpdate struct {
	Name             *string
	Description      *string
	Timeframe        *string
	Parameters       map[string]interface{}
	RiskParameters   map[string]interface{}
	MaxOpenPositions *int
}

// OrderUpdate is a partial update of the user-editable order fields; nil
// fields are untouched.
type OrderUpdate struct {
	Tags  []string
	Notes *string
}

// EngineClient defines the interface for the external trading engine's HTTP
// API. This abstraction decouples the reconciling stores from the transport.
type EngineClient interface {
	// Login authenticates with the configured API key and user ID.
	Login(ctx context.Context) (*AuthResponse, error)
	// Logout drops the in-memory session and clears persisted tokens.
	Logout(ctx context.Context) error

	// Marketplace retrieves the strategy catalog, optionally filtered.
	Marketplace(ctx context.Context, f StrategyFilter) ([]EngineStrategy, error)
	// Dashboard retrieves the per-user aggregate view.
	Dashboard(ctx context.Context) (*Dashboard, error)

	// ActivateStrategy activates a strategy with the given capital allocation.
	ActivateStrategy(ctx context.Context, id string, allocation decimal.Decimal) (*UserStrategy, error)
	// DeactivateStrategy stops a running or paused strategy.
	DeactivateStrategy(ctx context.Context, id string) (*UserStrategy, error)
	// PauseStrategy suspends signal execution without releasing allocation.
	PauseStrategy(ctx context.Context, id string) (*UserStrategy, error)
	// ResumeStrategy resumes a paused strategy.
	ResumeStrategy(ctx context.Context, id string) (*UserStrategy, error)
	// UpdateStrategy applies a structural update.
	UpdateStrategy(ctx context.Context, id string, upd StrategyUpdate) (*UserStrategy, error)
	// DeleteStrategy removes the per-user strategy record.
	DeleteStrategy(ctx context.Context, id string) error

	// ListOrders retrieves one page of orders in the REST shape.
	ListOrders(ctx context.Context, f OrderFilter) (*OrderPage, error)
	// CancelOrder cancels an open order and returns the updated record.
	CancelOrder(ctx context.Context, id string) (*APIOrder, error)
	// UpdateOrder applies a tags/notes update and returns the updated record.
	UpdateOrder(ctx context.Context, id string, upd OrderUpdate) (*APIOrder, error)
	// DeleteOrder removes an order record.
	DeleteOrder(ctx context.Context, id string) error
}
