package ports

import (
	"context"

	"tradedash/internal/domain"
)

// OrderRepository defines the interface for the persisted order mirror. The
// mirror holds the last-known canonical records so the dashboard can render
// stale data while the engine is unreachable.
type OrderRepository interface {
	// UpsertOrder inserts or replaces the mirrored record by ID.
	UpsertOrder(ctx context.Context, o *domain.Order) error
	// DeleteOrder removes the mirrored record. Deleting a missing record is
	// not an error.
	DeleteOrder(ctx context.Context, id string) error
	// FindOrderByID retrieves a mirrored order. Returns nil, nil if absent.
	FindOrderByID(ctx context.Context, id string) (*domain.Order, error)
	// FindOrders retrieves all mirrored orders, newest first.
	FindOrders(ctx context.Context) ([]*domain.Order, error)
}

// StrategyRepository defines the interface for the persisted strategy mirror.
type StrategyRepository interface {
	UpsertStrategy(ctx context.Context, s *domain.Strategy) error
	DeleteStrategy(ctx context.Context, id string) error
	// FindStrategyByID returns nil, nil if absent.
	FindStrategyByID(ctx context.Context, id string) (*domain.Strategy, error)
	FindStrategies(ctx context.Context) ([]*domain.Strategy, error)
}

// TokenStore persists session tokens under fixed keys. It is the only shared
// mutable resource besides the store collections, and is written exclusively
// by the auth layer.
type TokenStore interface {
	SaveTokens(ctx context.Context, t AuthTokens) error
	// LoadTokens returns nil, nil when no session is persisted.
	LoadTokens(ctx context.Context) (*AuthTokens, error)
	// ClearTokens removes every persisted session key.
	ClearTokens(ctx context.Context) error
}
