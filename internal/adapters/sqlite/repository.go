package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"tradedash/internal/domain"
	"tradedash/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Fixed keys for the persisted session (cleared entirely on logout).
const (
	keyAccessToken  = "auth.access_token"
	keyRefreshToken = "auth.refresh_token"
	keyUserID       = "auth.user_id"
	keyExpiresAt    = "auth.expires_at"
)

// Repository implements the ports.OrderRepository, ports.StrategyRepository
// and ports.TokenStore interfaces using SQLite. It is the local mirror of the
// engine's authoritative state.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradedash.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; limiting connections avoids
	// writer contention in the Go driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite mirror initialized", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		strategy_id TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		product TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		trigger_price TEXT NOT NULL,
		broker_order_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		filled_quantity INTEGER NOT NULL,
		avg_fill_price TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		placed_at TIMESTAMP DEFAULT NULL,
		executed_at TIMESTAMP DEFAULT NULL,
		cancelled_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		asset_class TEXT NOT NULL,
		symbols TEXT NOT NULL DEFAULT '[]',
		timeframe TEXT NOT NULL,
		status TEXT NOT NULL,
		parameters TEXT NOT NULL DEFAULT '{}',
		risk_parameters TEXT NOT NULL DEFAULT '{}',
		total_pnl TEXT NOT NULL,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		max_drawdown TEXT NOT NULL,
		capital_allocated TEXT NOT NULL,
		max_open_positions INTEGER NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		window_days TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL,
		last_executed_at TIMESTAMP DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol_created ON orders (symbol, created_at);
	CREATE INDEX IF NOT EXISTS idx_strategies_status ON strategies (status);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- OrderRepository Implementation ---

// UpsertOrder inserts or replaces the mirrored order record.
func (r *Repository) UpsertOrder(ctx context.Context, o *domain.Order) error {
	const query = `
	INSERT OR REPLACE INTO orders (
		id, user_id, strategy_id, symbol, exchange, side, order_type, product,
		quantity, price, trigger_price, broker_order_id, status, filled_quantity,
		avg_fill_price, tags, notes, created_at, placed_at, executed_at, cancelled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tags, err := json.Marshal(orEmptyTags(o.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags for order %s: %w", o.ID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		o.ID, o.UserID, o.StrategyID, o.Symbol, o.Exchange, string(o.Side),
		string(o.Type), string(o.Product), o.Quantity, o.Price.String(),
		o.TriggerPrice.String(), o.BrokerOrderID, string(o.Status),
		o.FilledQuantity, o.AvgFillPrice.String(), string(tags), o.Notes,
		o.CreatedAt, nullTime(o.PlacedAt), nullTime(o.ExecutedAt), nullTime(o.CancelledAt))
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w: %w", o.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Order mirrored", map[string]interface{}{"orderID": o.ID, "status": o.Status})
	return nil
}

// DeleteOrder removes the mirrored record. Missing records are not an error.
func (r *Repository) DeleteOrder(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete order %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return nil
}

// FindOrderByID retrieves a mirrored order. Returns nil, nil if absent.
func (r *Repository) FindOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, selectOrders+` WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order %s: %w", id, err)
	}
	return o, nil
}

// FindOrders retrieves all mirrored orders, newest first.
func (r *Repository) FindOrders(ctx context.Context) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrders+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order during FindOrders: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

const selectOrders = `
	SELECT id, user_id, strategy_id, symbol, exchange, side, order_type, product,
	       quantity, price, trigger_price, broker_order_id, status, filled_quantity,
	       avg_fill_price, tags, notes, created_at, placed_at, executed_at, cancelled_at
	FROM orders`

// --- StrategyRepository Implementation ---

// UpsertStrategy inserts or replaces the mirrored strategy record.
func (r *Repository) UpsertStrategy(ctx context.Context, s *domain.Strategy) error {
	const query = `
	INSERT OR REPLACE INTO strategies (
		id, user_id, name, description, category, asset_class, symbols, timeframe,
		status, parameters, risk_parameters, total_pnl, total_trades, winning_trades,
		losing_trades, win_rate, max_drawdown, capital_allocated, max_open_positions,
		window_start, window_end, window_days, version, last_executed_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	symbols, err := json.Marshal(orEmptyTags(s.Symbols))
	if err != nil {
		return fmt.Errorf("failed to encode symbols for strategy %s: %w", s.ID, err)
	}
	params, err := json.Marshal(orEmptyParams(s.Parameters))
	if err != nil {
		return fmt.Errorf("failed to encode parameters for strategy %s: %w", s.ID, err)
	}
	riskParams, err := json.Marshal(orEmptyParams(s.RiskParameters))
	if err != nil {
		return fmt.Errorf("failed to encode risk parameters for strategy %s: %w", s.ID, err)
	}
	days, err := json.Marshal(weekdayInts(s.Window.Days))
	if err != nil {
		return fmt.Errorf("failed to encode window days for strategy %s: %w", s.ID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.Name, s.Description, s.Category, string(s.AssetClass),
		string(symbols), s.Timeframe, string(s.Status), string(params), string(riskParams),
		s.TotalPnL.String(), s.TotalTrades, s.WinningTrades, s.LosingTrades,
		s.WinRate, s.MaxDrawdown.String(), s.CapitalAllocated.String(), s.MaxOpenPositions,
		s.Window.Start, s.Window.End, string(days), s.Version,
		nullTime(s.LastExecutedAt), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert strategy %s: %w: %w", s.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Strategy mirrored", map[string]interface{}{"strategyID": s.ID, "status": s.Status})
	return nil
}

// DeleteStrategy removes the mirrored record. Missing records are not an error.
func (r *Repository) DeleteStrategy(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete strategy %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return nil
}

// FindStrategyByID retrieves a mirrored strategy. Returns nil, nil if absent.
func (r *Repository) FindStrategyByID(ctx context.Context, id string) (*domain.Strategy, error) {
	row := r.db.QueryRowContext(ctx, selectStrategies+` WHERE id = ?`, id)
	s, err := scanStrategy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query strategy %s: %w", id, err)
	}
	return s, nil
}

// FindStrategies retrieves all mirrored strategies, newest first.
func (r *Repository) FindStrategies(ctx context.Context) ([]*domain.Strategy, error) {
	rows, err := r.db.QueryContext(ctx, selectStrategies+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	strategies := make([]*domain.Strategy, 0)
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy during FindStrategies: %w", err)
		}
		strategies = append(strategies, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy rows: %w", err)
	}
	return strategies, nil
}

const selectStrategies = `
	SELECT id, user_id, name, description, category, asset_class, symbols, timeframe,
	       status, parameters, risk_parameters, total_pnl, total_trades, winning_trades,
	       losing_trades, win_rate, max_drawdown, capital_allocated, max_open_positions,
	       window_start, window_end, window_days, version, last_executed_at, created_at, updated_at
	FROM strategies`

// --- TokenStore Implementation ---

// SaveTokens persists the session under the fixed keys.
func (r *Repository) SaveTokens(ctx context.Context, t ports.AuthTokens) error {
	pairs := map[string]string{
		keyAccessToken:  t.AccessToken,
		keyRefreshToken: t.RefreshToken,
		keyUserID:       t.UserID,
		keyExpiresAt:    t.ExpiresAt.UTC().Format(time.RFC3339),
	}
	for key, value := range pairs {
		if _, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO session (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("failed to persist session key %s: %w: %w", key, ports.ErrQueryFailed, err)
		}
	}
	return nil
}

// LoadTokens returns the persisted session, or nil, nil when none exists.
func (r *Repository) LoadTokens(ctx context.Context) (*ports.AuthTokens, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM session`)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		values[key] = value
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	if values[keyAccessToken] == "" {
		return nil, nil
	}
	t := &ports.AuthTokens{
		AccessToken:  values[keyAccessToken],
		RefreshToken: values[keyRefreshToken],
		UserID:       values[keyUserID],
	}
	if raw := values[keyExpiresAt]; raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			t.ExpiresAt = parsed
		}
	}
	return t, nil
}

// ClearTokens removes every persisted session key.
func (r *Repository) ClearTokens(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var side, orderType, product, status string
	var price, triggerPrice, avgFillPrice, tags string
	var placedAt, executedAt, cancelledAt sql.NullTime
	err := s.Scan(
		&o.ID, &o.UserID, &o.StrategyID, &o.Symbol, &o.Exchange, &side, &orderType,
		&product, &o.Quantity, &price, &triggerPrice, &o.BrokerOrderID, &status,
		&o.FilledQuantity, &avgFillPrice, &tags, &o.Notes, &o.CreatedAt,
		&placedAt, &executedAt, &cancelledAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Product = domain.ProductType(product)
	o.Status = domain.OrderStatus(status)
	o.Price = parseDecimal(price)
	o.TriggerPrice = parseDecimal(triggerPrice)
	o.AvgFillPrice = parseDecimal(avgFillPrice)
	if err := json.Unmarshal([]byte(tags), &o.Tags); err != nil {
		o.Tags = nil
	}
	if len(o.Tags) == 0 {
		o.Tags = nil
	}
	o.PlacedAt = fromNullTime(placedAt)
	o.ExecutedAt = fromNullTime(executedAt)
	o.CancelledAt = fromNullTime(cancelledAt)
	return o, nil
}

func scanStrategy(s scanner) (*domain.Strategy, error) {
	st := &domain.Strategy{}
	var assetClass, status string
	var symbols, params, riskParams, days string
	var totalPnL, maxDrawdown, capital string
	var lastExecuted sql.NullTime
	err := s.Scan(
		&st.ID, &st.UserID, &st.Name, &st.Description, &st.Category, &assetClass,
		&symbols, &st.Timeframe, &status, &params, &riskParams, &totalPnL,
		&st.TotalTrades, &st.WinningTrades, &st.LosingTrades, &st.WinRate,
		&maxDrawdown, &capital, &st.MaxOpenPositions, &st.Window.Start,
		&st.Window.End, &days, &st.Version, &lastExecuted, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	st.AssetClass = domain.AssetClass(assetClass)
	st.Status = domain.StrategyStatus(status)
	st.TotalPnL = parseDecimal(totalPnL)
	st.MaxDrawdown = parseDecimal(maxDrawdown)
	st.CapitalAllocated = parseDecimal(capital)
	if err := json.Unmarshal([]byte(symbols), &st.Symbols); err != nil {
		st.Symbols = nil
	}
	if len(st.Symbols) == 0 {
		st.Symbols = nil
	}
	if err := json.Unmarshal([]byte(params), &st.Parameters); err != nil || st.Parameters == nil {
		st.Parameters = map[string]interface{}{}
	}
	if err := json.Unmarshal([]byte(riskParams), &st.RiskParameters); err != nil || st.RiskParameters == nil {
		st.RiskParameters = map[string]interface{}{}
	}
	var dayInts []int
	if err := json.Unmarshal([]byte(days), &dayInts); err == nil {
		for _, d := range dayInts {
			st.Window.Days = append(st.Window.Days, time.Weekday(d))
		}
	}
	st.LastExecutedAt = fromNullTime(lastExecuted)
	return st, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func orEmptyTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func orEmptyParams(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func weekdayInts(days []time.Weekday) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		out = append(out, int(d))
	}
	return out
}
