package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/internal/domain"
	"tradedash/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleOrder(id string, createdAt time.Time) *domain.Order {
	placed := createdAt.Add(time.Second)
	return &domain.Order{
		ID:             id,
		UserID:         "u1",
		StrategyID:     "s1",
		Symbol:         "RELIANCE",
		Exchange:       "NSE",
		Side:           domain.Buy,
		Type:           domain.Limit,
		Product:        domain.ProductIntraday,
		Quantity:       10,
		Price:          decimal.RequireFromString("2500.50"),
		TriggerPrice:   decimal.Zero,
		BrokerOrderID:  "BRK-1",
		Status:         domain.OrderOpen,
		FilledQuantity: 4,
		AvgFillPrice:   decimal.RequireFromString("2500.25"),
		Tags:           []string{"swing", "entry"},
		Notes:          "first tranche",
		CreatedAt:      createdAt,
		PlacedAt:       placed,
	}
}

func TestOrderRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	original := sampleOrder("o1", createdAt)
	require.NoError(t, repo.UpsertOrder(ctx, original))

	got, err := repo.FindOrderByID(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.Side, got.Side)
	assert.Equal(t, original.Status, got.Status)
	assert.True(t, original.Price.Equal(got.Price), "decimal survives the round trip exactly, got %s", got.Price)
	assert.True(t, original.AvgFillPrice.Equal(got.AvgFillPrice))
	assert.Equal(t, original.Tags, got.Tags)
	assert.Equal(t, original.Quantity, got.Quantity)
	assert.Equal(t, original.FilledQuantity, got.FilledQuantity)
	assert.True(t, original.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, original.PlacedAt.Equal(got.PlacedAt))
	assert.True(t, got.ExecutedAt.IsZero(), "unset timestamp stays zero")
	assert.True(t, got.CancelledAt.IsZero())
}

func TestOrderUpsertReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	o := sampleOrder("o1", createdAt)
	require.NoError(t, repo.UpsertOrder(ctx, o))

	o.Status = domain.OrderComplete
	o.FilledQuantity = 10
	require.NoError(t, repo.UpsertOrder(ctx, o))

	got, err := repo.FindOrderByID(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.OrderComplete, got.Status)
	assert.Equal(t, int64(10), got.FilledQuantity)

	orders, err := repo.FindOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1, "upsert replaces, never duplicates")
}

func TestFindOrders_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertOrder(ctx, sampleOrder("old", base)))
	require.NoError(t, repo.UpsertOrder(ctx, sampleOrder("new", base.Add(time.Hour))))

	orders, err := repo.FindOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "new", orders[0].ID)
	assert.Equal(t, "old", orders[1].ID)
}

func TestFindOrderByID_AbsentIsNilNil(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.FindOrderByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertOrder(ctx, sampleOrder("o1", time.Now().UTC())))
	require.NoError(t, repo.DeleteOrder(ctx, "o1"))

	got, err := repo.FindOrderByID(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, repo.DeleteOrder(ctx, "o1"), "deleting a missing record is not an error")
}

func TestStrategyRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	original := &domain.Strategy{
		ID:               "s1",
		UserID:           "u1",
		Name:             "Momentum Rider",
		Description:      "rides momentum",
		Category:         "momentum",
		AssetClass:       domain.AssetDerivatives,
		Symbols:          []string{"NIFTY", "BANKNIFTY"},
		Timeframe:        "15m",
		Status:           domain.StrategyActive,
		Parameters:       map[string]interface{}{"period": float64(14)},
		RiskParameters:   map[string]interface{}{"max_loss": float64(0.02)},
		TotalPnL:         decimal.RequireFromString("1250.75"),
		TotalTrades:      10,
		WinningTrades:    7,
		LosingTrades:     3,
		WinRate:          70,
		MaxDrawdown:      decimal.RequireFromString("300.00"),
		CapitalAllocated: decimal.NewFromInt(10000),
		MaxOpenPositions: 3,
		Window:           domain.DefaultTimeWindow(),
		Version:          2,
		LastExecutedAt:   createdAt.Add(time.Hour),
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt.Add(2 * time.Hour),
	}
	require.NoError(t, repo.UpsertStrategy(ctx, original))

	got, err := repo.FindStrategyByID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, original.Name, got.Name)
	assert.Equal(t, original.AssetClass, got.AssetClass)
	assert.Equal(t, original.Status, got.Status)
	assert.Equal(t, original.Symbols, got.Symbols)
	assert.Equal(t, original.Parameters, got.Parameters, "JSON round trip keeps parameters")
	assert.Equal(t, original.RiskParameters, got.RiskParameters)
	assert.True(t, original.TotalPnL.Equal(got.TotalPnL))
	assert.True(t, original.CapitalAllocated.Equal(got.CapitalAllocated))
	assert.Equal(t, original.WinRate, got.WinRate)
	assert.Equal(t, original.Window.Start, got.Window.Start)
	assert.Equal(t, original.Window.Days, got.Window.Days)
	assert.Equal(t, original.Version, got.Version)
	assert.True(t, original.LastExecutedAt.Equal(got.LastExecutedAt))
}

func TestFindStrategyByID_AbsentIsNilNil(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.FindStrategyByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTokenStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("empty store yields nil nil", func(t *testing.T) {
		got, err := repo.LoadTokens(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	expiresAt := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	saved := ports.AuthTokens{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		UserID:       "u1",
		ExpiresAt:    expiresAt,
	}
	require.NoError(t, repo.SaveTokens(ctx, saved))

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.LoadTokens(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "access-1", got.AccessToken)
		assert.Equal(t, "refresh-1", got.RefreshToken)
		assert.Equal(t, "u1", got.UserID)
		assert.True(t, expiresAt.Equal(got.ExpiresAt))
	})

	t.Run("save replaces under fixed keys", func(t *testing.T) {
		saved.AccessToken = "access-2"
		require.NoError(t, repo.SaveTokens(ctx, saved))
		got, err := repo.LoadTokens(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "access-2", got.AccessToken)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		require.NoError(t, repo.ClearTokens(ctx))
		got, err := repo.LoadTokens(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
