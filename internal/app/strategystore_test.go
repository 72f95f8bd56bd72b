package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/internal/domain"
	"tradedash/internal/ports"
)

func newTestStrategyStore(t *testing.T, client *mockEngineClient) *StrategyStore {
	t.Helper()
	store, err := NewStrategyStore(StrategyStoreConfig{
		Client: client,
		Logger: &mockLogger{},
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return store
}

func loadDashboard(t *testing.T, store *StrategyStore, client *mockEngineClient, active ...ports.UserStrategy) {
	t.Helper()
	client.dashboardResp = &ports.Dashboard{ActiveStrategies: active}
	_, err := store.RefreshDashboard(context.Background())
	require.NoError(t, err)
}

func TestStrategyStoreRefreshMarketplace(t *testing.T) {
	client := newMockEngineClient()
	client.marketplaceResp = []ports.EngineStrategy{
		{StrategyID: "s1", Name: "Alpha", Status: "available"},
		{StrategyID: "s2", Name: "Beta", Status: "active"},
	}
	store := newTestStrategyStore(t, client)

	require.NoError(t, store.RefreshMarketplace(context.Background(), DefaultMarketplaceFilter()))

	snap := store.Snapshot()
	require.Len(t, snap.Catalog, 2)
	assert.Equal(t, domain.StrategyDraft, snap.Catalog[0].Status)
	assert.Empty(t, snap.Strategies, "catalog browse does not touch the user's collection")
}

func TestStrategyStoreRefreshDashboard(t *testing.T) {
	client := newMockEngineClient()
	client.marketplaceResp = []ports.EngineStrategy{{StrategyID: "s1", Name: "Alpha"}}
	store := newTestStrategyStore(t, client)
	require.NoError(t, store.RefreshMarketplace(context.Background(), DefaultMarketplaceFilter()))

	client.dashboardResp = &ports.Dashboard{
		ActiveStrategies: []ports.UserStrategy{{StrategyID: "s1", UserID: "u1", Status: "active"}},
		RecentOrders:     []ports.EngineOrder{{OrderID: "o1", Status: "placed"}},
		SystemStatus:     "healthy",
	}
	recent, err := store.RefreshDashboard(context.Background())
	require.NoError(t, err)

	assert.Len(t, recent, 1, "recent orders handed to the caller")
	snap := store.Snapshot()
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, "Alpha", snap.Strategies[0].Name, "enriched from the retained catalog")
	assert.Equal(t, domain.StrategyActive, snap.Strategies[0].Status)
	assert.Equal(t, "healthy", snap.SystemStatus)
}

func TestStrategyStoreActivate(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "available"})

	client.activateResp = &ports.UserStrategy{
		StrategyID:       "s1",
		Status:           "active",
		AllocationAmount: decimal.NewFromInt(10000),
	}
	require.NoError(t, store.Activate(context.Background(), "s1", decimal.NewFromInt(10000)))

	snap := store.Snapshot()
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, domain.StrategyActive, snap.Strategies[0].Status)
	assert.True(t, decimal.NewFromInt(10000).Equal(snap.Strategies[0].CapitalAllocated))
	assert.NoError(t, snap.LastError)
}

func TestStrategyStoreActivate_InvalidTransitionRejectedLocally(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active"})

	err := store.Activate(context.Background(), "s1", decimal.NewFromInt(5000))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)
	assert.Equal(t, 0, client.callCount("ActivateStrategy"), "no remote call on local rejection")
}

func TestStrategyStorePause_OnlyFromActive(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "available"})

	err := store.Pause(context.Background(), "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)
	assert.Equal(t, 0, client.callCount("PauseStrategy"))
}

func TestStrategyStoreLifecycle_FailurePreservesState(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active", AllocationAmount: decimal.NewFromInt(8000)})

	client.pauseErr = fmt.Errorf("boom: %w", ports.ErrEngineUnavailable)
	err := store.Pause(context.Background(), "s1")
	require.Error(t, err)

	snap := store.Snapshot()
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, domain.StrategyActive, snap.Strategies[0].Status, "status untouched on failure")
	assert.Error(t, snap.LastError)

	var actionErr *ports.ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, ports.KindRemoteInternal, actionErr.Kind)
	assert.Equal(t, "PauseStrategy", actionErr.Action)
}

func TestStrategyStoreResume_OnlyFromPaused(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active"})

	err := store.Resume(context.Background(), "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)
	assert.Equal(t, 0, client.callCount("ResumeStrategy"))
}

func TestStrategyStoreUpdate_BumpsVersion(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active"})

	client.updateStrategyResp = &ports.UserStrategy{StrategyID: "s1", Status: "active"}
	name := "Renamed"
	require.NoError(t, store.Update(context.Background(), "s1", ports.StrategyUpdate{Name: &name}))

	snap := store.Snapshot()
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, "Renamed", snap.Strategies[0].Name)
	assert.Equal(t, 2, snap.Strategies[0].Version, "structural update bumps the version")
}

func TestStrategyStoreDelete(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client,
		ports.UserStrategy{StrategyID: "s1", Status: "active"},
		ports.UserStrategy{StrategyID: "s2", Status: "paused"},
	)

	require.NoError(t, store.Delete(context.Background(), "s1"))

	snap := store.Snapshot()
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, "s2", snap.Strategies[0].ID)
}

func TestStrategyStoreDelete_FailurePreservesCollection(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active"})

	client.deleteStrategyErr = fmt.Errorf("nope: %w", ports.ErrInvalidRequest)
	err := store.Delete(context.Background(), "s1")
	require.Error(t, err)
	assert.Len(t, store.Snapshot().Strategies, 1)
}

func TestStrategyStoreReallocateCapital(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active", AllocationAmount: decimal.NewFromInt(5000)})

	client.deactivateResp = &ports.UserStrategy{StrategyID: "s1", Status: "available"}
	client.activateResp = &ports.UserStrategy{StrategyID: "s1", Status: "active", AllocationAmount: decimal.NewFromInt(12000)}

	require.NoError(t, store.ReallocateCapital(context.Background(), "s1", decimal.NewFromInt(12000)))

	assert.Equal(t, 1, client.callCount("DeactivateStrategy"))
	assert.Equal(t, 1, client.callCount("ActivateStrategy"))
	snap := store.Snapshot()
	assert.Equal(t, domain.StrategyActive, snap.Strategies[0].Status)
	assert.True(t, decimal.NewFromInt(12000).Equal(snap.Strategies[0].CapitalAllocated))
}

func TestStrategyStoreReallocateCapital_SecondStepFailure(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active", AllocationAmount: decimal.NewFromInt(5000)})

	client.deactivateResp = &ports.UserStrategy{StrategyID: "s1", Status: "available"}
	client.activateErr = fmt.Errorf("insufficient funds: %w", ports.ErrInvalidRequest)

	err := store.ReallocateCapital(context.Background(), "s1", decimal.NewFromInt(1000000))
	require.Error(t, err, "second step failure is surfaced")

	assert.Equal(t, 1, client.callCount("DeactivateStrategy"))
	assert.Equal(t, 1, client.callCount("ActivateStrategy"), "no automatic retry")

	snap := store.Snapshot()
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, domain.StrategyStopped, snap.Strategies[0].Status, "strategy left stopped, no rollback")
	assert.Error(t, snap.LastError)
}

func TestStrategyStoreDeactivate_LeavesStopped(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active", AllocationAmount: decimal.NewFromInt(5000)})

	// The engine reports a deactivated strategy as back in the catalog.
	client.deactivateResp = &ports.UserStrategy{StrategyID: "s1", Status: "available"}
	require.NoError(t, store.Deactivate(context.Background(), "s1"))

	snap := store.Snapshot()
	require.Len(t, snap.Strategies, 1)
	assert.Equal(t, domain.StrategyStopped, snap.Strategies[0].Status, "deactivation ends in STOPPED, not DRAFT")
	assert.NoError(t, snap.LastError)
}

func TestStrategyStoreSubmittingFlag(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client, ports.UserStrategy{StrategyID: "s1", Status: "active"})

	client.pauseResp = &ports.UserStrategy{StrategyID: "s1", Status: "paused"}
	var during bool
	client.onCall = func(method string) {
		if method == "PauseStrategy" {
			during = store.Snapshot().Submitting
		}
	}
	require.NoError(t, store.Pause(context.Background(), "s1"))

	assert.True(t, during, "submitting flag raised while the call is in flight")
	assert.False(t, store.Snapshot().Submitting, "flag dropped once the action completes")
}

func TestStrategyStoreSearch(t *testing.T) {
	client := newMockEngineClient()
	client.marketplaceResp = []ports.EngineStrategy{
		{StrategyID: "s1", Name: "Momentum Rider", Symbols: []string{"NIFTY"}},
		{StrategyID: "s2", Name: "Mean Revert", Symbols: []string{"RELIANCE"}},
	}
	store := newTestStrategyStore(t, client)
	require.NoError(t, store.RefreshMarketplace(context.Background(), DefaultMarketplaceFilter()))
	loadDashboard(t, store, client,
		ports.UserStrategy{StrategyID: "s1", Status: "active"},
		ports.UserStrategy{StrategyID: "s2", Status: "paused"},
	)

	assert.Len(t, store.Search("momentum"), 1, "name match, case-insensitive")
	assert.Len(t, store.Search("s2"), 1, "identifier match")
	assert.Len(t, store.Search("reliance"), 1, "symbol match")
	assert.Len(t, store.Search(""), 2, "empty query returns everything")
	assert.Empty(t, store.Search("nothing"))
	assert.Equal(t, 1, client.callCount("Marketplace"), "search never hits the engine")
}

func TestStrategyStoreSetMarketplaceFilter_ResetsPage(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)

	require.NoError(t, store.SetMarketplacePage(context.Background(), 3))
	require.NoError(t, store.SetMarketplaceFilter(context.Background(), ports.StrategyFilter{AssetClass: "EQUITY", Page: 7}))

	store.mu.RLock()
	assert.Equal(t, 1, store.filter.Page, "filter change rewinds to the first page")
	assert.Equal(t, "EQUITY", store.filter.AssetClass)
	store.mu.RUnlock()
	assert.Equal(t, 2, client.callCount("Marketplace"))
}

func TestStrategyStoreSummary(t *testing.T) {
	client := newMockEngineClient()
	store := newTestStrategyStore(t, client)
	loadDashboard(t, store, client,
		ports.UserStrategy{StrategyID: "s1", Status: "active", AllocationAmount: decimal.NewFromInt(10000), TotalOrders: 10, SuccessfulOrders: 7, TotalPnL: decimal.NewFromInt(900)},
		ports.UserStrategy{StrategyID: "s2", Status: "paused", AllocationAmount: decimal.NewFromInt(4000), TotalOrders: 2, SuccessfulOrders: 1, TotalPnL: decimal.NewFromInt(-100)},
	)

	sum := store.Summary()
	assert.Equal(t, 2, sum.TotalStrategies)
	assert.Equal(t, 1, sum.ActiveStrategies)
	assert.Equal(t, 1, sum.PausedStrategies)
	assert.True(t, decimal.NewFromInt(14000).Equal(sum.CapitalDeployed))
	assert.True(t, decimal.NewFromInt(800).Equal(sum.TotalPnL))
	assert.Equal(t, "s1", sum.BestStrategyID)
	assert.Equal(t, "s2", sum.WorstStrategyID)
}
