package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradedash/internal/domain"
)

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil)
	assert.Zero(t, s.TotalStrategies)
	assert.Zero(t, s.OverallWinRate, "no trades yields zero win rate, not NaN")
	assert.True(t, s.TotalPnL.IsZero())
	assert.Empty(t, s.BestStrategyID)
}

func TestAggregate(t *testing.T) {
	strategies := []*domain.Strategy{
		{
			ID: "a", Status: domain.StrategyActive,
			CapitalAllocated: decimal.NewFromInt(10000),
			TotalPnL:         decimal.NewFromInt(1500),
			TotalTrades:      10, WinningTrades: 7, LosingTrades: 3,
			MaxDrawdown: decimal.NewFromInt(300),
		},
		{
			ID: "b", Status: domain.StrategyPaused,
			CapitalAllocated: decimal.NewFromInt(5000),
			TotalPnL:         decimal.NewFromInt(-500),
			TotalTrades:      10, WinningTrades: 3, LosingTrades: 7,
			MaxDrawdown: decimal.NewFromInt(800),
		},
		{
			ID: "c", Status: domain.StrategyStopped,
			CapitalAllocated: decimal.NewFromInt(2000), // released, not deployed
			TotalPnL:         decimal.NewFromInt(200),
			TotalTrades:      5, WinningTrades: 5,
		},
		nil, // tolerated
	}
	s := Aggregate(strategies)

	assert.Equal(t, 3, s.TotalStrategies)
	assert.Equal(t, 1, s.ActiveStrategies)
	assert.Equal(t, 1, s.PausedStrategies)
	assert.True(t, decimal.NewFromInt(15000).Equal(s.CapitalDeployed), "stopped allocation not counted, got %s", s.CapitalDeployed)
	assert.True(t, decimal.NewFromInt(1200).Equal(s.TotalPnL))
	assert.Equal(t, 25, s.TotalTrades)
	assert.Equal(t, 15, s.WinningTrades)
	assert.Equal(t, 10, s.LosingTrades)
	assert.InDelta(t, 60.0, s.OverallWinRate, 1e-9)
	assert.True(t, decimal.NewFromInt(800).Equal(s.MaxDrawdown))
	assert.Equal(t, "a", s.BestStrategyID)
	assert.Equal(t, "b", s.WorstStrategyID)
}
