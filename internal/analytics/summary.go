// Package analytics aggregates per-strategy performance into portfolio-level
// figures for the dashboard header and the offline report.
package analytics

import (
	"github.com/shopspring/decimal"

	"tradedash/internal/domain"
)

// Summary holds portfolio-level aggregates over a strategy collection.
type Summary struct {
	TotalStrategies  int
	ActiveStrategies int
	PausedStrategies int
	TotalPnL         decimal.Decimal
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	OverallWinRate   float64
	CapitalDeployed  decimal.Decimal
	MaxDrawdown      decimal.Decimal
	BestStrategyID   string
	WorstStrategyID  string
}

// Aggregate computes the portfolio summary in a single pass. An empty or nil
// collection yields the zero summary; the win rate guard keeps a tradeless
// portfolio at 0 rather than NaN.
func Aggregate(strategies []*domain.Strategy) Summary {
	s := Summary{
		TotalPnL:        decimal.Zero,
		CapitalDeployed: decimal.Zero,
		MaxDrawdown:     decimal.Zero,
	}
	var bestPnL, worstPnL decimal.Decimal
	for _, st := range strategies {
		if st == nil {
			continue
		}
		s.TotalStrategies++
		switch st.Status {
		case domain.StrategyActive:
			s.ActiveStrategies++
			s.CapitalDeployed = s.CapitalDeployed.Add(st.CapitalAllocated)
		case domain.StrategyPaused:
			s.PausedStrategies++
			s.CapitalDeployed = s.CapitalDeployed.Add(st.CapitalAllocated)
		}
		s.TotalPnL = s.TotalPnL.Add(st.TotalPnL)
		s.TotalTrades += st.TotalTrades
		s.WinningTrades += st.WinningTrades
		s.LosingTrades += st.LosingTrades
		if st.MaxDrawdown.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = st.MaxDrawdown
		}
		if s.BestStrategyID == "" || st.TotalPnL.GreaterThan(bestPnL) {
			s.BestStrategyID = st.ID
			bestPnL = st.TotalPnL
		}
		if s.WorstStrategyID == "" || st.TotalPnL.LessThan(worstPnL) {
			s.WorstStrategyID = st.ID
			worstPnL = st.TotalPnL
		}
	}
	s.OverallWinRate = domain.ComputeWinRate(s.WinningTrades, s.TotalTrades)
	return s
}
