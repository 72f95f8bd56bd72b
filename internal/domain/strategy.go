package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyStatus is the canonical lifecycle status of a mirrored strategy.
type StrategyStatus string

const (
	StrategyDraft   StrategyStatus = "DRAFT"
	StrategyActive  StrategyStatus = "ACTIVE"
	StrategyPaused  StrategyStatus = "PAUSED"
	StrategyStopped StrategyStatus = "STOPPED"
	StrategyError   StrategyStatus = "ERROR"
)

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
// DRAFT -> ACTIVE on activation, ACTIVE <-> PAUSED on pause/resume,
// ACTIVE|PAUSED -> STOPPED on deactivation. STOPPED and ERROR can be revived
// by a fresh activation. Any state may move to ERROR on an engine-reported
// failure.
func (s StrategyStatus) CanTransitionTo(next StrategyStatus) bool {
	if next == StrategyError {
		return true
	}
	switch s {
	case StrategyDraft:
		return next == StrategyActive
	case StrategyActive:
		return next == StrategyPaused || next == StrategyStopped
	case StrategyPaused:
		return next == StrategyActive || next == StrategyStopped
	case StrategyStopped, StrategyError:
		return next == StrategyActive
	}
	return false
}

// AssetClass categorizes the instruments a strategy trades.
type AssetClass string

const (
	AssetEquity      AssetClass = "EQUITY"
	AssetDerivatives AssetClass = "DERIVATIVES"
	AssetCrypto      AssetClass = "CRYPTO"
	AssetCommodities AssetClass = "COMMODITIES"
	AssetForex       AssetClass = "FOREX"
)

// Stable defaults used when an upstream record lacks a field.
const (
	DefaultExchange  = "NSE"
	DefaultProduct   = ProductIntraday
	DefaultTimeframe = "5m"
)

// TimeWindow is the time-of-day window and weekdays a strategy trades in.
type TimeWindow struct {
	Start string // "09:15"
	End   string // "15:30"
	Days  []time.Weekday
}

// DefaultTimeWindow returns the standard NSE session window, Monday-Friday.
func DefaultTimeWindow() TimeWindow {
	return TimeWindow{
		Start: "09:15",
		End:   "15:30",
		Days: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

// Contains reports whether t falls inside the window. A window with an
// unparsable start or end never matches.
func (w TimeWindow) Contains(t time.Time) bool {
	dayOK := false
	for _, d := range w.Days {
		if t.Weekday() == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return minutes >= startMin && minutes <= endMin
}

// Strategy is the canonical strategy record mirrored from the trading engine.
// Performance fields are derived/aggregated upstream and never set directly
// by the user.
type Strategy struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Category    string // strategy type tag, e.g. "momentum"
	AssetClass  AssetClass
	Symbols     []string
	Timeframe   string
	Status      StrategyStatus

	Parameters     map[string]interface{}
	RiskParameters map[string]interface{}

	// Cumulative performance, engine-computed.
	TotalPnL      decimal.Decimal
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent, 0 when TotalTrades == 0
	MaxDrawdown   decimal.Decimal

	CapitalAllocated decimal.Decimal
	MaxOpenPositions int
	Window           TimeWindow

	Version        int // incremented on every structural update
	LastExecutedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ComputeWinRate returns the win rate percentage, guarded against a zero
// trade count.
func ComputeWinRate(winning, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(winning) / float64(total) * 100
}

// RecomputeWinRate refreshes the derived WinRate from the raw counts.
func (s *Strategy) RecomputeWinRate() {
	s.WinRate = ComputeWinRate(s.WinningTrades, s.TotalTrades)
}

// IsActiveAt reports whether the strategy is ACTIVE and t falls inside its
// trading window.
func (s *Strategy) IsActiveAt(t time.Time) bool {
	return s.Status == StrategyActive && s.Window.Contains(t)
}

// Clone returns a deep copy safe to hand out in snapshots.
func (s *Strategy) Clone() *Strategy {
	cp := *s
	if s.Symbols != nil {
		cp.Symbols = append([]string(nil), s.Symbols...)
	}
	if s.Window.Days != nil {
		cp.Window.Days = append([]time.Weekday(nil), s.Window.Days...)
	}
	if s.Parameters != nil {
		cp.Parameters = make(map[string]interface{}, len(s.Parameters))
		for k, v := range s.Parameters {
			cp.Parameters[k] = v
		}
	}
	if s.RiskParameters != nil {
		cp.RiskParameters = make(map[string]interface{}, len(s.RiskParameters))
		for k, v := range s.RiskParameters {
			cp.RiskParameters[k] = v
		}
	}
	return &cp
}
