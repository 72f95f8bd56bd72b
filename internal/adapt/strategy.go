package adapt

import (
	"strings"
	"time"

	"tradedash/internal/domain"
	"tradedash/internal/ports"
)

// StrategyFromCatalog converts a marketplace catalog entry to the canonical
// form. A catalog entry carries the full descriptive metadata but no
// per-user performance, so performance fields are zeroed.
func StrategyFromCatalog(src ports.EngineStrategy, now time.Time) *domain.Strategy {
	s := &domain.Strategy{
		ID:               src.StrategyID,
		Name:             defaultString(src.Name, placeholderName(src.StrategyID)),
		Description:      src.Description,
		Category:         src.Category,
		AssetClass:       parseAssetClass(src.AssetClass),
		Symbols:          copyTags(src.Symbols),
		Timeframe:        defaultString(src.Timeframe, domain.DefaultTimeframe),
		Status:           domain.StrategyStatusFromEngine(src.Status),
		Parameters:       copyParams(src.Parameters),
		RiskParameters:   copyParams(src.RiskParameters),
		MaxOpenPositions: src.MaxPositions,
		Window:           parseWindow(src.TradingStart, src.TradingEnd, src.TradingDays),
		Version:          1,
		CreatedAt:        defaultTime(src.CreatedAt, now),
		UpdatedAt:        defaultTime(src.CreatedAt, now),
	}
	return s
}

// StrategyFromActivation converts a per-user activation record to the
// canonical form, enriched with descriptive metadata from the matching
// catalog entry. Enrichment is best-effort: with a nil catalog entry the
// adapter synthesizes a minimal placeholder record rather than failing.
func StrategyFromActivation(src ports.UserStrategy, catalog *ports.EngineStrategy, now time.Time) *domain.Strategy {
	var s *domain.Strategy
	if catalog != nil {
		s = StrategyFromCatalog(*catalog, now)
	} else {
		s = &domain.Strategy{
			ID:             src.StrategyID,
			Name:           placeholderName(src.StrategyID),
			AssetClass:     domain.AssetEquity,
			Timeframe:      domain.DefaultTimeframe,
			Parameters:     map[string]interface{}{},
			RiskParameters: map[string]interface{}{},
			Window:         domain.DefaultTimeWindow(),
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	s.UserID = src.UserID
	s.Status = domain.StrategyStatusFromEngine(src.Status)
	s.CapitalAllocated = src.AllocationAmount
	s.TotalPnL = src.TotalPnL
	s.MaxDrawdown = src.MaxDrawdown
	s.LastExecutedAt = src.LastExecuted

	// Aggregates are computed from the raw counts, never copied.
	total, wins := src.TotalOrders, src.SuccessfulOrders
	if total < 0 {
		total = 0
	}
	if wins < 0 {
		wins = 0
	}
	if wins > total {
		wins = total
	}
	s.TotalTrades = total
	s.WinningTrades = wins
	s.LosingTrades = total - wins
	s.RecomputeWinRate()
	return s
}

// StrategiesFromDashboard converts the dashboard's activation records,
// cross-referencing each against the catalog by identifier. No record is
// skipped.
func StrategiesFromDashboard(active []ports.UserStrategy, catalog []ports.EngineStrategy, now time.Time) []*domain.Strategy {
	byID := make(map[string]*ports.EngineStrategy, len(catalog))
	for i := range catalog {
		byID[catalog[i].StrategyID] = &catalog[i]
	}
	out := make([]*domain.Strategy, 0, len(active))
	for _, us := range active {
		out = append(out, StrategyFromActivation(us, byID[us.StrategyID], now))
	}
	return out
}

func placeholderName(id string) string {
	if id == "" {
		return "Strategy"
	}
	return "Strategy " + id
}

func parseAssetClass(s string) domain.AssetClass {
	switch domain.AssetClass(strings.ToUpper(s)) {
	case domain.AssetDerivatives:
		return domain.AssetDerivatives
	case domain.AssetCrypto:
		return domain.AssetCrypto
	case domain.AssetCommodities:
		return domain.AssetCommodities
	case domain.AssetForex:
		return domain.AssetForex
	}
	return domain.AssetEquity
}

func parseWindow(start, end string, days []string) domain.TimeWindow {
	w := domain.DefaultTimeWindow()
	if _, err := time.Parse("15:04", start); err == nil {
		w.Start = start
	}
	if _, err := time.Parse("15:04", end); err == nil {
		w.End = end
	}
	if len(days) > 0 {
		parsed := make([]time.Weekday, 0, len(days))
		for _, d := range days {
			if wd, ok := weekdayByName[strings.ToLower(d)]; ok {
				parsed = append(parsed, wd)
			}
		}
		if len(parsed) > 0 {
			w.Days = parsed
		}
	}
	return w
}

var weekdayByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func copyParams(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
