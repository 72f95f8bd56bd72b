// Package adapt assembles canonical domain records from the heterogeneous
// upstream wire shapes. All functions are pure and side-effect-free: they
// never perform I/O and never fail — a malformed or partially-missing source
// record degrades to documented defaults so a single bad record cannot
// prevent the rest of a list from being rendered. The "now" argument supplies
// every timestamp defaulted by the adapter, keeping output reproducible.
package adapt

import (
	"strings"
	"time"

	"tradedash/internal/domain"
	"tradedash/internal/ports"
)

// OrderFromEngine converts an engine-shape order record to the canonical
// form.
func OrderFromEngine(src ports.EngineOrder, now time.Time) *domain.Order {
	o := &domain.Order{
		ID:            src.OrderID,
		UserID:        src.UserID,
		StrategyID:    src.StrategyID,
		Symbol:        src.Symbol,
		Exchange:      defaultString(src.Exchange, domain.DefaultExchange),
		Side:          parseSide(src.Side),
		Type:          parseOrderType(src.OrderType),
		Product:       parseProduct(src.Product),
		Quantity:      src.Quantity,
		Price:         src.Price,
		TriggerPrice:  src.TriggerPrice,
		BrokerOrderID: src.BrokerOrderID,
		AvgFillPrice:  src.AveragePrice,
		Tags:          copyTags(src.Tags),
		Notes:         src.Notes,
		CreatedAt:     defaultTime(src.CreatedAt, now),
		PlacedAt:      derefTime(src.PlacedAt),
		ExecutedAt:    derefTime(src.ExecutedAt),
		CancelledAt:   derefTime(src.CancelledAt),
	}
	finalizeOrder(o, domain.OrderStatusFromEngine(src.Status), src.FilledQuantity)
	return o
}

// OrderFromAPI converts a REST-backend-shape order record to the canonical
// form.
func OrderFromAPI(src ports.APIOrder, now time.Time) *domain.Order {
	o := &domain.Order{
		ID:            src.ID,
		UserID:        src.UserID,
		StrategyID:    src.StrategyID,
		Symbol:        src.Symbol,
		Exchange:      defaultString(src.Exchange, domain.DefaultExchange),
		Side:          parseSide(src.Side),
		Type:          parseOrderType(src.OrderType),
		Product:       parseProduct(src.ProductType),
		Quantity:      src.Quantity,
		Price:         src.Price,
		TriggerPrice:  src.TriggerPrice,
		BrokerOrderID: src.BrokerOrderID,
		AvgFillPrice:  src.AveragePrice,
		Tags:          copyTags(src.Tags),
		Notes:         src.Notes,
		CreatedAt:     defaultTime(src.CreatedAt, now),
		PlacedAt:      derefTime(src.PlacedAt),
		ExecutedAt:    derefTime(src.ExecutedAt),
		CancelledAt:   derefTime(src.CancelledAt),
	}
	finalizeOrder(o, domain.OrderStatusFromAPI(src.Status), src.FilledQuantity)
	return o
}

// OrdersFromEngine converts a batch; no record is skipped.
func OrdersFromEngine(src []ports.EngineOrder, now time.Time) []*domain.Order {
	out := make([]*domain.Order, 0, len(src))
	for _, s := range src {
		out = append(out, OrderFromEngine(s, now))
	}
	return out
}

// OrdersFromAPI converts a batch; no record is skipped.
func OrdersFromAPI(src []ports.APIOrder, now time.Time) []*domain.Order {
	out := make([]*domain.Order, 0, len(src))
	for _, s := range src {
		out = append(out, OrderFromAPI(s, now))
	}
	return out
}

// finalizeOrder clamps the fill quantity and derives the canonical status so
// the fill invariant holds: 0 <= filled <= quantity, and the status is
// COMPLETE exactly when the order is fully filled without a reported
// terminal failure.
func finalizeOrder(o *domain.Order, mapped domain.OrderStatus, filled int64) {
	if o.Quantity < 0 {
		o.Quantity = 0
	}
	if filled < 0 {
		filled = 0
	}
	if filled > o.Quantity {
		filled = o.Quantity
	}

	switch {
	case mapped == domain.OrderCancelled || mapped == domain.OrderRejected || mapped == domain.OrderError:
		// Terminal failure reported upstream wins over the fill state.
		o.Status = mapped
	case mapped == domain.OrderComplete:
		// The upstream is authoritative about completion; align the fill.
		filled = o.Quantity
		o.Status = domain.OrderComplete
	case o.Quantity > 0 && filled == o.Quantity:
		o.Status = domain.OrderComplete
	case filled > 0:
		o.Status = domain.OrderOpen
	default:
		o.Status = mapped
	}
	o.FilledQuantity = filled
}

// --- shared parsing helpers ---

func parseSide(s string) domain.OrderSide {
	if strings.EqualFold(s, string(domain.Sell)) {
		return domain.Sell
	}
	return domain.Buy
}

func parseOrderType(s string) domain.OrderType {
	switch domain.OrderType(strings.ToUpper(s)) {
	case domain.Limit:
		return domain.Limit
	case domain.StopLoss:
		return domain.StopLoss
	case domain.StopLossMarket:
		return domain.StopLossMarket
	}
	return domain.Market
}

func parseProduct(s string) domain.ProductType {
	switch domain.ProductType(strings.ToUpper(s)) {
	case domain.ProductDelivery:
		return domain.ProductDelivery
	case domain.ProductNormal:
		return domain.ProductNormal
	}
	return domain.DefaultProduct
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func defaultTime(t, def time.Time) time.Time {
	if t.IsZero() {
		return def
	}
	return t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func copyTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return append([]string(nil), tags...)
}
