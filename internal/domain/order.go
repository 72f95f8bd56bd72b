package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents how an order is priced and triggered.
type OrderType string

const (
	Market         OrderType = "MARKET"
	Limit          OrderType = "LIMIT"
	StopLoss       OrderType = "SL"
	StopLossMarket OrderType = "SL_M"
)

// ProductType represents the broker product an order is booked under.
type ProductType string

const (
	ProductIntraday ProductType = "MIS"
	ProductDelivery ProductType = "CNC"
	ProductNormal   ProductType = "NRML"
)

// OrderStatus is the canonical status the dashboard renders from,
// independent of which upstream produced the order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPlaced    OrderStatus = "PLACED"
	OrderOpen      OrderStatus = "OPEN"
	OrderComplete  OrderStatus = "COMPLETE"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderError     OrderStatus = "ERROR"
	OrderQueued    OrderStatus = "QUEUED"
	OrderUnknown   OrderStatus = "UNKNOWN"
)

// IsTerminal reports whether no further mutation of the order is permitted.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderComplete, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether a transition from s to next is reachable.
// The forward path is PENDING -> PLACED -> OPEN -> COMPLETE; the failure
// states CANCELLED, REJECTED, ERROR and UNKNOWN are reachable from any
// non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case OrderCancelled, OrderRejected, OrderError, OrderUnknown:
		return true
	}
	rank := func(st OrderStatus) int {
		switch st {
		case OrderQueued:
			return 0
		case OrderPending:
			return 1
		case OrderPlaced:
			return 2
		case OrderOpen:
			return 3
		case OrderComplete:
			return 4
		}
		return -1
	}
	from, to := rank(s), rank(next)
	if from < 0 || to < 0 {
		// Out of an ERROR/UNKNOWN state anything forward is allowed; the
		// engine remains the source of truth for what actually happened.
		return rank(next) >= 0
	}
	return to > from
}

// Order is the canonical order record mirrored from the trading engine.
type Order struct {
	ID             string
	UserID         string
	StrategyID     string // empty for manual orders
	Symbol         string
	Exchange       string
	Side           OrderSide
	Type           OrderType
	Product        ProductType
	Quantity       int64
	Price          decimal.Decimal // limit price, zero for market orders
	TriggerPrice   decimal.Decimal // for SL / SL_M orders
	BrokerOrderID  string          // populated only after placement
	Status         OrderStatus
	FilledQuantity int64
	AvgFillPrice   decimal.Decimal
	Tags           []string
	Notes          string
	CreatedAt      time.Time
	PlacedAt       time.Time // zero until placed
	ExecutedAt     time.Time // zero until fully executed
	CancelledAt    time.Time // zero unless cancelled
}

// IsFilled reports whether the full requested quantity has been executed.
func (o *Order) IsFilled() bool {
	return o.Quantity > 0 && o.FilledQuantity == o.Quantity
}

// RemainingQuantity returns the unfilled portion of the order.
func (o *Order) RemainingQuantity() int64 {
	rem := o.Quantity - o.FilledQuantity
	if rem < 0 {
		return 0
	}
	return rem
}

// Clone returns a deep copy safe to hand out in snapshots.
func (o *Order) Clone() *Order {
	cp := *o
	if o.Tags != nil {
		cp.Tags = append([]string(nil), o.Tags...)
	}
	return &cp
}
