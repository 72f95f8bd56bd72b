package domain

// Status mapping between the remote engine's status vocabularies and the
// canonical enums. The mappers are total: every input yields a defined value
// and an unrecognized token is never promoted to a high-stakes status such as
// COMPLETE or ACTIVE.

// OrderStatusFromEngine maps an engine order status token to the canonical
// order status.
func OrderStatusFromEngine(token string) OrderStatus {
	switch token {
	case "pending":
		return OrderPending
	case "placed":
		return OrderPlaced
	case "filled":
		return OrderComplete
	case "rejected":
		return OrderRejected
	case "cancelled":
		return OrderCancelled
	}
	return OrderUnknown
}

// OrderStatusFromAPI maps a REST backend order status token to the canonical
// order status. Recognized canonical tokens pass through unchanged; FAILED is
// folded into REJECTED; everything else, including NULL/DEFAULT sentinels and
// the empty string, degrades to UNKNOWN.
func OrderStatusFromAPI(token string) OrderStatus {
	switch OrderStatus(token) {
	case OrderPending, OrderPlaced, OrderOpen, OrderComplete,
		OrderCancelled, OrderRejected, OrderError, OrderQueued:
		return OrderStatus(token)
	}
	if token == "FAILED" {
		return OrderRejected
	}
	return OrderUnknown
}

// StrategyStatusFromEngine maps an engine strategy status token to the
// canonical strategy status. The engine's "available" marks a catalog entry
// not yet activated for the user, which the dashboard shows as DRAFT; any
// unrecognized token also lands on DRAFT, the lowest-stakes state.
func StrategyStatusFromEngine(token string) StrategyStatus {
	switch token {
	case "active":
		return StrategyActive
	case "paused":
		return StrategyPaused
	}
	return StrategyDraft
}
