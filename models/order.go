package models

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderIntent is the output of a strategy: a fully sized buy the engine can
// submit as-is. Consumed once, never persisted.
type OrderIntent struct {
	Action     Side
	Symbol     string
	Qty        int
	EntryPrice float64
}

// OrderRef identifies an order accepted by the broker.
type OrderRef struct {
	ID  string
	Qty int
}
