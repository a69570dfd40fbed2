package risk

import (
	"time"

	"insiderflow/models"
)

// ExitPolicy decides when an open position should be closed. Conditions are
// checked in a fixed precedence: stop loss, then take profit, then max hold
// time. When a stop and a time-out hold simultaneously the stop wins.
type ExitPolicy struct {
	StopPct   float64
	ProfitPct float64
	MaxHold   time.Duration
}

// DefaultExitPolicy mirrors the stock configuration: -10% stop, +15% take
// profit, 30-day hold limit.
func DefaultExitPolicy() ExitPolicy {
	return ExitPolicy{
		StopPct:   0.10,
		ProfitPct: 0.15,
		MaxHold:   30 * 24 * time.Hour,
	}
}

// Decide maps a position's entry state and the current price/time to an exit
// reason. The second return value is false while the position should stay
// open.
func (p ExitPolicy) Decide(entryPrice, currentPrice float64, entryTime, now time.Time) (models.ExitReason, bool) {
	if currentPrice <= entryPrice*(1-p.StopPct) {
		return models.ExitStop, true
	}
	if currentPrice >= entryPrice*(1+p.ProfitPct) {
		return models.ExitTakeProfit, true
	}
	if now.Sub(entryTime) >= p.MaxHold {
		return models.ExitTime, true
	}
	return "", false
}
