package models

import "time"

// Position is an open holding tracked by the engine. At most one open
// position exists per symbol; qty and entry price never change after entry.
type Position struct {
	Symbol     string    `json:"symbol"`
	Qty        int       `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
}

// ExitReason names the exit-policy condition that closed a position.
type ExitReason string

const (
	ExitStop       ExitReason = "STOP"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitTime       ExitReason = "TIME"
)
