package models

import "time"

// TradeLogEntry is an append-only audit record for an executed entry.
// Written to trades.csv, never read back by the engine.
type TradeLogEntry struct {
	UTCTime       time.Time
	Ticker        string
	Form          FilingForm
	Qty           int
	BrokerOrderID string
}

// CloseLogEntry is an append-only audit record for an executed exit.
// Written to closed_trades.csv, never read back by the engine.
type CloseLogEntry struct {
	UTCExit    time.Time
	Symbol     string
	Qty        int
	EntryPrice float64
	ExitPrice  float64
	PnLDollars float64
	Reason     ExitReason
}
