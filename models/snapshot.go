package models

// OptFloat is an optional float64. Market-data fields that could not be
// fetched carry Valid=false, which filters must treat as "unknown", not zero.
type OptFloat struct {
	Value float64
	Valid bool
}

// Float wraps a known value.
func Float(v float64) OptFloat {
	return OptFloat{Value: v, Valid: true}
}

// MarketSnapshot is a read-only view of a symbol's market state, assembled on
// demand before strategy evaluation. Every field is independently optional.
type MarketSnapshot struct {
	Price              OptFloat
	AvgDailyVolume     OptFloat
	BidAskSpread       OptFloat
	PctSinceWeekLow    OptFloat
	IntradayVolatility OptFloat

	// DailyCloses is the trailing daily close series, oldest first.
	// nil means the history could not be fetched.
	DailyCloses []float64
}
