package strategy

import (
	"insiderflow/logger"
	"insiderflow/models"
	"insiderflow/risk"
)

// MomentumConfig holds the tunables for the momentum gate chain.
type MomentumConfig struct {
	TargetDollars     float64
	MinAvgDailyVolume float64
	ShortWindow       int // e.g. 20-day SMA
	LongWindow        int // e.g. 50-day SMA
	RSIPeriod         int
	RSIMin            float64
	RSIMax            float64
	MACDFast          int
	MACDSlow          int
	MACDSignal        int
	MultiTFRequired   int // timeframe confirmations needed, out of 3
}

// Momentum confirms an insider filing against the symbol's trailing daily
// closes: trend, RSI band, MACD histogram, moving-average crossover and
// multi-timeframe agreement all have to line up before it buys.
type Momentum struct {
	cfg MomentumConfig
	log *logger.Log
}

func NewMomentum(cfg MomentumConfig) *Momentum {
	return &Momentum{cfg: cfg, log: logger.GetLogger()}
}

func (s *Momentum) Name() string { return VariantMomentum }

func (s *Momentum) Evaluate(filing models.Filing, snap models.MarketSnapshot) (models.OrderIntent, bool) {
	if filing.Form != models.Form4 {
		return s.reject(filing, "form")
	}
	if filing.Ticker == "" {
		return s.reject(filing, "ticker")
	}

	closes := snap.DailyCloses
	if len(closes) < s.cfg.LongWindow {
		return s.reject(filing, "history")
	}

	if snap.AvgDailyVolume.Valid && snap.AvgDailyVolume.Value < s.cfg.MinAvgDailyVolume {
		return s.reject(filing, "liquidity")
	}

	if !snap.Price.Valid || snap.Price.Value <= 0 {
		return s.reject(filing, "price")
	}
	price := snap.Price.Value

	longSMA, ok := trailingSMA(closes, s.cfg.LongWindow)
	if !ok {
		return s.reject(filing, "history")
	}
	if price <= longSMA {
		return s.reject(filing, "trend")
	}

	rsi, ok := RSI(closes, s.cfg.RSIPeriod)
	if !ok || rsi < s.cfg.RSIMin || rsi > s.cfg.RSIMax {
		return s.reject(filing, "rsi")
	}

	hist, ok := MACDHistogram(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	if !ok || hist <= 0 {
		return s.reject(filing, "macd")
	}

	shortSMA, ok := trailingSMA(closes, s.cfg.ShortWindow)
	if !ok {
		return s.reject(filing, "history")
	}
	if shortSMA <= longSMA {
		return s.reject(filing, "crossover")
	}

	// Multi-timeframe confirmation: daily crossover plus weekly (5-day) and
	// monthly (21-day) SMAs against the long SMA. A series too short for a
	// window simply does not confirm that timeframe.
	confirmations := 1
	if weekly, ok := trailingSMA(closes, 5); ok && weekly > longSMA {
		confirmations++
	}
	if monthly, ok := trailingSMA(closes, 21); ok && monthly > longSMA {
		confirmations++
	}
	if confirmations < s.cfg.MultiTFRequired {
		return s.reject(filing, "timeframes")
	}

	qty := risk.Size(s.cfg.TargetDollars, price)
	if qty < 1 {
		return s.reject(filing, "size")
	}

	return models.OrderIntent{
		Action:     models.SideBuy,
		Symbol:     filing.Ticker,
		Qty:        qty,
		EntryPrice: price,
	}, true
}

func (s *Momentum) reject(filing models.Filing, gate string) (models.OrderIntent, bool) {
	s.log.WithComponent("strategy").WithFields(logger.Fields{
		"variant": s.Name(),
		"ticker":  filing.Ticker,
		"gate":    gate,
	}).Debug("filing rejected")
	return models.OrderIntent{}, false
}
