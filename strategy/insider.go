package strategy

import (
	"strings"

	"insiderflow/logger"
	"insiderflow/models"
	"insiderflow/risk"
)

// InsiderConfig holds the tunables for the insider-simple gate chain.
type InsiderConfig struct {
	SignificantRoles      []string
	TargetDollars         float64
	MinSuccessRate        float64
	MinAvgDailyVolume     float64
	MaxBidAskSpread       float64
	MaxPctSinceWeekLow    float64
	MaxIntradayVolatility float64
	MaxSlippage           float64
}

// InsiderSimple trades Form 4 filings from significant insiders, filtered by
// a sequence of liquidity and quality gates. Each gate short-circuits: the
// first failing gate rejects the filing.
type InsiderSimple struct {
	cfg     InsiderConfig
	history History
	log     *logger.Log
}

func NewInsiderSimple(cfg InsiderConfig, history History) *InsiderSimple {
	return &InsiderSimple{cfg: cfg, history: history, log: logger.GetLogger()}
}

func (s *InsiderSimple) Name() string { return VariantInsiderSimple }

// Evaluate runs the gate chain against one filing. Unknown market-data fields
// pass through every gate except the price gate, which requires a fetched
// positive price.
func (s *InsiderSimple) Evaluate(filing models.Filing, snap models.MarketSnapshot) (models.OrderIntent, bool) {
	if filing.Form != models.Form4 {
		return s.reject(filing, "form")
	}

	title := strings.ToLower(filing.Title)
	role := false
	for _, r := range s.cfg.SignificantRoles {
		if strings.Contains(title, strings.ToLower(r)) {
			role = true
			break
		}
	}
	if !role {
		return s.reject(filing, "role")
	}

	if filing.Ticker == "" {
		return s.reject(filing, "ticker")
	}

	if !snap.Price.Valid || snap.Price.Value <= 0 {
		return s.reject(filing, "price")
	}
	price := snap.Price.Value

	if tx := filing.TransactionType; tx != "" && !strings.Contains(strings.ToUpper(tx), "BUY") {
		return s.reject(filing, "transaction_type")
	}

	if s.history != nil {
		if rate, ok := s.history.SuccessRate(filing.Ticker); ok && rate < s.cfg.MinSuccessRate {
			return s.reject(filing, "success_rate")
		}
	}

	if snap.AvgDailyVolume.Valid && snap.AvgDailyVolume.Value < s.cfg.MinAvgDailyVolume {
		return s.reject(filing, "liquidity")
	}

	if snap.BidAskSpread.Valid && snap.BidAskSpread.Value > s.cfg.MaxBidAskSpread {
		return s.reject(filing, "spread")
	}

	if snap.PctSinceWeekLow.Valid && snap.PctSinceWeekLow.Value > s.cfg.MaxPctSinceWeekLow {
		return s.reject(filing, "week_low_rise")
	}

	if snap.IntradayVolatility.Valid && snap.IntradayVolatility.Value > s.cfg.MaxIntradayVolatility {
		return s.reject(filing, "volatility")
	}

	if slippage, ok := estimateSlippage(snap, price); ok && slippage > s.cfg.MaxSlippage {
		return s.reject(filing, "slippage")
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

// estimateSlippage heuristically estimates execution slippage as
// max(1.5 * intraday volatility, spread / price). It is computable when
// either input is known.
func estimateSlippage(snap models.MarketSnapshot, price float64) (float64, bool) {
	est := 0.0
	ok := false
	if snap.IntradayVolatility.Valid {
		est = 1.5 * snap.IntradayVolatility.Value
		ok = true
	}
	if snap.BidAskSpread.Valid && price > 0 {
		if rel := snap.BidAskSpread.Value / price; !ok || rel > est {
			est = rel
		}
		ok = true
	}
	return est, ok
}

func (s *InsiderSimple) reject(filing models.Filing, gate string) (models.OrderIntent, bool) {
	s.log.WithComponent("strategy").WithFields(logger.Fields{
		"variant": s.Name(),
		"ticker":  filing.Ticker,
		"gate":    gate,
	}).Debug("filing rejected")
	return models.OrderIntent{}, false
}
