package broker

import (
	"context"
	"fmt"
	"math"

	"insiderflow/config"
	"insiderflow/logger"
	"insiderflow/models"
)

// Collector assembles a MarketSnapshot for a symbol from the data API.
// Each field is fetched independently and a failure leaves that field
// unset rather than failing the whole snapshot. Downstream filters treat
// an unset field as unknown, except price, which they require.
type Collector struct {
	alpaca *Alpaca
	cfg    config.SnapshotConfig
	log    *logger.Log
}

func NewCollector(alpaca *Alpaca, cfg config.SnapshotConfig) *Collector {
	return &Collector{
		alpaca: alpaca,
		cfg:    cfg,
		log:    logger.GetLogger(),
	}
}

func (c *Collector) Snapshot(ctx context.Context, symbol string) models.MarketSnapshot {
	var snap models.MarketSnapshot
	log := c.log.WithComponent("marketdata").WithFields(logger.Fields{"symbol": symbol})

	if price, err := c.alpaca.CurrentPrice(ctx, symbol); err != nil {
		log.WithError(err).Debug("no current price")
	} else {
		snap.Price = models.Float(price)
	}

	if bid, ask, err := c.alpaca.LatestQuote(ctx, symbol); err != nil {
		log.WithError(err).Debug("no latest quote")
	} else if bid > 0 && ask > bid {
		snap.BidAskSpread = models.Float(ask - bid)
	}

	c.fillFromDayBars(ctx, symbol, &snap, log)
	c.fillVolatility(ctx, symbol, &snap, log)

	return snap
}

// fillFromDayBars derives average daily volume, percent above the recent
// low and the daily close history from a single day-bar fetch.
func (c *Collector) fillFromDayBars(ctx context.Context, symbol string, snap *models.MarketSnapshot, log *logger.Entry) {
	limit := c.cfg.CloseHistory
	if c.cfg.WeekLowDays > limit {
		limit = c.cfg.WeekLowDays
	}
	bars, err := c.alpaca.DayBars(ctx, symbol, limit)
	if err != nil {
		log.WithError(err).Debug("no daily bars")
		return
	}
	if len(bars) == 0 {
		return
	}

	if adv, err := averageVolume(bars, c.cfg.VolumeDays); err == nil {
		snap.AvgDailyVolume = models.Float(adv)
	}

	if snap.Price.Valid {
		if low, err := lowestLow(bars, c.cfg.WeekLowDays); err == nil && low > 0 {
			snap.PctSinceWeekLow = models.Float((snap.Price.Value - low) / low * 100)
		}
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	if len(closes) > c.cfg.CloseHistory {
		closes = closes[len(closes)-c.cfg.CloseHistory:]
	}
	snap.DailyCloses = closes
}

// fillVolatility sets the standard deviation of one-minute returns over the
// configured window.
func (c *Collector) fillVolatility(ctx context.Context, symbol string, snap *models.MarketSnapshot, log *logger.Entry) {
	bars, err := c.alpaca.MinuteBars(ctx, symbol, c.cfg.VolatilityMinutes+1)
	if err != nil {
		log.WithError(err).Debug("no minute bars")
		return
	}
	if len(bars) < 3 {
		return
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, bars[i].Close/prev-1)
	}
	if len(returns) < 2 {
		return
	}
	snap.IntradayVolatility = models.Float(stdDev(returns))
}

func averageVolume(bars []Bar, days int) (float64, error) {
	if days <= 0 || len(bars) == 0 {
		return 0, fmt.Errorf("no volume data")
	}
	window := bars
	if len(window) > days {
		window = window[len(window)-days:]
	}
	var total float64
	for _, b := range window {
		total += b.Volume
	}
	return total / float64(len(window)), nil
}

func lowestLow(bars []Bar, days int) (float64, error) {
	if days <= 0 || len(bars) == 0 {
		return 0, fmt.Errorf("no bar data")
	}
	window := bars
	if len(window) > days {
		window = window[len(window)-days:]
	}
	low := window[0].Low
	for _, b := range window[1:] {
		if b.Low < low {
			low = b.Low
		}
	}
	return low, nil
}

func stdDev(values []float64) float64 {
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
