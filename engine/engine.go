package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"insiderflow/config"
	"insiderflow/logger"
	"insiderflow/models"
	"insiderflow/risk"
	"insiderflow/state"
	"insiderflow/strategy"
)

// Feed produces the current page of disclosures on each poll.
type Feed interface {
	Filings(ctx context.Context) ([]models.Filing, error)
}

// Broker executes orders and quotes prices.
type Broker interface {
	SubmitMarketBuy(ctx context.Context, symbol string, qty int) (models.OrderRef, error)
	SubmitMarketSell(ctx context.Context, symbol string, qty int) (models.OrderRef, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// MarketData assembles the snapshot a strategy evaluates against.
type MarketData interface {
	Snapshot(ctx context.Context, symbol string) models.MarketSnapshot
}

// Journal records executed entries and exits for audit.
type Journal interface {
	LogTrade(entry models.TradeLogEntry) error
	LogClose(entry models.CloseLogEntry) error
}

// Deps bundles the collaborators the engine drives each cycle.
type Deps struct {
	Feed       Feed
	Broker     Broker
	Market     MarketData
	Strategy   strategy.Strategy
	ExitPolicy risk.ExitPolicy
	Seen       *state.SeenStore
	Positions  *state.PositionStore
	Stats      *state.StatsStore
	Journal    Journal
}

// Engine runs the poll cycle: fetch filings, open entries for filings that
// pass the active strategy, then walk open positions and close the ones the
// exit policy fires on. Entries always run before exits within a cycle.
type Engine struct {
	config config.EngineConfig
	deps   Deps

	// now is replaceable in tests.
	now func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func New(cfg config.EngineConfig, deps Deps) *Engine {
	return &Engine{
		config: cfg,
		deps:   deps,
		now:    time.Now,
		log:    logger.GetLogger(),
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine is already running")
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	e.wg.Add(1)
	go e.run()

	e.log.WithComponent("engine").WithFields(logger.Fields{
		"strategy":      e.deps.Strategy.Name(),
		"poll_interval": e.config.PollInterval.Std().String(),
	}).Info("Engine started")
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	e.log.WithComponent("engine").Info("Engine stopped")
}

func (e *Engine) run() {
	defer e.wg.Done()

	for {
		wait := e.config.PollInterval.Std()
		if err := e.RunCycle(e.ctx); err != nil {
			if e.ctx.Err() != nil {
				return
			}
			e.log.WithComponent("engine").WithError(err).Warn("Cycle failed, backing off")
			wait = e.config.ErrorBackoff.Std()
		}

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunCycle executes one full poll cycle. A feed failure aborts the cycle
// before any trading; per-filing and per-position failures are contained so
// the rest of the cycle still runs.
func (e *Engine) RunCycle(ctx context.Context) error {
	filings, err := e.deps.Feed.Filings(ctx)
	if err != nil {
		return fmt.Errorf("feed poll failed: %w", err)
	}
	logger.IncrementFilings(len(filings))

	for _, filing := range filings {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.processFiling(ctx, filing)
	}

	for _, position := range e.deps.Positions.ListOpen() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.checkExit(ctx, position)
	}

	logger.IncrementCycle()
	return nil
}

// processFiling evaluates a single filing and opens a position when the
// strategy accepts it. The filing is marked seen before any evaluation, so
// a crash mid-processing can never re-trade it on restart.
func (e *Engine) processFiling(ctx context.Context, filing models.Filing) {
	log := e.log.WithComponent("engine").WithFields(logger.Fields{
		"form":   string(filing.Form),
		"ticker": filing.Ticker,
		"title":  filing.Title,
	})

	fingerprint := filing.Fingerprint()
	if e.deps.Seen.Seen(fingerprint) {
		return
	}
	if err := e.deps.Seen.MarkSeen(fingerprint); err != nil {
		// Fail closed: a filing whose dedup mark cannot be persisted is
		// never acted on.
		log.WithError(err).Error("Failed to record filing, skipping")
		return
	}

	if filing.Ticker == "" {
		log.Debug("Filing has no ticker")
		return
	}
	if e.deps.Positions.Has(filing.Ticker) {
		log.Debug("Already holding ticker")
		return
	}

	snap := e.deps.Market.Snapshot(ctx, filing.Ticker)
	intent, ok := e.deps.Strategy.Evaluate(filing, snap)
	if !ok {
		return
	}

	ref, err := e.deps.Broker.SubmitMarketBuy(ctx, intent.Symbol, intent.Qty)
	if err != nil {
		logger.IncrementOrderFailures()
		log.WithError(err).Error("Buy order failed")
		return
	}

	qty := intent.Qty
	if ref.Qty > 0 {
		qty = ref.Qty
	}
	entryTime := e.now().UTC()

	if err := e.deps.Journal.LogTrade(models.TradeLogEntry{
		UTCTime:       entryTime,
		Ticker:        intent.Symbol,
		Form:          filing.Form,
		Qty:           qty,
		BrokerOrderID: ref.ID,
	}); err != nil {
		log.WithError(err).Warn("Failed to journal trade")
	}

	if err := e.deps.Positions.Add(models.Position{
		Symbol:     intent.Symbol,
		Qty:        qty,
		EntryPrice: intent.EntryPrice,
		EntryTime:  entryTime,
	}); err != nil {
		log.WithError(err).Error("Failed to persist position")
		return
	}

	logger.IncrementEntries()
	log.WithFields(logger.Fields{
		"qty":      qty,
		"price":    intent.EntryPrice,
		"order_id": ref.ID,
	}).Info("Position opened")
}

// checkExit closes a position when the exit policy fires. A failed sell
// leaves the position tracked so the next cycle retries it.
func (e *Engine) checkExit(ctx context.Context, position models.Position) {
	log := e.log.WithComponent("engine").WithFields(logger.Fields{
		"symbol": position.Symbol,
	})

	price, err := e.deps.Broker.CurrentPrice(ctx, position.Symbol)
	if err != nil {
		log.WithError(err).Warn("No current price, keeping position")
		return
	}

	reason, exit := e.deps.ExitPolicy.Decide(position.EntryPrice, price, position.EntryTime, e.now())
	if !exit {
		return
	}

	if _, err := e.deps.Broker.SubmitMarketSell(ctx, position.Symbol, position.Qty); err != nil {
		logger.IncrementOrderFailures()
		log.WithError(err).Error("Sell order failed, will retry next cycle")
		return
	}

	pnl := (price - position.EntryPrice) * float64(position.Qty)
	exitTime := e.now().UTC()

	if err := e.deps.Journal.LogClose(models.CloseLogEntry{
		UTCExit:    exitTime,
		Symbol:     position.Symbol,
		Qty:        position.Qty,
		EntryPrice: position.EntryPrice,
		ExitPrice:  price,
		PnLDollars: pnl,
		Reason:     reason,
	}); err != nil {
		log.WithError(err).Warn("Failed to journal close")
	}

	if err := e.deps.Stats.Record(position.Symbol, pnl > 0); err != nil {
		log.WithError(err).Warn("Failed to record trade outcome")
	}

	if err := e.deps.Positions.Remove(position.Symbol); err != nil {
		log.WithError(err).Error("Failed to remove closed position")
		return
	}

	logger.IncrementExits()
	log.WithFields(logger.Fields{
		"reason":     string(reason),
		"exit_price": price,
		"pnl":        pnl,
	}).Info("Position closed")
}
