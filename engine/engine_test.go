package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"insiderflow/config"
	"insiderflow/models"
	"insiderflow/risk"
	"insiderflow/state"
)

type fakeFeed struct {
	mu      sync.Mutex
	filings []models.Filing
	err     error
	calls   int
}

func (f *fakeFeed) Filings(ctx context.Context) ([]models.Filing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.filings, nil
}

type fakeBroker struct {
	mu      sync.Mutex
	prices  map[string]float64
	buyErr  error
	sellErr error
	ops     []string
}

func (b *fakeBroker) SubmitMarketBuy(ctx context.Context, symbol string, qty int) (models.OrderRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buyErr != nil {
		return models.OrderRef{}, b.buyErr
	}
	b.ops = append(b.ops, fmt.Sprintf("buy %s %d", symbol, qty))
	return models.OrderRef{ID: fmt.Sprintf("order-%d", len(b.ops)), Qty: qty}, nil
}

func (b *fakeBroker) SubmitMarketSell(ctx context.Context, symbol string, qty int) (models.OrderRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sellErr != nil {
		return models.OrderRef{}, b.sellErr
	}
	b.ops = append(b.ops, fmt.Sprintf("sell %s %d", symbol, qty))
	return models.OrderRef{ID: fmt.Sprintf("order-%d", len(b.ops)), Qty: qty}, nil
}

func (b *fakeBroker) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	price, ok := b.prices[symbol]
	if !ok {
		return 0, errors.New("no price")
	}
	return price, nil
}

func (b *fakeBroker) operations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

type fakeMarket struct {
	broker *fakeBroker
}

func (m *fakeMarket) Snapshot(ctx context.Context, symbol string) models.MarketSnapshot {
	var snap models.MarketSnapshot
	if price, err := m.broker.CurrentPrice(ctx, symbol); err == nil {
		snap.Price = models.Float(price)
	}
	return snap
}

// stubStrategy buys any filing whose snapshot has a price, sizing to a
// fixed dollar target.
type stubStrategy struct{}

func (stubStrategy) Name() string { return "stub" }

func (stubStrategy) Evaluate(filing models.Filing, snap models.MarketSnapshot) (models.OrderIntent, bool) {
	if filing.Ticker == "" || !snap.Price.Valid {
		return models.OrderIntent{}, false
	}
	qty := risk.Size(1000, snap.Price.Value)
	if qty < 1 {
		return models.OrderIntent{}, false
	}
	return models.OrderIntent{
		Action:     models.SideBuy,
		Symbol:     filing.Ticker,
		Qty:        qty,
		EntryPrice: snap.Price.Value,
	}, true
}

type fakeJournal struct {
	mu     sync.Mutex
	trades []models.TradeLogEntry
	closes []models.CloseLogEntry
}

func (j *fakeJournal) LogTrade(entry models.TradeLogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, entry)
	return nil
}

func (j *fakeJournal) LogClose(entry models.CloseLogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closes = append(j.closes, entry)
	return nil
}

type harness struct {
	engine    *Engine
	feed      *fakeFeed
	broker    *fakeBroker
	journal   *fakeJournal
	seen      *state.SeenStore
	positions *state.PositionStore
	stats     *state.StatsStore
}

func newHarness(t *testing.T, stateDir string) *harness {
	t.Helper()
	if stateDir == "" {
		stateDir = t.TempDir()
	}

	seen, err := state.OpenSeen(filepath.Join(stateDir, "seen.json"))
	if err != nil {
		t.Fatalf("OpenSeen failed: %v", err)
	}
	positions, err := state.OpenPositions(filepath.Join(stateDir, "positions.json"))
	if err != nil {
		t.Fatalf("OpenPositions failed: %v", err)
	}
	stats, err := state.OpenStats(filepath.Join(stateDir, "stats.json"))
	if err != nil {
		t.Fatalf("OpenStats failed: %v", err)
	}

	feed := &fakeFeed{}
	broker := &fakeBroker{prices: map[string]float64{}}
	journal := &fakeJournal{}

	eng := New(config.EngineConfig{
		PollInterval: config.Duration(10 * time.Millisecond),
		ErrorBackoff: config.Duration(10 * time.Millisecond),
	}, Deps{
		Feed:       feed,
		Broker:     broker,
		Market:     &fakeMarket{broker: broker},
		Strategy:   stubStrategy{},
		ExitPolicy: risk.DefaultExitPolicy(),
		Seen:       seen,
		Positions:  positions,
		Stats:      stats,
		Journal:    journal,
	})

	return &harness{
		engine:    eng,
		feed:      feed,
		broker:    broker,
		journal:   journal,
		seen:      seen,
		positions: positions,
		stats:     stats,
	}
}

func sampleFiling(ticker string) models.Filing {
	return models.Filing{
		Form:    models.Form4,
		Ticker:  ticker,
		Title:   "Form 4 - Insider (" + ticker + ")",
		Link:    "https://www.sec.gov/filing/" + ticker,
		FiledAt: time.Date(2025, 6, 2, 18, 30, 0, 0, time.UTC),
	}
}

func TestCycleOpensPosition(t *testing.T) {
	h := newHarness(t, "")
	h.feed.filings = []models.Filing{sampleFiling("ACME")}
	h.broker.prices["ACME"] = 10.0

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	ops := h.broker.operations()
	if len(ops) != 1 || ops[0] != "buy ACME 100" {
		t.Fatalf("expected one buy of 100 shares, got %v", ops)
	}
	if !h.positions.Has("ACME") {
		t.Error("expected an open position in ACME")
	}
	if !h.seen.Seen(h.feed.filings[0].Fingerprint()) {
		t.Error("expected filing marked seen")
	}
	if len(h.journal.trades) != 1 || h.journal.trades[0].Ticker != "ACME" {
		t.Errorf("expected one journaled trade, got %+v", h.journal.trades)
	}
	if h.journal.trades[0].UTCTime.Location() != time.UTC {
		t.Error("expected journal time in UTC")
	}
}

func TestCycleIsIdempotent(t *testing.T) {
	h := newHarness(t, "")
	h.feed.filings = []models.Filing{sampleFiling("ACME")}
	h.broker.prices["ACME"] = 10.0

	for i := 0; i < 3; i++ {
		if err := h.engine.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle %d failed: %v", i, err)
		}
	}

	if ops := h.broker.operations(); len(ops) != 1 {
		t.Errorf("expected a single buy across repeated cycles, got %v", ops)
	}
}

func TestFeedErrorAbortsCycle(t *testing.T) {
	h := newHarness(t, "")
	h.feed.err = errors.New("edgar unavailable")
	h.positions.Add(models.Position{
		Symbol: "HELD", Qty: 5, EntryPrice: 10.0,
		EntryTime: time.Now().UTC(),
	})
	h.broker.prices["HELD"] = 20.0

	if err := h.engine.RunCycle(context.Background()); err == nil {
		t.Fatal("expected cycle error when the feed fails")
	}
	// No trading at all, not even exits, on a failed poll.
	if ops := h.broker.operations(); len(ops) != 0 {
		t.Errorf("expected no orders, got %v", ops)
	}
}

func TestUnrecordableFilingIsNotTraded(t *testing.T) {
	stateDir := t.TempDir()
	h := newHarness(t, stateDir)
	h.feed.filings = []models.Filing{sampleFiling("ACME")}
	h.broker.prices["ACME"] = 10.0

	// Make dedup persistence impossible.
	if err := os.RemoveAll(stateDir); err != nil {
		t.Fatalf("failed to remove state dir: %v", err)
	}

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if ops := h.broker.operations(); len(ops) != 0 {
		t.Errorf("expected no orders when dedup cannot persist, got %v", ops)
	}
	if h.seen.Seen(h.feed.filings[0].Fingerprint()) {
		t.Error("expected failed mark to roll back")
	}
}

func TestTickerlessFilingMarkedSeen(t *testing.T) {
	h := newHarness(t, "")
	filing := sampleFiling("ACME")
	filing.Ticker = ""
	h.feed.filings = []models.Filing{filing}

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if ops := h.broker.operations(); len(ops) != 0 {
		t.Errorf("expected no orders, got %v", ops)
	}
	if !h.seen.Seen(filing.Fingerprint()) {
		t.Error("expected tickerless filing still marked seen")
	}
}

func TestHeldTickerSkipped(t *testing.T) {
	h := newHarness(t, "")
	h.feed.filings = []models.Filing{sampleFiling("ACME")}
	h.broker.prices["ACME"] = 10.0
	h.positions.Add(models.Position{
		Symbol: "ACME", Qty: 50, EntryPrice: 9.0,
		EntryTime: time.Now().UTC(),
	})

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if ops := h.broker.operations(); len(ops) != 0 {
		t.Errorf("expected no second entry in a held ticker, got %v", ops)
	}
}

func TestExitTakeProfit(t *testing.T) {
	h := newHarness(t, "")
	entry := time.Now().UTC().Add(-24 * time.Hour)
	h.positions.Add(models.Position{
		Symbol: "ACME", Qty: 100, EntryPrice: 10.0, EntryTime: entry,
	})
	h.broker.prices["ACME"] = 11.6

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	ops := h.broker.operations()
	if len(ops) != 1 || ops[0] != "sell ACME 100" {
		t.Fatalf("expected one sell, got %v", ops)
	}
	if h.positions.Has("ACME") {
		t.Error("expected position removed after exit")
	}
	if len(h.journal.closes) != 1 {
		t.Fatalf("expected one journaled close, got %+v", h.journal.closes)
	}
	closed := h.journal.closes[0]
	if closed.Reason != models.ExitTakeProfit {
		t.Errorf("expected TAKE_PROFIT, got %s", closed.Reason)
	}
	if closed.PnLDollars < 159.99 || closed.PnLDollars > 160.01 {
		t.Errorf("expected pnl near 160, got %v", closed.PnLDollars)
	}
	if rate, ok := h.stats.SuccessRate("ACME"); !ok || rate != 1.0 {
		t.Errorf("expected recorded win, got rate=%v ok=%v", rate, ok)
	}
}

func TestExitStopRecordsLoss(t *testing.T) {
	h := newHarness(t, "")
	h.positions.Add(models.Position{
		Symbol: "ACME", Qty: 100, EntryPrice: 10.0,
		EntryTime: time.Now().UTC(),
	})
	h.broker.prices["ACME"] = 8.9

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(h.journal.closes) != 1 || h.journal.closes[0].Reason != models.ExitStop {
		t.Fatalf("expected STOP close, got %+v", h.journal.closes)
	}
	if rate, ok := h.stats.SuccessRate("ACME"); !ok || rate != 0.0 {
		t.Errorf("expected recorded loss, got rate=%v ok=%v", rate, ok)
	}
}

func TestSellFailureKeepsPosition(t *testing.T) {
	h := newHarness(t, "")
	h.positions.Add(models.Position{
		Symbol: "ACME", Qty: 100, EntryPrice: 10.0,
		EntryTime: time.Now().UTC(),
	})
	h.broker.prices["ACME"] = 11.6
	h.broker.sellErr = errors.New("broker down")

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if !h.positions.Has("ACME") {
		t.Error("expected position retained after failed sell")
	}
	if len(h.journal.closes) != 0 {
		t.Errorf("expected no journaled close, got %+v", h.journal.closes)
	}
	if _, ok := h.stats.SuccessRate("ACME"); ok {
		t.Error("expected no outcome recorded for a failed sell")
	}

	// The position exits normally once the broker recovers.
	h.broker.sellErr = nil
	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if h.positions.Has("ACME") {
		t.Error("expected position closed after retry")
	}
}

func TestEntriesRunBeforeExits(t *testing.T) {
	h := newHarness(t, "")
	h.feed.filings = []models.Filing{sampleFiling("NEWCO")}
	h.broker.prices["NEWCO"] = 10.0
	h.broker.prices["OLDCO"] = 20.0
	h.positions.Add(models.Position{
		Symbol: "OLDCO", Qty: 10, EntryPrice: 10.0,
		EntryTime: time.Now().UTC(),
	})

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	ops := h.broker.operations()
	if len(ops) != 2 {
		t.Fatalf("expected a buy and a sell, got %v", ops)
	}
	if ops[0] != "buy NEWCO 100" || ops[1] != "sell OLDCO 10" {
		t.Errorf("expected entry before exit, got %v", ops)
	}
}

func TestBuyFailureLeavesFilingConsumed(t *testing.T) {
	h := newHarness(t, "")
	h.feed.filings = []models.Filing{sampleFiling("ACME")}
	h.broker.prices["ACME"] = 10.0
	h.broker.buyErr = errors.New("broker down")

	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if h.positions.Has("ACME") {
		t.Error("expected no position after failed buy")
	}
	// The filing stays consumed; a failed order is not retried.
	if !h.seen.Seen(h.feed.filings[0].Fingerprint()) {
		t.Error("expected filing to remain marked seen")
	}

	h.broker.buyErr = nil
	if err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(h.broker.operations()) != 0 {
		t.Errorf("expected no retry of a consumed filing, got %v", h.broker.operations())
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.engine.Start(ctx); err == nil {
		t.Error("expected error starting a running engine")
	}

	time.Sleep(50 * time.Millisecond)
	h.engine.Stop()

	h.feed.mu.Lock()
	calls := h.feed.calls
	h.feed.mu.Unlock()
	if calls < 2 {
		t.Errorf("expected repeated polls, got %d", calls)
	}

	// Stop on a stopped engine is a no-op.
	h.engine.Stop()
}
