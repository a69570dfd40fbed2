package strategy

import (
	"testing"
	"time"

	"insiderflow/models"
)

type fakeHistory map[string]float64

func (h fakeHistory) SuccessRate(symbol string) (float64, bool) {
	rate, ok := h[symbol]
	return rate, ok
}

func insiderConfig() InsiderConfig {
	return InsiderConfig{
		SignificantRoles:      []string{"CEO", "CFO", "Director"},
		TargetDollars:         50,
		MinSuccessRate:        0.4,
		MinAvgDailyVolume:     50000,
		MaxBidAskSpread:       0.05,
		MaxPctSinceWeekLow:    10,
		MaxIntradayVolatility: 0.02,
		MaxSlippage:           0.02,
	}
}

func cfoFiling() models.Filing {
	return models.Filing{
		Form:    models.Form4,
		Ticker:  "ACME",
		Title:   "4 - Doe Jane, CFO (ACME)",
		Link:    "https://www.sec.gov/filing/1",
		FiledAt: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
}

func passingSnapshot() models.MarketSnapshot {
	return models.MarketSnapshot{
		Price:              models.Float(40),
		AvgDailyVolume:     models.Float(1_000_000),
		BidAskSpread:       models.Float(0.02),
		PctSinceWeekLow:    models.Float(5),
		IntradayVolatility: models.Float(0.005),
	}
}

func TestInsiderSimpleAccepts(t *testing.T) {
	s := NewInsiderSimple(insiderConfig(), fakeHistory{})
	intent, ok := s.Evaluate(cfoFiling(), passingSnapshot())
	if !ok {
		t.Fatalf("expected an order intent")
	}
	want := models.OrderIntent{Action: models.SideBuy, Symbol: "ACME", Qty: 1, EntryPrice: 40}
	if intent != want {
		t.Errorf("intent = %+v, want %+v", intent, want)
	}
}

func TestInsiderSimpleGates(t *testing.T) {
	cases := []struct {
		name   string
		filing func() models.Filing
		snap   func() models.MarketSnapshot
		hist   fakeHistory
	}{
		{
			name:   "wrong form",
			filing: func() models.Filing { f := cfoFiling(); f.Form = models.Form13D; return f },
			snap:   passingSnapshot,
		},
		{
			name:   "no significant role",
			filing: func() models.Filing { f := cfoFiling(); f.Title = "4 - Doe Jane, Analyst (ACME)"; return f },
			snap:   passingSnapshot,
		},
		{
			name:   "missing ticker",
			filing: func() models.Filing { f := cfoFiling(); f.Ticker = ""; return f },
			snap:   passingSnapshot,
		},
		{
			name:   "price unavailable",
			filing: cfoFiling,
			snap: func() models.MarketSnapshot {
				s := passingSnapshot()
				s.Price = models.OptFloat{}
				return s
			},
		},
		{
			name:   "sell transaction",
			filing: func() models.Filing { f := cfoFiling(); f.TransactionType = "SELL"; return f },
			snap:   passingSnapshot,
		},
		{
			name:   "poor history",
			filing: cfoFiling,
			snap:   passingSnapshot,
			hist:   fakeHistory{"ACME": 0.2},
		},
		{
			name:   "thin volume",
			filing: cfoFiling,
			snap: func() models.MarketSnapshot {
				s := passingSnapshot()
				s.AvgDailyVolume = models.Float(10_000)
				return s
			},
		},
		{
			name:   "wide spread",
			filing: cfoFiling,
			snap: func() models.MarketSnapshot {
				s := passingSnapshot()
				s.BidAskSpread = models.Float(0.10)
				return s
			},
		},
		{
			name:   "momentum chased",
			filing: cfoFiling,
			snap: func() models.MarketSnapshot {
				s := passingSnapshot()
				s.PctSinceWeekLow = models.Float(25)
				return s
			},
		},
		{
			name:   "volatile",
			filing: cfoFiling,
			snap: func() models.MarketSnapshot {
				s := passingSnapshot()
				s.IntradayVolatility = models.Float(0.05)
				return s
			},
		},
		{
			name:   "price above budget",
			filing: cfoFiling,
			snap: func() models.MarketSnapshot {
				s := passingSnapshot()
				s.Price = models.Float(400)
				return s
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hist := c.hist
			if hist == nil {
				hist = fakeHistory{}
			}
			s := NewInsiderSimple(insiderConfig(), hist)
			if _, ok := s.Evaluate(c.filing(), c.snap()); ok {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestInsiderSimpleUnknownFieldsPass(t *testing.T) {
	// Absence of the optional market-data fields means "unknown", which every
	// filter other than the price gate treats as a pass.
	s := NewInsiderSimple(insiderConfig(), fakeHistory{})
	snap := models.MarketSnapshot{Price: models.Float(40)}
	if _, ok := s.Evaluate(cfoFiling(), snap); !ok {
		t.Fatalf("unknown optional fields must not block the trade")
	}
}

func TestInsiderSimpleBuyTransactionPasses(t *testing.T) {
	s := NewInsiderSimple(insiderConfig(), fakeHistory{})
	f := cfoFiling()
	f.TransactionType = "P-BUY"
	if _, ok := s.Evaluate(f, passingSnapshot()); !ok {
		t.Fatalf("buy transaction type must pass")
	}
}

func TestInsiderSimpleGoodHistoryPasses(t *testing.T) {
	s := NewInsiderSimple(insiderConfig(), fakeHistory{"ACME": 0.8})
	if _, ok := s.Evaluate(cfoFiling(), passingSnapshot()); !ok {
		t.Fatalf("good history must pass")
	}
}
