package strategy

import (
	"fmt"

	"insiderflow/models"
)

// Strategy turns a filing plus a market snapshot into an order intent.
// Implementations are fail-closed: missing or unfetchable data rejects the
// filing, it never propagates as an error.
type Strategy interface {
	Name() string
	Evaluate(filing models.Filing, snap models.MarketSnapshot) (models.OrderIntent, bool)
}

// History exposes the closed-trade success tally consulted by the
// insider-simple variant.
type History interface {
	SuccessRate(symbol string) (float64, bool)
}

const (
	VariantInsiderSimple = "insider_simple"
	VariantMomentum      = "momentum"
)

// New selects the active strategy variant by name. Exactly one variant runs
// per deployment.
func New(variant string, insider InsiderConfig, momentum MomentumConfig, history History) (Strategy, error) {
	switch variant {
	case VariantInsiderSimple, "":
		return NewInsiderSimple(insider, history), nil
	case VariantMomentum:
		return NewMomentum(momentum), nil
	default:
		return nil, fmt.Errorf("unknown strategy variant %q", variant)
	}
}
