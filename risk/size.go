package risk

import "math"

// Size converts a target dollar exposure and a share price into a whole-share
// quantity. It returns 0 when the trade should be skipped: non-positive price
// or a price above the budget (cannot buy a single share). Otherwise at least
// one share is returned.
func Size(targetDollars, price float64) int {
	if price <= 0 || price > targetDollars {
		return 0
	}
	qty := int(math.Floor(targetDollars / price))
	if qty < 1 {
		qty = 1
	}
	return qty
}
