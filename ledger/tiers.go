/*
tiers.go - Loyalty tiers and earn rates

PURPOSE:
  Tiers are a projection of lifetime earned points, refreshed by the
  Reconciler alongside the balance. The earn rate converts an order total
  (minor units) into bonus points when the completion event does not carry
  a precomputed bonus amount.

NUMERIC SEMANTICS:
  Rates are exact decimals; earned points truncate toward zero so the
  ledger only ever stores integer minor-units.
*/
package ledger

import "github.com/shopspring/decimal"

// Tier is the loyalty level derived from lifetime earned points.
type Tier string

const (
	TierStandard Tier = "standard"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Lifetime-bonus thresholds for each tier, in points.
const (
	silverThreshold   = 10_000
	goldThreshold     = 50_000
	platinumThreshold = 200_000
)

// earn rates: points per 100 minor-units of order total
var earnRates = map[Tier]decimal.Decimal{
	TierStandard: decimal.NewFromFloat(1.0),
	TierSilver:   decimal.NewFromFloat(1.25),
	TierGold:     decimal.NewFromFloat(1.5),
	TierPlatinum: decimal.NewFromFloat(2.0),
}

// TierFor returns the tier an account holds given its lifetime earned points.
func TierFor(lifetimeBonus int64) Tier {
	switch {
	case lifetimeBonus >= platinumThreshold:
		return TierPlatinum
	case lifetimeBonus >= goldThreshold:
		return TierGold
	case lifetimeBonus >= silverThreshold:
		return TierSilver
	default:
		return TierStandard
	}
}

// EarnRate returns the points-per-100-minor-units rate for a tier.
// Unknown tiers fall back to the standard rate.
func EarnRate(t Tier) decimal.Decimal {
	if r, ok := earnRates[t]; ok {
		return r
	}
	return earnRates[TierStandard]
}

// BonusForOrder computes the points earned for an order total at the given
// tier: total / 100 * rate, truncated toward zero. Totals <= 0 earn nothing.
func BonusForOrder(orderTotal int64, t Tier) int64 {
	if orderTotal <= 0 {
		return 0
	}
	points := decimal.NewFromInt(orderTotal).
		Div(decimal.NewFromInt(100)).
		Mul(EarnRate(t))
	return points.IntPart()
}
