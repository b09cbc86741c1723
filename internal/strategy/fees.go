package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	makerFeeCoefficient = 0.0175
	takerFeeCoefficient = 0.07
)

// MakerFeeDollars computes the maker fee for a post-only fill at priceCents
// for size contracts, rounded up to the next whole cent:
//
//	ceil(0.0175 * size * (p/100) * (1 - p/100) * 100) / 100
func MakerFeeDollars(priceCents, size int) decimal.Decimal {
	return feeDollars(makerFeeCoefficient, priceCents, size)
}

// TakerFeeDollars is MakerFeeDollars with the taker coefficient (0.07).
// Unused by pair fills (every leg is post-only by construction) but kept
// for completeness against the venue's published fee schedule and any
// future non-maker order type.
func TakerFeeDollars(priceCents, size int) decimal.Decimal {
	return feeDollars(takerFeeCoefficient, priceCents, size)
}

func feeDollars(coefficient float64, priceCents, size int) decimal.Decimal {
	p := float64(priceCents) / 100
	raw := coefficient * float64(size) * p * (1 - p) * 100
	cents := math.Ceil(raw)
	return decimal.NewFromFloat(cents).Div(decimal.NewFromInt(100))
}
