package eft

import "github.com/anirudhbs/corebank/internal/domain"

// Charge slabs per rail, in minor units. The schedule follows the usual
// Indian retail pricing: NEFT by amount slab, RTGS in two bands, IMPS flat.
const (
	neftChargeUpto10K = 250  // 2.50
	neftChargeUpto1L  = 500  // 5.00
	neftChargeUpto2L  = 1500 // 15.00
	neftChargeAbove2L = 2500 // 25.00
	rtgsChargeUpto5L  = 2500 // 25.00
	rtgsChargeAbove5L = 5000 // 50.00
	impsChargeFlat    = 500  // 5.00
)

// ChargeFor computes the rail charge for an amount already validated against
// the rail bounds.
func ChargeFor(rail domain.Rail, amount int64) int64 {
	switch rail {
	case domain.RailNEFT:
		switch {
		case amount <= 1_000_000:
			return neftChargeUpto10K
		case amount <= 10_000_000:
			return neftChargeUpto1L
		case amount <= 20_000_000:
			return neftChargeUpto2L
		default:
			return neftChargeAbove2L
		}
	case domain.RailRTGS:
		if amount <= 50_000_000 {
			return rtgsChargeUpto5L
		}
		return rtgsChargeAbove5L
	case domain.RailIMPS:
		return impsChargeFlat
	}
	return 0
}
