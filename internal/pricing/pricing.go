// Package pricing computes tier-aware selling prices for top-up services.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/shabalink/vtu-engine/internal/model"
)

// ErrInvalidServiceType is returned for a service type outside the known set.
var ErrInvalidServiceType = errors.New("invalid service type")

// Fixed markups in kobo added to the provider cost for non-airtime services.
const (
	markupBase     = 5000
	markupReseller = 2000
	markupPartner  = 500
)

// airtimeCommission is the provider commission fraction earned on airtime face value.
var airtimeCommission = decimal.NewFromFloat(0.025)

// Markup returns the kobo markup for the tier. Unknown tiers fall back to the
// base tier, matching how an unset profile tier is treated.
func Markup(tier model.Tier) int64 {
	switch tier {
	case model.TierReseller:
		return markupReseller
	case model.TierPartner:
		return markupPartner
	default:
		return markupBase
	}
}

// Price computes the selling price and profit for the given amount in kobo.
//
// For airtime the amount is the face value the customer wants delivered: the
// selling price equals the face value and the profit is the provider
// commission. For every other service the amount is the provider cost and the
// selling price is cost plus the tier markup. Rounding to whole kobo happens
// exactly once, here.
func Price(amountKobo int64, svc model.ServiceType, tier model.Tier) (model.PricingResult, error) {
	if !svc.Valid() {
		return model.PricingResult{}, ErrInvalidServiceType
	}

	appliedTier := tier
	if !appliedTier.Valid() {
		appliedTier = model.TierBase
	}

	if svc == model.ServiceAirtime {
		face := decimal.NewFromInt(amountKobo)
		profit := face.Mul(airtimeCommission).Round(0)
		return model.PricingResult{
			CostPrice:    face.Sub(profit).IntPart(),
			SellingPrice: amountKobo,
			Profit:       profit.IntPart(),
			AppliedTier:  appliedTier,
		}, nil
	}

	markup := Markup(appliedTier)
	return model.PricingResult{
		CostPrice:    amountKobo,
		SellingPrice: amountKobo + markup,
		Profit:       markup,
		AppliedTier:  appliedTier,
	}, nil
}
