// Package model contains the domain entities of the VTU engine.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the membership level that determines the markup applied to a purchase.
type Tier string

const (
	TierBase     Tier = "base"
	TierReseller Tier = "reseller"
	TierPartner  Tier = "partner"
)

// Valid reports whether the tier is one of the known membership levels.
func (t Tier) Valid() bool {
	switch t {
	case TierBase, TierReseller, TierPartner:
		return true
	}
	return false
}

// ServiceType identifies one of the purchasable top-up services.
type ServiceType string

const (
	ServiceAirtime     ServiceType = "airtime"
	ServiceData        ServiceType = "data"
	ServiceCable       ServiceType = "cable"
	ServiceElectricity ServiceType = "electricity"
)

// Valid reports whether the service type is known.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceAirtime, ServiceData, ServiceCable, ServiceElectricity:
		return true
	}
	return false
}

// Account holds the wallet state of a single user. Balance is stored in kobo.
type Account struct {
	UserID    int64
	Balance   int64
	PINHash   []byte
	Tier      Tier
	CreatedAt time.Time
}

// ServicePlan is one purchasable catalog entry, normalized from the provider's
// raw response. CostPrice is the provider's price to us in kobo. Plans whose
// cost could not be parsed are kept with Priced=false so catalog browsing never
// silently loses entries.
type ServicePlan struct {
	ID        string
	Name      string
	Type      ServiceType
	NetworkID string
	CostPrice int64
	Priced    bool
}

// PricedPlan is a ServicePlan with the tier-aware selling price applied.
type PricedPlan struct {
	ServicePlan
	SellingPrice int64
	Profit       int64
	AppliedTier  Tier
}

// PricingResult is the outcome of a single price computation, in kobo.
type PricingResult struct {
	CostPrice    int64
	SellingPrice int64
	Profit       int64
	AppliedTier  Tier
}

// TransactionStatus describes the final state of a purchase attempt.
type TransactionStatus string

const (
	StatusSuccess  TransactionStatus = "success"
	StatusFailed   TransactionStatus = "failed"
	StatusRefunded TransactionStatus = "refunded"
)

// Transaction is the immutable record of one completed or failed purchase
// attempt. Amount is the selling price in kobo. A refund is a new record, not
// an edit to the original.
type Transaction struct {
	ID          int64
	UserID      int64
	Type        string
	Amount      int64
	Reference   string
	Status      TransactionStatus
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// KoboToNaira converts an internal kobo amount to naira for the JSON boundary.
func KoboToNaira(kobo int64) float64 {
	f, _ := decimal.NewFromInt(kobo).Div(decimal.NewFromInt(100)).Float64()
	return f
}

// NairaToKobo converts a naira amount from the JSON boundary to kobo,
// rounding half-up to the nearest kobo.
func NairaToKobo(naira float64) int64 {
	return decimal.NewFromFloat(naira).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
