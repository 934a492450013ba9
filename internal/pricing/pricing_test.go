package pricing

import (
	"errors"
	"testing"

	"github.com/shabalink/vtu-engine/internal/model"
)

func TestPrice_MarkupByTier(t *testing.T) {
	tests := []struct {
		name        string
		tier        model.Tier
		costKobo    int64
		wantSelling int64
		wantProfit  int64
	}{
		{name: "base tier adds 50 naira", tier: model.TierBase, costKobo: 30000, wantSelling: 35000, wantProfit: 5000},
		{name: "reseller tier adds 20 naira", tier: model.TierReseller, costKobo: 30000, wantSelling: 32000, wantProfit: 2000},
		{name: "partner tier adds 5 naira", tier: model.TierPartner, costKobo: 30000, wantSelling: 30500, wantProfit: 500},
		{name: "unknown tier falls back to base", tier: model.Tier("vip"), costKobo: 30000, wantSelling: 35000, wantProfit: 5000},
		{name: "zero cost still gets markup", tier: model.TierBase, costKobo: 0, wantSelling: 5000, wantProfit: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, svc := range []model.ServiceType{model.ServiceData, model.ServiceCable, model.ServiceElectricity} {
				got, err := Price(tt.costKobo, svc, tt.tier)
				if err != nil {
					t.Fatalf("Price(%s): %v", svc, err)
				}
				if got.SellingPrice != tt.wantSelling {
					t.Fatalf("%s selling = %d, want %d", svc, got.SellingPrice, tt.wantSelling)
				}
				if got.Profit != tt.wantProfit {
					t.Fatalf("%s profit = %d, want %d", svc, got.Profit, tt.wantProfit)
				}
				if got.CostPrice != tt.costKobo {
					t.Fatalf("%s cost = %d, want %d", svc, got.CostPrice, tt.costKobo)
				}
			}
		})
	}
}

func TestPrice_MarkupOrdering(t *testing.T) {
	if !(Markup(model.TierBase) > Markup(model.TierReseller) && Markup(model.TierReseller) > Markup(model.TierPartner)) {
		t.Fatalf("markups must strictly decrease with tier: base=%d reseller=%d partner=%d",
			Markup(model.TierBase), Markup(model.TierReseller), Markup(model.TierPartner))
	}
}

func TestPrice_Airtime(t *testing.T) {
	tests := []struct {
		name       string
		faceKobo   int64
		wantProfit int64
	}{
		{name: "round face value", faceKobo: 100000, wantProfit: 2500},
		{name: "commission rounds half up", faceKobo: 10100, wantProfit: 253}, // 252.5 -> 253
		{name: "small amount", faceKobo: 5000, wantProfit: 125},
		{name: "zero face value", faceKobo: 0, wantProfit: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, tier := range []model.Tier{model.TierBase, model.TierReseller, model.TierPartner} {
				got, err := Price(tt.faceKobo, model.ServiceAirtime, tier)
				if err != nil {
					t.Fatalf("Price: %v", err)
				}
				if got.SellingPrice != tt.faceKobo {
					t.Fatalf("airtime selling = %d, want face value %d", got.SellingPrice, tt.faceKobo)
				}
				if got.Profit != tt.wantProfit {
					t.Fatalf("airtime profit = %d, want %d", got.Profit, tt.wantProfit)
				}
				if got.CostPrice+got.Profit != tt.faceKobo {
					t.Fatalf("airtime cost %d + profit %d != face %d", got.CostPrice, got.Profit, tt.faceKobo)
				}
			}
		})
	}
}

func TestPrice_InvalidServiceType(t *testing.T) {
	_, err := Price(10000, model.ServiceType("giftcard"), model.TierBase)
	if !errors.Is(err, ErrInvalidServiceType) {
		t.Fatalf("err = %v, want ErrInvalidServiceType", err)
	}
}
