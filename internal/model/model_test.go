package model

import "testing"

func TestKoboNairaRoundTrip(t *testing.T) {
	tests := []struct {
		naira float64
		kobo  int64
	}{
		{0, 0},
		{350, 35000},
		{550.5, 55050},
		{0.01, 1},
		{99.999, 10000}, // rounds half up to the nearest kobo
	}

	for _, tt := range tests {
		if got := NairaToKobo(tt.naira); got != tt.kobo {
			t.Fatalf("NairaToKobo(%v) = %d, want %d", tt.naira, got, tt.kobo)
		}
	}

	if got := KoboToNaira(35000); got != 350 {
		t.Fatalf("KoboToNaira(35000) = %v, want 350", got)
	}
	if got := KoboToNaira(55050); got != 550.5 {
		t.Fatalf("KoboToNaira(55050) = %v, want 550.5", got)
	}
}

func TestTierValid(t *testing.T) {
	for _, tier := range []Tier{TierBase, TierReseller, TierPartner} {
		if !tier.Valid() {
			t.Fatalf("%s must be valid", tier)
		}
	}
	if Tier("gold").Valid() {
		t.Fatalf("unknown tier must be invalid")
	}
}

func TestServiceTypeValid(t *testing.T) {
	for _, svc := range []ServiceType{ServiceAirtime, ServiceData, ServiceCable, ServiceElectricity} {
		if !svc.Valid() {
			t.Fatalf("%s must be valid", svc)
		}
	}
	if ServiceType("giftcard").Valid() {
		t.Fatalf("unknown service type must be invalid")
	}
}
