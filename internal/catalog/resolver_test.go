package catalog

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shabalink/vtu-engine/internal/model"
	"github.com/shabalink/vtu-engine/internal/provider"
)

type stubGateway struct {
	plans []provider.RawPlan
	err   error
}

func (s *stubGateway) FetchCatalog(ctx context.Context, svc model.ServiceType, scopeID string) ([]provider.RawPlan, error) {
	return s.plans, s.err
}

func TestNormalize_FieldVariants(t *testing.T) {
	tests := []struct {
		name  string
		entry provider.RawPlan
		want  model.ServicePlan
	}{
		{
			name:  "amount as number",
			entry: provider.RawPlan{"id": "p1", "name": "1GB", "network_id": "1", "amount": 300.0},
			want:  model.ServicePlan{ID: "p1", Name: "1GB", Type: model.ServiceData, NetworkID: "1", CostPrice: 30000, Priced: true},
		},
		{
			name:  "price as string",
			entry: provider.RawPlan{"plan_id": "p2", "plan": "2GB", "network": "2", "price": "550.50"},
			want:  model.ServicePlan{ID: "p2", Name: "2GB", Type: model.ServiceData, NetworkID: "2", CostPrice: 55050, Priced: true},
		},
		{
			name:  "cost field",
			entry: provider.RawPlan{"variation_code": "p3", "package": "Compact", "cost": 1200.0},
			want:  model.ServicePlan{ID: "p3", Name: "Compact", Type: model.ServiceData, CostPrice: 120000, Priced: true},
		},
		{
			name:  "rate field with numeric id",
			entry: provider.RawPlan{"id": 7.0, "name": "500MB", "rate": 145.0},
			want:  model.ServicePlan{ID: "7", Name: "500MB", Type: model.ServiceData, CostPrice: 14500, Priced: true},
		},
		{
			name:  "zero cost passes through unpriced",
			entry: provider.RawPlan{"id": "p5", "name": "Promo", "amount": 0.0},
			want:  model.ServicePlan{ID: "p5", Name: "Promo", Type: model.ServiceData, Priced: false},
		},
		{
			name:  "unparseable cost passes through unpriced",
			entry: provider.RawPlan{"id": "p6", "name": "Odd", "amount": "call us"},
			want:  model.ServicePlan{ID: "p6", Name: "Odd", Type: model.ServiceData, Priced: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.entry, model.ServiceData)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Normalize = %+v, want %+v", got, tt.want)
			}

			// Normalization must be idempotent over the same raw entry.
			again := Normalize(tt.entry, model.ServiceData)
			if !reflect.DeepEqual(got, again) {
				t.Fatalf("second Normalize = %+v, want %+v", again, got)
			}
		})
	}
}

func TestListPricedPlans_AppliesTierPricing(t *testing.T) {
	gw := &stubGateway{plans: []provider.RawPlan{
		{"id": "p1", "name": "1GB", "network_id": "1", "amount": 300.0},
		{"id": "p2", "name": "Promo", "network_id": "1", "amount": 0.0},
	}}
	r := NewResolver(gw)

	plans, err := r.ListPricedPlans(context.Background(), model.ServiceData, "", model.TierReseller)
	if err != nil {
		t.Fatalf("ListPricedPlans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("len(plans) = %d, want 2", len(plans))
	}

	if plans[0].SellingPrice != 32000 || plans[0].Profit != 2000 {
		t.Fatalf("priced plan = %+v, want selling 32000 profit 2000", plans[0])
	}
	if plans[0].AppliedTier != model.TierReseller {
		t.Fatalf("applied tier = %s, want reseller", plans[0].AppliedTier)
	}

	// Unpriced entries survive the listing but carry no selling price.
	if plans[1].Priced || plans[1].SellingPrice != 0 {
		t.Fatalf("unpriced plan = %+v, want Priced=false SellingPrice=0", plans[1])
	}
}

func TestListPricedPlans_ScopeFilter(t *testing.T) {
	gw := &stubGateway{plans: []provider.RawPlan{
		{"id": "p1", "name": "MTN 1GB", "network_id": "1", "amount": 300.0},
		{"id": "p2", "name": "GLO 1GB", "network_id": "2", "amount": 280.0},
		{"id": "p3", "name": "MTN 2GB", "amount": 550.0}, // no network field
		{"id": "p4", "name": "Airtel 2GB", "amount": 500.0},
	}}
	r := NewResolver(gw)

	plans, err := r.ListPricedPlans(context.Background(), model.ServiceData, "1", model.TierBase)
	if err != nil {
		t.Fatalf("ListPricedPlans: %v", err)
	}

	// p1 matches by network id. p3 has no network field, so it falls back to
	// a name-contains match, and "MTN 2GB" does not contain "1".
	if len(plans) != 1 || plans[0].ID != "p1" {
		t.Fatalf("plans = %+v, want only p1", plans)
	}
}

func TestListPricedPlans_NameFallbackMatch(t *testing.T) {
	gw := &stubGateway{plans: []provider.RawPlan{
		{"id": "p1", "name": "DSTV Compact", "amount": 10500.0},
		{"id": "p2", "name": "GOTV Max", "amount": 4850.0},
	}}
	r := NewResolver(gw)

	plans, err := r.ListPricedPlans(context.Background(), model.ServiceCable, "dstv", model.TierBase)
	if err != nil {
		t.Fatalf("ListPricedPlans: %v", err)
	}
	if len(plans) != 1 || plans[0].ID != "p1" {
		t.Fatalf("plans = %+v, want only the DSTV plan", plans)
	}
}

func TestListPricedPlans_GatewayError(t *testing.T) {
	wantErr := errors.New("boom")
	r := NewResolver(&stubGateway{err: wantErr})

	_, err := r.ListPricedPlans(context.Background(), model.ServiceData, "", model.TierBase)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped gateway error", err)
	}
}

func TestFindPlan(t *testing.T) {
	gw := &stubGateway{plans: []provider.RawPlan{
		{"id": "p1", "name": "1GB", "amount": 300.0},
		{"plan_id": "p2", "name": "2GB", "price": "550"},
	}}
	r := NewResolver(gw)

	plan, err := r.FindPlan(context.Background(), model.ServiceData, "", "p2")
	if err != nil {
		t.Fatalf("FindPlan: %v", err)
	}
	if plan == nil || plan.CostPrice != 55000 {
		t.Fatalf("plan = %+v, want cost 55000", plan)
	}

	missing, err := r.FindPlan(context.Background(), model.ServiceData, "", "nope")
	if err != nil {
		t.Fatalf("FindPlan: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing plan = %+v, want nil", missing)
	}
}
