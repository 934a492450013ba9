// Package catalog normalizes provider plan listings and applies tier pricing.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shabalink/vtu-engine/internal/model"
	"github.com/shabalink/vtu-engine/internal/pricing"
	"github.com/shabalink/vtu-engine/internal/provider"
)

// Gateway is the slice of the provider client the resolver needs.
type Gateway interface {
	FetchCatalog(ctx context.Context, svc model.ServiceType, scopeID string) ([]provider.RawPlan, error)
}

// Resolver turns raw provider catalogs into priced, user-facing plan lists.
type Resolver struct {
	gateway Gateway
}

// NewResolver creates a resolver over the given gateway.
func NewResolver(gateway Gateway) *Resolver {
	return &Resolver{gateway: gateway}
}

// Provider responses are not schema-stable: the cost shows up under any of
// these keys depending on the service.
var costKeys = []string{"amount", "price", "cost", "rate"}

var idKeys = []string{"id", "plan_id", "variation_code"}

var nameKeys = []string{"name", "plan", "package"}

var networkKeys = []string{"network_id", "network", "service_id"}

// ListPricedPlans fetches the catalog for a service, normalizes it, filters by
// scope and prices every plan for the caller's tier. Plans with a zero or
// unparseable cost are passed through unpriced rather than dropped; the
// orchestrator refuses to purchase those without an explicit cost override.
func (r *Resolver) ListPricedPlans(ctx context.Context, svc model.ServiceType, scopeID string, tier model.Tier) ([]model.PricedPlan, error) {
	raw, err := r.gateway.FetchCatalog(ctx, svc, scopeID)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	plans := make([]model.PricedPlan, 0, len(raw))
	for _, entry := range raw {
		plan := Normalize(entry, svc)

		if scopeID != "" && !matchesScope(plan, entry, scopeID) {
			continue
		}

		priced := model.PricedPlan{ServicePlan: plan, AppliedTier: tier}
		if plan.Priced {
			result, err := pricing.Price(plan.CostPrice, svc, tier)
			if err != nil {
				return nil, fmt.Errorf("price plan %s: %w", plan.ID, err)
			}
			priced.SellingPrice = result.SellingPrice
			priced.Profit = result.Profit
			priced.AppliedTier = result.AppliedTier
		}

		plans = append(plans, priced)
	}

	return plans, nil
}

// FindPlan resolves one plan by id from a freshly fetched catalog.
func (r *Resolver) FindPlan(ctx context.Context, svc model.ServiceType, scopeID, planID string) (*model.ServicePlan, error) {
	raw, err := r.gateway.FetchCatalog(ctx, svc, scopeID)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	for _, entry := range raw {
		plan := Normalize(entry, svc)
		if plan.ID == planID {
			return &plan, nil
		}
	}
	return nil, nil
}

// Normalize maps one raw provider entry onto the canonical plan shape.
// Normalization is idempotent: the same entry always yields the same plan
// regardless of which source key carried each value.
func Normalize(entry provider.RawPlan, svc model.ServiceType) model.ServicePlan {
	plan := model.ServicePlan{Type: svc}

	for _, key := range idKeys {
		if s := stringValue(entry[key]); s != "" {
			plan.ID = s
			break
		}
	}
	for _, key := range nameKeys {
		if s := stringValue(entry[key]); s != "" {
			plan.Name = s
			break
		}
	}
	for _, key := range networkKeys {
		if s := stringValue(entry[key]); s != "" {
			plan.NetworkID = s
			break
		}
	}
	for _, key := range costKeys {
		if v, ok := entry[key]; ok {
			if kobo, ok := parseCost(v); ok && kobo > 0 {
				plan.CostPrice = kobo
				plan.Priced = true
				break
			}
		}
	}

	return plan
}

// matchesScope keeps plans whose network id matches the requested scope,
// falling back to a case-insensitive name-contains match when the entry has no
// network field at all.
func matchesScope(plan model.ServicePlan, entry provider.RawPlan, scopeID string) bool {
	if plan.NetworkID != "" {
		return plan.NetworkID == scopeID
	}
	return strings.Contains(strings.ToLower(plan.Name), strings.ToLower(scopeID))
}

// stringValue renders ids and names that providers send as either strings or
// numbers.
func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return decimal.NewFromFloat(value).String()
	default:
		return ""
	}
}

// parseCost converts a naira cost in any of the provider's formats to kobo.
func parseCost(v any) (int64, bool) {
	switch value := v.(type) {
	case float64:
		return decimal.NewFromFloat(value).Mul(decimal.NewFromInt(100)).Round(0).IntPart(), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return 0, false
		}
		return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), true
	default:
		return 0, false
	}
}
