package rules

import (
	"slices"
	"strings"

	"influencer-gifting-api/internal/models"
)

// Plan keys.
const (
	PlanFree      = "FREE"
	PlanGrowth    = "GROWTH"
	PlanUnlimited = "UNLIMITED"
)

// Plan is a billing tier with an optional claim cap.
type Plan struct {
	Key   string
	Label string
	Price int
	// Limit is nil for unlimited plans.
	Limit *int
}

var (
	planOrder = []string{PlanFree, PlanGrowth, PlanUnlimited}
	plans     = map[string]Plan{
		PlanFree:      {Key: PlanFree, Label: "Free", Price: 0, Limit: intPtr(5)},
		PlanGrowth:    {Key: PlanGrowth, Label: "Growth", Price: 69, Limit: intPtr(100)},
		PlanUnlimited: {Key: PlanUnlimited, Label: "Unlimited", Price: 379},
	}
)

func intPtr(n int) *int { return &n }

// NormalizePlan maps any stored plan value onto a known key, defaulting to FREE.
func NormalizePlan(value string) string {
	key := strings.ToUpper(strings.TrimSpace(value))
	if _, ok := plans[key]; ok {
		return key
	}
	return PlanFree
}

// PlanFor returns the plan definition for a stored plan value.
func PlanFor(value string) Plan {
	return plans[NormalizePlan(value)]
}

// IsUsageLimitReached reports whether a merchant has used up its plan.
func IsUsageLimitReached(totalClaims int, plan string) bool {
	limit := PlanFor(plan).Limit
	if limit == nil {
		return false
	}
	return totalClaims >= *limit
}

// UsagePercent returns the consumed share of the plan in [0, 1].
func UsagePercent(totalClaims int, plan string) float64 {
	limit := PlanFor(plan).Limit
	if limit == nil || *limit == 0 {
		return 0
	}
	return min(float64(totalClaims)/float64(*limit), 1)
}

// NextPlan returns the upgrade target, or "" on the top plan.
func NextPlan(plan string) string {
	i := slices.Index(planOrder, NormalizePlan(plan))
	if i < 0 || i == len(planOrder)-1 {
		return ""
	}
	return planOrder[i+1]
}

// UsageOf summarizes a merchant's plan consumption. A nil merchant is treated
// as a new FREE merchant with no claims.
func UsageOf(m *models.Merchant) models.Usage {
	plan, total := PlanFree, 0
	if m != nil {
		plan, total = NormalizePlan(m.ActivePlan), m.TotalClaimsCount
	}
	return models.Usage{
		ActivePlan:       plan,
		TotalClaimsCount: total,
		Limit:            PlanFor(plan).Limit,
		LimitReached:     IsUsageLimitReached(total, plan),
		UsagePercent:     UsagePercent(total, plan),
		NextPlan:         NextPlan(plan),
	}
}
