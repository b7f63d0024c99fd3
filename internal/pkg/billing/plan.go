package billing

import (
	"math"
	"strings"
)

// PlanID is a canonical plan identifier. Legacy aliases ("basic") never
// survive normalization; every read and write goes through ResolvePlan or
// NormalizePlan first.
type PlanID string

const (
	PlanStarter    PlanID = "starter"
	PlanGrowth     PlanID = "growth"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// PlanLimits holds the quota and overage pricing derived from a plan. These
// values are never set independently of the plan except at record-repair time.
type PlanLimits struct {
	ImagesIncluded     int // -1 = unlimited
	PricePerExtraImage float64
	MonthlyPrice       float64 // canonical recurring price point; 0 = not sold at a fixed price
}

var planLimits = map[PlanID]PlanLimits{
	PlanStarter:    {ImagesIncluded: 100, PricePerExtraImage: 0.12, MonthlyPrice: 9.99},
	PlanGrowth:     {ImagesIncluded: 500, PricePerExtraImage: 0.08, MonthlyPrice: 29.99},
	PlanPro:        {ImagesIncluded: 2000, PricePerExtraImage: 0.05, MonthlyPrice: 79.99},
	PlanEnterprise: {ImagesIncluded: -1, PricePerExtraImage: 0},
}

// priceEpsilon guards the recurring-amount match against decimal round-trips
// through the platform API.
const priceEpsilon = 0.001

// nameMatchers maps lowercase substrings of a subscription display name to a
// plan, most specific first. "professional" must come before "pro" and the
// branded names before the bare words so that substring collisions resolve to
// the intended tier.
var nameMatchers = []struct {
	substr string
	plan   PlanID
}{
	{"omafit enterprise", PlanEnterprise},
	{"enterprise", PlanEnterprise},
	{"omafit growth", PlanGrowth},
	{"growth", PlanGrowth},
	{"omafit basic", PlanStarter},
	{"basic", PlanStarter},
	{"omafit starter", PlanStarter},
	{"starter", PlanStarter},
	{"professional", PlanPro},
	{"omafit pro", PlanPro},
	{"pro", PlanPro},
}

// ResolvePlan determines the canonical plan for a subscription. The recurring
// amount wins over the display name: merchants see localized or renamed plan
// labels, but the price point is stable.
func ResolvePlan(subscriptionName string, recurringAmount *float64) PlanID {
	if recurringAmount != nil {
		for _, plan := range []PlanID{PlanStarter, PlanGrowth, PlanPro} {
			if math.Abs(*recurringAmount-planLimits[plan].MonthlyPrice) <= priceEpsilon {
				return plan
			}
		}
	}

	name := strings.ToLower(strings.TrimSpace(subscriptionName))
	if name != "" {
		for _, m := range nameMatchers {
			if strings.Contains(name, m.substr) {
				return m.plan
			}
		}
	}
	return PlanStarter
}

// NormalizePlan maps stored plan values (including the legacy "basic" alias)
// to a canonical PlanID.
func NormalizePlan(plan string) PlanID {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanGrowth):
		return PlanGrowth
	case string(PlanPro):
		return PlanPro
	case string(PlanEnterprise):
		return PlanEnterprise
	default:
		return PlanStarter
	}
}

// LimitsFor returns the fixed quota table entry for a plan.
func LimitsFor(plan PlanID) PlanLimits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanStarter]
}

// IsUnlimited reports whether the plan has no image quota.
func (l PlanLimits) IsUnlimited() bool {
	return l.ImagesIncluded < 0
}
