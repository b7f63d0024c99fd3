package controllers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omafit/tryon-app/internal/pkg/billing"
)

func TestUsageCycle(t *testing.T) {
	ts := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2026-08", usageCycle(ts))

	// Local timestamps bucket by their UTC month.
	loc := time.FixedZone("UTC+10", 10*3600)
	late := time.Date(2026, 9, 1, 5, 0, 0, 0, loc)
	assert.Equal(t, "2026-08", usageCycle(late))
}

func TestPlanDisplayName(t *testing.T) {
	assert.Equal(t, "Omafit Starter", planDisplayName(billing.PlanStarter))
	assert.Equal(t, "Omafit Growth", planDisplayName(billing.PlanGrowth))
	assert.Equal(t, "Omafit Pro", planDisplayName(billing.PlanPro))
	assert.Equal(t, "Omafit Enterprise", planDisplayName(billing.PlanEnterprise))

	// Display names must resolve back to the same plan on sync.
	for _, plan := range []billing.PlanID{billing.PlanStarter, billing.PlanGrowth, billing.PlanPro, billing.PlanEnterprise} {
		assert.Equal(t, plan, billing.ResolvePlan(planDisplayName(plan), nil))
	}
}

func TestSubscriptionTerms(t *testing.T) {
	growth := billing.LimitsFor(billing.PlanGrowth)
	assert.Equal(t, "$0.08 per try-on image beyond 500 per month", subscriptionTerms(growth))

	enterprise := billing.LimitsFor(billing.PlanEnterprise)
	assert.Empty(t, subscriptionTerms(enterprise))
}
