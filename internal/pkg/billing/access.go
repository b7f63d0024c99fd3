package billing

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// Access gate reason codes, surfaced to route guards and the admin UI.
const (
	ReasonNoBillingConfigured  = "no_billing_configured"
	ReasonEnterprise           = "enterprise"
	ReasonEnterpriseNotAllowed = "enterprise_not_allowed"
	ReasonBillingInactive      = "billing_inactive"
	ReasonActive               = "active"
)

// AccessResult is the coarse authorization answer for metered features.
type AccessResult struct {
	HasAccess bool   `json:"has_access"`
	Reason    string `json:"reason"`
}

// LimitResult reports quota headroom for the current cycle.
type LimitResult struct {
	Allowed   bool `json:"allowed"`
	Unlimited bool `json:"unlimited"`
	Remaining int  `json:"remaining"` // -1 when unlimited
}

// EvaluateAccess applies the access decision table to a billing record.
// First match wins; enterprise plans bypass the status check entirely.
func EvaluateAccess(rec *ShopBillingRecord, allowEnterprise bool) AccessResult {
	switch {
	case rec == nil:
		return AccessResult{HasAccess: false, Reason: ReasonNoBillingConfigured}
	case rec.Plan == PlanEnterprise && allowEnterprise:
		return AccessResult{HasAccess: true, Reason: ReasonEnterprise}
	case rec.Plan == PlanEnterprise:
		return AccessResult{HasAccess: false, Reason: ReasonEnterpriseNotAllowed}
	case rec.BillingStatus != BillingStatusActive:
		return AccessResult{HasAccess: false, Reason: ReasonBillingInactive}
	default:
		return AccessResult{HasAccess: true, Reason: ReasonActive}
	}
}

// EvaluateImageLimit checks the cycle quota. Enterprise plans are unlimited
// and skip image accounting altogether.
func EvaluateImageLimit(rec *ShopBillingRecord) LimitResult {
	if rec == nil {
		return LimitResult{Allowed: false, Remaining: 0}
	}
	if rec.Plan == PlanEnterprise || rec.ImagesIncluded < 0 {
		return LimitResult{Allowed: true, Unlimited: true, Remaining: -1}
	}
	remaining := rec.ImagesIncluded - rec.ImagesUsedMonth
	if remaining < 0 {
		remaining = 0
	}
	// Past-quota shops keep access: overage is billed per image, not blocked.
	return LimitResult{Allowed: true, Remaining: remaining}
}

// Gate answers "may this shop use metered features right now" from the
// persisted billing record.
type Gate struct {
	store RecordStore
}

// NewGate creates an access gate over the record store.
func NewGate(store RecordStore) *Gate {
	return &Gate{store: store}
}

// CheckAccess loads the shop's billing record and applies the decision
// table. Store failures degrade to "no billing configured" so a drifted
// schema denies metered features instead of erroring merchant requests.
func (g *Gate) CheckAccess(ctx context.Context, shopDomain string, allowEnterprise bool) AccessResult {
	rec, err := g.store.ReadBillingRecord(ctx, shopDomain)
	if err != nil {
		log.Warnf("[Billing] access check read for %s failed: %v", shopDomain, err)
		return AccessResult{HasAccess: false, Reason: ReasonNoBillingConfigured}
	}
	return EvaluateAccess(rec, allowEnterprise)
}

// CheckImageLimit loads the shop's billing record and reports quota headroom.
func (g *Gate) CheckImageLimit(ctx context.Context, shopDomain string) LimitResult {
	rec, err := g.store.ReadBillingRecord(ctx, shopDomain)
	if err != nil {
		log.Warnf("[Billing] limit check read for %s failed: %v", shopDomain, err)
		return LimitResult{Allowed: false, Remaining: 0}
	}
	return EvaluateImageLimit(rec)
}
