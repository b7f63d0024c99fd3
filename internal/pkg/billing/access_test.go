package billing

import (
	"context"
	"testing"
)

func TestEvaluateAccess(t *testing.T) {
	tests := []struct {
		name            string
		rec             *ShopBillingRecord
		allowEnterprise bool
		wantAccess      bool
		wantReason      string
	}{
		{
			name:       "no record",
			rec:        nil,
			wantAccess: false,
			wantReason: ReasonNoBillingConfigured,
		},
		{
			name:            "enterprise allowed",
			rec:             &ShopBillingRecord{Plan: PlanEnterprise, BillingStatus: BillingStatusActive},
			allowEnterprise: true,
			wantAccess:      true,
			wantReason:      ReasonEnterprise,
		},
		{
			name:            "enterprise bypasses status",
			rec:             &ShopBillingRecord{Plan: PlanEnterprise, BillingStatus: BillingStatusInactive},
			allowEnterprise: true,
			wantAccess:      true,
			wantReason:      ReasonEnterprise,
		},
		{
			name:            "enterprise not allowed",
			rec:             &ShopBillingRecord{Plan: PlanEnterprise, BillingStatus: BillingStatusActive},
			allowEnterprise: false,
			wantAccess:      false,
			wantReason:      ReasonEnterpriseNotAllowed,
		},
		{
			name:       "active growth",
			rec:        &ShopBillingRecord{Plan: PlanGrowth, BillingStatus: BillingStatusActive},
			wantAccess: true,
			wantReason: ReasonActive,
		},
		{
			name:       "inactive starter",
			rec:        &ShopBillingRecord{Plan: PlanStarter, BillingStatus: BillingStatusInactive},
			wantAccess: false,
			wantReason: ReasonBillingInactive,
		},
		{
			name:       "pending pro",
			rec:        &ShopBillingRecord{Plan: PlanPro, BillingStatus: BillingStatusPending},
			wantAccess: false,
			wantReason: ReasonBillingInactive,
		},
		{
			name:       "cancelled growth",
			rec:        &ShopBillingRecord{Plan: PlanGrowth, BillingStatus: BillingStatusCancelled},
			wantAccess: false,
			wantReason: ReasonBillingInactive,
		},
	}

	for _, tt := range tests {
		got := EvaluateAccess(tt.rec, tt.allowEnterprise)
		if got.HasAccess != tt.wantAccess || got.Reason != tt.wantReason {
			t.Fatalf("%s: EvaluateAccess = %+v, want access=%v reason=%q",
				tt.name, got, tt.wantAccess, tt.wantReason)
		}
	}
}

func TestEvaluateImageLimit(t *testing.T) {
	if res := EvaluateImageLimit(nil); res.Allowed {
		t.Fatalf("nil record must not be allowed")
	}

	res := EvaluateImageLimit(&ShopBillingRecord{Plan: PlanGrowth, ImagesIncluded: 500, ImagesUsedMonth: 120})
	if !res.Allowed || res.Unlimited || res.Remaining != 380 {
		t.Fatalf("unexpected limit result: %+v", res)
	}

	// Past quota shops stay allowed; overage is billed per image.
	res = EvaluateImageLimit(&ShopBillingRecord{Plan: PlanStarter, ImagesIncluded: 100, ImagesUsedMonth: 130})
	if !res.Allowed || res.Remaining != 0 {
		t.Fatalf("expected allowed with zero remaining, got %+v", res)
	}

	res = EvaluateImageLimit(&ShopBillingRecord{Plan: PlanEnterprise, ImagesIncluded: -1, ImagesUsedMonth: 99999})
	if !res.Allowed || !res.Unlimited || res.Remaining != -1 {
		t.Fatalf("expected unlimited for enterprise, got %+v", res)
	}
}

func TestGateCheckAccess(t *testing.T) {
	store := newMemoryRecordStore()
	store.records["demo.myshopify.com"] = &ShopBillingRecord{
		ShopDomain:    "demo.myshopify.com",
		Plan:          PlanGrowth,
		BillingStatus: BillingStatusActive,
	}
	gate := NewGate(store)

	if res := gate.CheckAccess(context.Background(), "demo.myshopify.com", false); !res.HasAccess {
		t.Fatalf("expected access for active growth shop, got %+v", res)
	}
	if res := gate.CheckAccess(context.Background(), "unknown.myshopify.com", false); res.HasAccess || res.Reason != ReasonNoBillingConfigured {
		t.Fatalf("expected no access for unknown shop, got %+v", res)
	}
}

func TestGateCheckImageLimit(t *testing.T) {
	store := newMemoryRecordStore()
	store.records["demo.myshopify.com"] = &ShopBillingRecord{
		ShopDomain:      "demo.myshopify.com",
		Plan:            PlanStarter,
		BillingStatus:   BillingStatusActive,
		ImagesIncluded:  100,
		ImagesUsedMonth: 40,
	}
	gate := NewGate(store)

	res := gate.CheckImageLimit(context.Background(), "demo.myshopify.com")
	if !res.Allowed || res.Remaining != 60 {
		t.Fatalf("unexpected limit result: %+v", res)
	}
}
