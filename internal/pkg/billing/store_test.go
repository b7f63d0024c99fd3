package billing

import (
	"testing"
	"time"
)

func TestRowFromRecordDefaults(t *testing.T) {
	row := rowFromRecord(&ShopBillingRecord{
		Plan:           PlanID("basic"), // legacy alias
		BillingStatus:  BillingStatusActive,
		ImagesIncluded: 100,
	})
	if row["plan"] != "starter" {
		t.Fatalf("legacy alias must be normalized on write, got %v", row["plan"])
	}
	if row["currency"] != "USD" {
		t.Fatalf("expected USD default, got %v", row["currency"])
	}
	if row["updated_at"] == "" {
		t.Fatalf("expected updated_at to be filled")
	}
}

func TestRecordFromRow(t *testing.T) {
	rec := recordFromRow("demo.myshopify.com", map[string]interface{}{
		"plan":                  "growth",
		"billing_status":        "active",
		"images_included":       float64(500), // numbers arrive as float64 from JSON
		"price_per_extra_image": float64(0.08),
		"images_used_month":     "42", // drifted schemas store numbers as text
		"updated_at":            "2026-08-01T12:00:00Z",
	})
	if rec.Plan != PlanGrowth || rec.BillingStatus != BillingStatusActive {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ImagesIncluded != 500 || rec.PricePerExtraImage != 0.08 || rec.ImagesUsedMonth != 42 {
		t.Fatalf("unexpected numeric fields: %+v", rec)
	}
	if rec.UpdatedAt != time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) {
		t.Fatalf("unexpected updated_at: %v", rec.UpdatedAt)
	}
}

func TestRecordFromRowDegradedRow(t *testing.T) {
	rec := recordFromRow("demo.myshopify.com", map[string]interface{}{
		"plan": "basic",
	})
	if rec.Plan != PlanStarter {
		t.Fatalf("legacy alias must normalize on read, got %q", rec.Plan)
	}
	if rec.BillingStatus != BillingStatusInactive || rec.Currency != "USD" {
		t.Fatalf("expected safe defaults, got %+v", rec)
	}
}

func TestRowFromRecordUsageCounter(t *testing.T) {
	row := rowFromRecord(&ShopBillingRecord{
		Plan:            PlanGrowth,
		BillingStatus:   BillingStatusActive,
		ImagesUsedMonth: UsageUntouched,
	})
	if _, ok := row["images_used_month"]; ok {
		t.Fatalf("untouched usage counter must be omitted from the payload, got %v", row["images_used_month"])
	}

	row = rowFromRecord(&ShopBillingRecord{
		Plan:            PlanGrowth,
		BillingStatus:   BillingStatusActive,
		ImagesUsedMonth: 5,
	})
	if row["images_used_month"] != 5 {
		t.Fatalf("explicit usage counter must be written, got %v", row["images_used_month"])
	}
}
