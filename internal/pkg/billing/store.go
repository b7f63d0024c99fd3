package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/omafit/tryon-app/internal/pkg/shopstore"
)

// RecordStore persists canonical shop billing records. Production is backed
// by the external REST store; tests substitute an in-memory implementation.
type RecordStore interface {
	Enabled() bool
	ReadBillingRecord(ctx context.Context, shopDomain string) (*ShopBillingRecord, error)
	UpsertBillingRecord(ctx context.Context, shopDomain string, rec *ShopBillingRecord) bool
	DeleteBillingRecord(ctx context.Context, shopDomain string) error
}

type restRecordStore struct {
	client *shopstore.Client
}

// NewRecordStore wraps the schema-tolerant store client in the billing
// record shape.
func NewRecordStore(client *shopstore.Client) RecordStore {
	return &restRecordStore{client: client}
}

func (s *restRecordStore) Enabled() bool {
	return s.client.Enabled()
}

func (s *restRecordStore) ReadBillingRecord(ctx context.Context, shopDomain string) (*ShopBillingRecord, error) {
	row, err := s.client.ReadRow(ctx, shopDomain)
	if err != nil || row == nil {
		return nil, err
	}
	return recordFromRow(shopDomain, row), nil
}

func (s *restRecordStore) UpsertBillingRecord(ctx context.Context, shopDomain string, rec *ShopBillingRecord) bool {
	return s.client.UpsertRow(ctx, shopDomain, rowFromRecord(rec))
}

func (s *restRecordStore) DeleteBillingRecord(ctx context.Context, shopDomain string) error {
	return s.client.DeleteRow(ctx, shopDomain)
}

// rowFromRecord flattens a record into the store payload. The identifier
// column is chosen by the store client, not here.
func rowFromRecord(rec *ShopBillingRecord) map[string]interface{} {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	currency := rec.Currency
	if currency == "" {
		currency = "USD"
	}
	row := map[string]interface{}{
		"plan":                  string(NormalizePlan(string(rec.Plan))),
		"billing_status":        rec.BillingStatus,
		"images_included":       rec.ImagesIncluded,
		"price_per_extra_image": rec.PricePerExtraImage,
		"currency":              currency,
		"updated_at":            updatedAt.Format(time.RFC3339),
	}
	// Sync and webhook writes own plan and status, never the usage counter;
	// omitting the column keeps whatever value the store holds.
	if rec.ImagesUsedMonth != UsageUntouched {
		row["images_used_month"] = rec.ImagesUsedMonth
	}
	return row
}

// recordFromRow rebuilds a record from a store row, normalizing the plan so
// legacy aliases never escape the adapter.
func recordFromRow(shopDomain string, row map[string]interface{}) *ShopBillingRecord {
	rec := &ShopBillingRecord{
		ShopDomain:         shopDomain,
		Plan:               NormalizePlan(rowString(row, "plan")),
		BillingStatus:      rowString(row, "billing_status"),
		ImagesIncluded:     rowInt(row, "images_included"),
		PricePerExtraImage: rowFloat(row, "price_per_extra_image"),
		ImagesUsedMonth:    rowInt(row, "images_used_month"),
		Currency:           rowString(row, "currency"),
	}
	if rec.BillingStatus == "" {
		rec.BillingStatus = BillingStatusInactive
	}
	if rec.Currency == "" {
		rec.Currency = "USD"
	}
	if ts := rowString(row, "updated_at"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.UpdatedAt = parsed
		}
	}
	return rec
}

func rowString(row map[string]interface{}, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func rowFloat(row map[string]interface{}, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func rowInt(row map[string]interface{}, key string) int {
	return int(rowFloat(row, key))
}
