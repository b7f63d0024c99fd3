package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePlatform scripts ActiveSubscriptions responses per call.
type fakePlatform struct {
	mu        sync.Mutex
	responses []func() ([]Subscription, error)
	calls     int

	usageRecordID string
	usageUserErrs []UserError
	usageErr      error
	usageCalls    []usageCall
}

type usageCall struct {
	lineItemID     string
	description    string
	amount         float64
	currency       string
	idempotencyKey string
}

func (f *fakePlatform) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if idx < 0 {
		return nil, nil
	}
	return f.responses[idx]()
}

func (f *fakePlatform) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (string, []UserError, error) {
	return "https://admin.example.com/charges/confirm", nil, nil
}

func (f *fakePlatform) CreateUsageRecord(ctx context.Context, lineItemID, description string, amount float64, currencyCode, idempotencyKey string) (string, []UserError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usageCalls = append(f.usageCalls, usageCall{lineItemID, description, amount, currencyCode, idempotencyKey})
	return f.usageRecordID, f.usageUserErrs, f.usageErr
}

func respond(subs []Subscription, err error) func() ([]Subscription, error) {
	return func() ([]Subscription, error) { return subs, err }
}

// memoryRecordStore is the in-memory RecordStore used across the package
// tests.
type memoryRecordStore struct {
	mu       sync.Mutex
	records  map[string]*ShopBillingRecord
	disabled bool
	failUp   bool
	upserts  int
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: map[string]*ShopBillingRecord{}}
}

func (m *memoryRecordStore) Enabled() bool { return !m.disabled }

func (m *memoryRecordStore) ReadBillingRecord(ctx context.Context, shopDomain string) (*ShopBillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[shopDomain]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryRecordStore) UpsertBillingRecord(ctx context.Context, shopDomain string, rec *ShopBillingRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.disabled || m.failUp {
		return false
	}
	cp := *rec
	// Mirror the REST adapter: UsageUntouched keeps the stored counter.
	if cp.ImagesUsedMonth == UsageUntouched {
		cp.ImagesUsedMonth = 0
		if prior, ok := m.records[shopDomain]; ok {
			cp.ImagesUsedMonth = prior.ImagesUsedMonth
		}
	}
	m.records[shopDomain] = &cp
	return true
}

func (m *memoryRecordStore) DeleteBillingRecord(ctx context.Context, shopDomain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, shopDomain)
	return nil
}

func newTestSyncService(store RecordStore) (*SyncService, *int) {
	svc := NewSyncService(store)
	sleeps := 0
	svc.sleep = func(time.Duration) { sleeps++ }
	svc.retryDelay = 0
	return svc, &sleeps
}

func growthSubscription() Subscription {
	return Subscription{
		ID:     "gid://shopify/AppSubscription/1",
		Name:   "Omafit Growth",
		Status: "ACTIVE",
		LineItems: []SubscriptionLineItem{
			{ID: "gid://shopify/AppSubscriptionLineItem/1", PricingType: PricingTypeRecurring, Price: 29.99, CurrencyCode: "USD"},
			{ID: "gid://shopify/AppSubscriptionLineItem/2", PricingType: PricingTypeUsage, Terms: "$0.08 per extra try-on image", CappedAmount: 50, CurrencyCode: "USD"},
		},
	}
}

func TestSyncBillingActiveSubscription(t *testing.T) {
	store := newMemoryRecordStore()
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond([]Subscription{growthSubscription()}, nil),
	}}

	snap, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if !snap.HasActiveSubscription || snap.Plan != PlanGrowth || snap.BillingStatus != BillingStatusActive {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.ImagesIncluded != 500 || snap.PricePerExtraImage != 0.08 {
		t.Fatalf("unexpected limits in snapshot: %+v", snap)
	}
	if snap.LineItemID == "" || snap.CappedAmount != 50 {
		t.Fatalf("expected usage line item to be surfaced, got %+v", snap)
	}

	rec, _ := store.ReadBillingRecord(context.Background(), "demo.myshopify.com")
	if rec == nil || rec.Plan != PlanGrowth || rec.BillingStatus != BillingStatusActive {
		t.Fatalf("unexpected persisted record: %+v", rec)
	}
}

func TestSyncBillingRetriesThenFindsSubscription(t *testing.T) {
	store := newMemoryRecordStore()
	svc, sleeps := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond(nil, nil),
		respond(nil, nil),
		respond([]Subscription{growthSubscription()}, nil),
	}}

	snap, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if !snap.HasActiveSubscription {
		t.Fatalf("expected active subscription after retries")
	}
	if platform.calls != 3 {
		t.Fatalf("expected 3 lookup attempts, got %d", platform.calls)
	}
	if *sleeps != 2 {
		t.Fatalf("expected 2 retry delays, got %d", *sleeps)
	}
}

func TestSyncBillingNoActivePreservesPriorPlan(t *testing.T) {
	store := newMemoryRecordStore()
	store.records["demo.myshopify.com"] = &ShopBillingRecord{
		ShopDomain:    "demo.myshopify.com",
		Plan:          PlanPro,
		BillingStatus: BillingStatusActive,
	}
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond(nil, nil),
	}}

	snap, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if snap.HasActiveSubscription {
		t.Fatalf("expected no active subscription")
	}
	if snap.Plan != PlanPro || snap.BillingStatus != BillingStatusInactive {
		t.Fatalf("expected prior plan kept with inactive status, got %+v", snap)
	}

	rec, _ := store.ReadBillingRecord(context.Background(), "demo.myshopify.com")
	if rec.Plan != PlanPro || rec.BillingStatus != BillingStatusInactive {
		t.Fatalf("unexpected persisted record: %+v", rec)
	}
}

func TestSyncBillingNoActiveNoPriorDefaultsStarter(t *testing.T) {
	store := newMemoryRecordStore()
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond(nil, nil),
	}}

	snap, syncErr := svc.SyncBilling(context.Background(), platform, "fresh.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if snap.Plan != PlanStarter || snap.BillingStatus != BillingStatusInactive {
		t.Fatalf("expected starter/inactive default, got %+v", snap)
	}
}

func TestSyncBillingNonActiveStatusIgnored(t *testing.T) {
	store := newMemoryRecordStore()
	svc, _ := newTestSyncService(store)
	cancelled := growthSubscription()
	cancelled.Status = "CANCELLED"
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond([]Subscription{cancelled}, nil),
	}}

	snap, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if snap.HasActiveSubscription {
		t.Fatalf("cancelled subscription must not count as active")
	}
}

func TestSyncBillingPlatformErrorAfterRetries(t *testing.T) {
	store := newMemoryRecordStore()
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond(nil, errors.New("boom")),
	}}

	_, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr == nil || syncErr.Code != SyncErrPlatformUnavailable {
		t.Fatalf("expected platform_unavailable, got %v", syncErr)
	}
	if syncErr.Fatal() {
		t.Fatalf("platform_unavailable must be retryable")
	}
	if store.upserts != 0 {
		t.Fatalf("no record must be written on lookup failure")
	}
}

func TestSyncBillingErrorThenSuccessWithinRetries(t *testing.T) {
	store := newMemoryRecordStore()
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond(nil, errors.New("transient")),
		respond([]Subscription{growthSubscription()}, nil),
	}}

	snap, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if !snap.HasActiveSubscription {
		t.Fatalf("expected success after transient error")
	}
}

func TestSyncBillingStoreDisabled(t *testing.T) {
	store := newMemoryRecordStore()
	store.disabled = true
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond([]Subscription{growthSubscription()}, nil),
	}}

	_, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr == nil || syncErr.Code != SyncErrNotConfigured {
		t.Fatalf("expected not_configured, got %v", syncErr)
	}
	if !syncErr.Fatal() {
		t.Fatalf("not_configured must be fatal")
	}
}

func TestSyncBillingPersistenceFailure(t *testing.T) {
	store := newMemoryRecordStore()
	store.failUp = true
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond([]Subscription{growthSubscription()}, nil),
	}}

	_, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com")
	if syncErr == nil || syncErr.Code != SyncErrPersistenceFailed {
		t.Fatalf("expected persistence_failed, got %v", syncErr)
	}
	if !syncErr.Fatal() {
		t.Fatalf("persistence_failed must be fatal")
	}
}

func TestEnsureActiveAfterApprovalEventuallyActive(t *testing.T) {
	store := newMemoryRecordStore()
	svc, _ := newTestSyncService(store)
	// First two full syncs see nothing, third finds the subscription. Each
	// inner lookup loop runs 3 attempts, so script 9 responses.
	responses := make([]func() ([]Subscription, error), 0, 9)
	for i := 0; i < 6; i++ {
		responses = append(responses, respond(nil, nil))
	}
	responses = append(responses, respond([]Subscription{growthSubscription()}, nil))
	platform := &fakePlatform{responses: responses}

	snap, syncErr := svc.EnsureActiveAfterApproval(context.Background(), platform, "demo.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if !snap.HasActiveSubscription || snap.Plan != PlanGrowth {
		t.Fatalf("expected growth active snapshot, got %+v", snap)
	}
}

func TestEnsureActiveAfterApprovalFatalAborts(t *testing.T) {
	store := newMemoryRecordStore()
	store.disabled = true
	svc, sleeps := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond([]Subscription{growthSubscription()}, nil),
	}}

	_, syncErr := svc.EnsureActiveAfterApproval(context.Background(), platform, "demo.myshopify.com")
	if syncErr == nil || syncErr.Code != SyncErrNotConfigured {
		t.Fatalf("expected not_configured, got %v", syncErr)
	}
	if *sleeps != 0 {
		t.Fatalf("fatal error must abort without outer retries, slept %d times", *sleeps)
	}
}

func TestEnsureActiveAfterApprovalNeverActive(t *testing.T) {
	store := newMemoryRecordStore()
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond(nil, nil),
	}}

	snap, syncErr := svc.EnsureActiveAfterApproval(context.Background(), platform, "demo.myshopify.com")
	if syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}
	if snap == nil || snap.HasActiveSubscription {
		t.Fatalf("expected final inactive snapshot, got %+v", snap)
	}
}

func TestSyncBillingPreservesUsageCounter(t *testing.T) {
	store := newMemoryRecordStore()
	store.UpsertBillingRecord(context.Background(), "demo.myshopify.com", &ShopBillingRecord{
		ShopDomain:      "demo.myshopify.com",
		Plan:            PlanGrowth,
		BillingStatus:   BillingStatusActive,
		ImagesUsedMonth: 42,
	})
	svc, _ := newTestSyncService(store)
	platform := &fakePlatform{responses: []func() ([]Subscription, error){
		respond([]Subscription{growthSubscription()}, nil),
	}}

	if _, syncErr := svc.SyncBilling(context.Background(), platform, "demo.myshopify.com"); syncErr != nil {
		t.Fatalf("unexpected sync error: %v", syncErr)
	}

	rec, _ := store.ReadBillingRecord(context.Background(), "demo.myshopify.com")
	if rec.ImagesUsedMonth != 42 {
		t.Fatalf("sync must not touch the usage counter: want 42, got %d", rec.ImagesUsedMonth)
	}
	if rec.Plan != PlanGrowth || rec.BillingStatus != BillingStatusActive {
		t.Fatalf("unexpected record after sync: %+v", rec)
	}
}
