package billing

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	// A merchant returning from the approval page can reach us before the
	// platform ledger is consistent. Two fixed-delay retries cover the
	// expected propagation window without blocking the page indefinitely.
	subscriptionLookupRetries = 2
	subscriptionLookupDelay   = 2 * time.Second

	// Outer retry schedule for callers that need the subscription to be
	// visibly active (dashboard after return-from-checkout).
	approvalRetryAttempts = 5
	approvalRetryDelay    = 2500 * time.Millisecond
)

// SyncService reconciles the platform's subscription ledger into the
// canonical shop billing record.
type SyncService struct {
	store RecordStore

	retryDelay time.Duration
	sleep      func(time.Duration)
}

// NewSyncService creates a sync service over the given record store.
func NewSyncService(store RecordStore) *SyncService {
	return &SyncService{
		store:      store,
		retryDelay: subscriptionLookupDelay,
		sleep:      time.Sleep,
	}
}

// SyncBilling pulls subscription truth from the platform, reduces it to plan
// and status, and persists the canonical record. It never propagates platform
// errors: the outcome is a snapshot or a structured SyncError the caller may
// log and ignore.
func (s *SyncService) SyncBilling(ctx context.Context, platform PlatformClient, shopDomain string) (*BillingSnapshot, *SyncError) {
	active, lookupErr := s.findActiveSubscription(ctx, platform)
	if lookupErr != nil {
		log.Errorf("[Billing] subscription lookup for %s failed: %v", shopDomain, lookupErr)
		return nil, newSyncError(SyncErrPlatformUnavailable, lookupErr)
	}

	hasActive := active != nil
	subscriptionName := ""
	var recurringAmount *float64
	if hasActive {
		subscriptionName = active.Name
		recurringAmount = active.RecurringAmount()
	}

	plan := PlanStarter
	if hasActive {
		plan = ResolvePlan(subscriptionName, recurringAmount)
	} else if prior, err := s.store.ReadBillingRecord(ctx, shopDomain); err == nil && prior != nil {
		// No active subscription: keep the last known plan and only flip the
		// status, so platform propagation lag never downgrades the shop.
		plan = prior.Plan
	}

	limits := LimitsFor(plan)
	status := BillingStatusInactive
	if hasActive {
		status = BillingStatusActive
	}

	rec := &ShopBillingRecord{
		ShopDomain:         shopDomain,
		Plan:               plan,
		BillingStatus:      status,
		ImagesIncluded:     limits.ImagesIncluded,
		PricePerExtraImage: limits.PricePerExtraImage,
		ImagesUsedMonth:    UsageUntouched,
		Currency:           "USD",
		UpdatedAt:          time.Now().UTC(),
	}
	if !s.store.UpsertBillingRecord(ctx, shopDomain, rec) {
		if !s.store.Enabled() {
			return nil, newSyncError(SyncErrNotConfigured, nil)
		}
		return nil, newSyncError(SyncErrPersistenceFailed, nil)
	}

	snapshot := &BillingSnapshot{
		ShopDomain:            shopDomain,
		HasActiveSubscription: hasActive,
		SubscriptionName:      subscriptionName,
		Plan:                  plan,
		BillingStatus:         status,
		ImagesIncluded:        limits.ImagesIncluded,
		PricePerExtraImage:    limits.PricePerExtraImage,
		Currency:              rec.Currency,
	}
	if hasActive {
		if li, err := active.UsageLineItem(); err == nil {
			snapshot.LineItemID = li.ID
			snapshot.CappedAmount = li.CappedAmount
		}
	}
	return snapshot, nil
}

// findActiveSubscription queries the ledger for an ACTIVE subscription, with
// the bounded fixed-delay retry for the approval propagation race. Whatever
// the outcome after the retries, sync proceeds; an error is reported only
// when every query attempt failed.
func (s *SyncService) findActiveSubscription(ctx context.Context, platform PlatformClient) (*Subscription, error) {
	var lastErr error
	for attempt := 0; attempt <= subscriptionLookupRetries; attempt++ {
		if attempt > 0 {
			s.sleep(s.retryDelay)
		}
		subs, err := platform.ActiveSubscriptions(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		for i := range subs {
			if strings.EqualFold(strings.TrimSpace(subs[i].Status), SubscriptionStatusActive) {
				return &subs[i], nil
			}
		}
	}
	return nil, lastErr
}

// EnsureActiveAfterApproval layers the longer outer retry loop on top of
// SyncBilling for the return-from-checkout path. Fatal errors (schema,
// configuration, auth) abort immediately; "not active yet" keeps retrying.
func (s *SyncService) EnsureActiveAfterApproval(ctx context.Context, platform PlatformClient, shopDomain string) (*BillingSnapshot, *SyncError) {
	var snapshot *BillingSnapshot
	var syncErr *SyncError
	for attempt := 0; attempt < approvalRetryAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(approvalRetryDelay)
		}
		snapshot, syncErr = s.SyncBilling(ctx, platform, shopDomain)
		if syncErr != nil {
			if syncErr.Fatal() {
				return nil, syncErr
			}
			continue
		}
		if snapshot.HasActiveSubscription {
			return snapshot, nil
		}
	}
	return snapshot, syncErr
}
