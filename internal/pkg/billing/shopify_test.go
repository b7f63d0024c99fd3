package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestShopifyClient(server *httptest.Server) *ShopifyClient {
	client := NewShopifyClient("demo.myshopify.com", "shpat_test", "2025-07")
	client.EndpointOverride = server.URL
	client.HTTPClient = server.Client()
	return client
}

func TestShopifyActiveSubscriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "shpat_test" {
			t.Errorf("missing access token header, got %q", got)
		}
		var payload struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if !strings.Contains(payload.Query, "activeSubscriptions") {
			t.Errorf("unexpected query: %s", payload.Query)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"currentAppInstallation":{"activeSubscriptions":[{
			"id":"gid://shopify/AppSubscription/1",
			"name":"Omafit Growth",
			"status":"ACTIVE",
			"lineItems":[
				{"id":"li_1","plan":{"pricingDetails":{"__typename":"AppRecurringPricing","price":{"amount":"29.99","currencyCode":"USD"}}}},
				{"id":"li_2","plan":{"pricingDetails":{"__typename":"AppUsagePricing","terms":"$0.08 per extra image","cappedAmount":{"amount":"50.00","currencyCode":"USD"}}}}
			]
		}]}}}`))
	}))
	defer server.Close()

	subs, err := newTestShopifyClient(server).ActiveSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	sub := subs[0]
	if sub.Name != "Omafit Growth" || sub.Status != "ACTIVE" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if amount := sub.RecurringAmount(); amount == nil || *amount != 29.99 {
		t.Fatalf("unexpected recurring amount: %v", amount)
	}
	li, err := sub.UsageLineItem()
	if err != nil {
		t.Fatalf("unexpected usage line item error: %v", err)
	}
	if li.ID != "li_2" || li.CappedAmount != 50 {
		t.Fatalf("unexpected usage line item: %+v", li)
	}
}

func TestShopifyGraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"message":"Throttled"}]}`))
	}))
	defer server.Close()

	if _, err := newTestShopifyClient(server).ActiveSubscriptions(context.Background()); err == nil || !strings.Contains(err.Error(), "Throttled") {
		t.Fatalf("expected query error surfaced, got %v", err)
	}
}

func TestShopifyHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":"invalid token"}`))
	}))
	defer server.Close()

	if _, err := newTestShopifyClient(server).ActiveSubscriptions(context.Background()); err == nil || !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestShopifyCreateSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Variables struct {
				Name      string                   `json:"name"`
				Test      bool                     `json:"test"`
				LineItems []map[string]interface{} `json:"lineItems"`
			} `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if payload.Variables.Name != "Omafit Growth" || !payload.Variables.Test {
			t.Errorf("unexpected variables: %+v", payload.Variables)
		}
		if len(payload.Variables.LineItems) != 2 {
			t.Errorf("expected recurring+usage line items, got %d", len(payload.Variables.LineItems))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"appSubscriptionCreate":{"confirmationUrl":"https://demo.myshopify.com/admin/charges/confirm","userErrors":[]}}}`))
	}))
	defer server.Close()

	url, userErrs, err := newTestShopifyClient(server).CreateSubscription(context.Background(), CreateSubscriptionRequest{
		PlanName:     "Omafit Growth",
		Price:        29.99,
		CurrencyCode: "USD",
		Terms:        "$0.08 per extra try-on image",
		CappedAmount: 50,
		ReturnURL:    "https://omafit.app/billing/confirm",
		Test:         true,
	})
	if err != nil || len(userErrs) != 0 {
		t.Fatalf("unexpected result: url=%q userErrs=%v err=%v", url, userErrs, err)
	}
	if !strings.Contains(url, "/charges/confirm") {
		t.Fatalf("unexpected confirmation url: %q", url)
	}
}

func TestShopifyCreateSubscriptionUserErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"appSubscriptionCreate":{"confirmationUrl":null,"userErrors":[{"field":"price","message":"Price must be positive"}]}}}`))
	}))
	defer server.Close()

	_, userErrs, err := newTestShopifyClient(server).CreateSubscription(context.Background(), CreateSubscriptionRequest{
		PlanName: "Omafit Growth", Price: -1, CurrencyCode: "USD", ReturnURL: "https://omafit.app/billing/confirm",
	})
	if err != nil {
		t.Fatalf("user errors must not be transport errors: %v", err)
	}
	if len(userErrs) != 1 || userErrs[0].Message != "Price must be positive" {
		t.Fatalf("unexpected user errors: %v", userErrs)
	}
}

func TestShopifyCreateUsageRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Variables struct {
				LineItemID     string                 `json:"subscriptionLineItemId"`
				Price          map[string]interface{} `json:"price"`
				IdempotencyKey string                 `json:"idempotencyKey"`
			} `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if payload.Variables.LineItemID != "li_2" || payload.Variables.IdempotencyKey == "" {
			t.Errorf("unexpected variables: %+v", payload.Variables)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"appUsageRecordCreate":{"appUsageRecord":{"id":"gid://shopify/AppUsageRecord/9"},"userErrors":[]}}}`))
	}))
	defer server.Close()

	recordID, userErrs, err := newTestShopifyClient(server).CreateUsageRecord(context.Background(), "li_2", "5 extra try-on images beyond plan quota", 0.40, "USD", "b7f9f0e4-0000-0000-0000-000000000000")
	if err != nil || len(userErrs) != 0 {
		t.Fatalf("unexpected result: userErrs=%v err=%v", userErrs, err)
	}
	if recordID != "gid://shopify/AppUsageRecord/9" {
		t.Fatalf("unexpected record id: %q", recordID)
	}
}

func TestUsageLineItemPreconditions(t *testing.T) {
	sub := Subscription{LineItems: []SubscriptionLineItem{
		{ID: "li_1", PricingType: PricingTypeRecurring, Price: 29.99},
	}}
	if _, err := sub.UsageLineItem(); err == nil {
		t.Fatalf("expected error without usage line item")
	}

	sub.LineItems = append(sub.LineItems, SubscriptionLineItem{ID: "li_2", PricingType: PricingTypeUsage, Terms: "  "})
	if _, err := sub.UsageLineItem(); err == nil {
		t.Fatalf("expected error for empty terms")
	}

	sub.LineItems[1].Terms = "$0.08 per extra image"
	li, err := sub.UsageLineItem()
	if err != nil || li.ID != "li_2" {
		t.Fatalf("expected usage line item, got %v err=%v", li, err)
	}
}
