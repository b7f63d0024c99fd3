package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// Pricing detail type names reported by the platform for a line item.
	PricingTypeRecurring = "AppRecurringPricing"
	PricingTypeUsage     = "AppUsagePricing"

	// Subscription statuses as reported by the platform ledger.
	SubscriptionStatusActive = "ACTIVE"
)

// SubscriptionLineItem is one billable component of a platform subscription.
type SubscriptionLineItem struct {
	ID           string
	PricingType  string
	Terms        string
	Price        float64
	CurrencyCode string
	CappedAmount float64
}

// Subscription mirrors the platform's app subscription shape, reduced to the
// fields the billing core consumes.
type Subscription struct {
	ID        string
	Name      string
	Status    string
	LineItems []SubscriptionLineItem
}

// RecurringAmount returns the first recurring line item's price, or nil when
// the subscription has none.
func (s *Subscription) RecurringAmount() *float64 {
	for _, li := range s.LineItems {
		if li.PricingType == PricingTypeRecurring {
			amount := li.Price
			return &amount
		}
	}
	return nil
}

// UsageLineItem returns the line item usage charges target. Both a usage
// pricing plan and non-empty terms are hard preconditions for charging.
func (s *Subscription) UsageLineItem() (*SubscriptionLineItem, error) {
	for i := range s.LineItems {
		li := &s.LineItems[i]
		if li.PricingType != PricingTypeUsage {
			continue
		}
		if strings.TrimSpace(li.Terms) == "" {
			return nil, errors.New("usage line item has empty terms")
		}
		return li, nil
	}
	return nil, errors.New("subscription has no usage-priced line item")
}

// UserError is a business error the platform wants shown to the merchant,
// distinct from transport or system errors.
type UserError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CreateSubscriptionRequest describes a new subscription to offer the
// merchant for approval.
type CreateSubscriptionRequest struct {
	PlanName     string
	Price        float64
	CurrencyCode string
	Terms        string
	CappedAmount float64
	ReturnURL    string
	Test         bool
}

// PlatformClient is the surface of the commerce platform the billing core
// needs. Production uses ShopifyClient; tests substitute fakes.
type PlatformClient interface {
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (confirmationURL string, userErrs []UserError, err error)
	CreateUsageRecord(ctx context.Context, lineItemID, description string, amount float64, currencyCode, idempotencyKey string) (recordID string, userErrs []UserError, err error)
}

// ShopifyClient talks to one shop's Admin GraphQL API.
type ShopifyClient struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string

	// EndpointOverride replaces the derived admin URL; used by tests.
	EndpointOverride string

	HTTPClient *http.Client
}

// NewShopifyClient creates a client for one shop using its offline access
// token.
func NewShopifyClient(shopDomain, accessToken, apiVersion string) *ShopifyClient {
	return &ShopifyClient{
		ShopDomain:  shopDomain,
		AccessToken: accessToken,
		APIVersion:  apiVersion,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *ShopifyClient) endpoint() string {
	if c.EndpointOverride != "" {
		return c.EndpointOverride
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.ShopDomain, c.APIVersion)
}

// graphql posts one query with variables and decodes data into out.
func (c *ShopifyClient) graphql(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload := map[string]interface{}{"query": query}
	if variables != nil {
		payload["variables"] = variables
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("platform request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("platform query error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

const activeSubscriptionsQuery = `
query {
  currentAppInstallation {
    activeSubscriptions {
      id
      name
      status
      lineItems {
        id
        plan {
          pricingDetails {
            __typename
            ... on AppRecurringPricing {
              price { amount currencyCode }
            }
            ... on AppUsagePricing {
              terms
              cappedAmount { amount currencyCode }
            }
          }
        }
      }
    }
  }
}`

// ActiveSubscriptions lists the subscriptions the platform ledger reports for
// this installation.
func (c *ShopifyClient) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	type money struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	}
	var data struct {
		CurrentAppInstallation struct {
			ActiveSubscriptions []struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				Status    string `json:"status"`
				LineItems []struct {
					ID   string `json:"id"`
					Plan struct {
						PricingDetails struct {
							Typename     string `json:"__typename"`
							Price        *money `json:"price"`
							Terms        string `json:"terms"`
							CappedAmount *money `json:"cappedAmount"`
						} `json:"pricingDetails"`
					} `json:"plan"`
				} `json:"lineItems"`
			} `json:"activeSubscriptions"`
		} `json:"currentAppInstallation"`
	}

	if err := c.graphql(ctx, activeSubscriptionsQuery, nil, &data); err != nil {
		return nil, err
	}

	subs := make([]Subscription, 0, len(data.CurrentAppInstallation.ActiveSubscriptions))
	for _, raw := range data.CurrentAppInstallation.ActiveSubscriptions {
		sub := Subscription{ID: raw.ID, Name: raw.Name, Status: raw.Status}
		for _, rawItem := range raw.LineItems {
			item := SubscriptionLineItem{
				ID:          rawItem.ID,
				PricingType: rawItem.Plan.PricingDetails.Typename,
				Terms:       rawItem.Plan.PricingDetails.Terms,
			}
			if p := rawItem.Plan.PricingDetails.Price; p != nil {
				item.Price = parseAmount(p.Amount)
				item.CurrencyCode = p.CurrencyCode
			}
			if capped := rawItem.Plan.PricingDetails.CappedAmount; capped != nil {
				item.CappedAmount = parseAmount(capped.Amount)
				if item.CurrencyCode == "" {
					item.CurrencyCode = capped.CurrencyCode
				}
			}
			sub.LineItems = append(sub.LineItems, item)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

const createSubscriptionMutation = `
mutation appSubscriptionCreate($name: String!, $returnUrl: URL!, $test: Boolean, $lineItems: [AppSubscriptionLineItemInput!]!) {
  appSubscriptionCreate(name: $name, returnUrl: $returnUrl, test: $test, lineItems: $lineItems) {
    confirmationUrl
    userErrors { field message }
  }
}`

// CreateSubscription offers the merchant a recurring+usage subscription and
// returns the approval URL. User errors are returned separately from
// transport errors so callers can show them to the merchant.
func (c *ShopifyClient) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (string, []UserError, error) {
	lineItems := []map[string]interface{}{
		{
			"plan": map[string]interface{}{
				"appRecurringPricingDetails": map[string]interface{}{
					"price":    map[string]interface{}{"amount": req.Price, "currencyCode": req.CurrencyCode},
					"interval": "EVERY_30_DAYS",
				},
			},
		},
	}
	if req.CappedAmount > 0 && req.Terms != "" {
		lineItems = append(lineItems, map[string]interface{}{
			"plan": map[string]interface{}{
				"appUsagePricingDetails": map[string]interface{}{
					"terms":        req.Terms,
					"cappedAmount": map[string]interface{}{"amount": req.CappedAmount, "currencyCode": req.CurrencyCode},
				},
			},
		})
	}

	var data struct {
		AppSubscriptionCreate struct {
			ConfirmationURL string      `json:"confirmationUrl"`
			UserErrors      []UserError `json:"userErrors"`
		} `json:"appSubscriptionCreate"`
	}
	err := c.graphql(ctx, createSubscriptionMutation, map[string]interface{}{
		"name":      req.PlanName,
		"returnUrl": req.ReturnURL,
		"test":      req.Test,
		"lineItems": lineItems,
	}, &data)
	if err != nil {
		return "", nil, err
	}
	if len(data.AppSubscriptionCreate.UserErrors) > 0 {
		return "", data.AppSubscriptionCreate.UserErrors, nil
	}
	if strings.TrimSpace(data.AppSubscriptionCreate.ConfirmationURL) == "" {
		return "", nil, errors.New("platform returned empty confirmation url")
	}
	return data.AppSubscriptionCreate.ConfirmationURL, nil, nil
}

const createUsageRecordMutation = `
mutation appUsageRecordCreate($subscriptionLineItemId: ID!, $price: MoneyInput!, $description: String!, $idempotencyKey: String) {
  appUsageRecordCreate(subscriptionLineItemId: $subscriptionLineItemId, price: $price, description: $description, idempotencyKey: $idempotencyKey) {
    appUsageRecord { id }
    userErrors { field message }
  }
}`

// CreateUsageRecord submits one usage charge against a line item. The
// platform enforces the capped amount itself; a charge past the cap comes
// back as a user error.
func (c *ShopifyClient) CreateUsageRecord(ctx context.Context, lineItemID, description string, amount float64, currencyCode, idempotencyKey string) (string, []UserError, error) {
	var data struct {
		AppUsageRecordCreate struct {
			AppUsageRecord *struct {
				ID string `json:"id"`
			} `json:"appUsageRecord"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"appUsageRecordCreate"`
	}
	err := c.graphql(ctx, createUsageRecordMutation, map[string]interface{}{
		"subscriptionLineItemId": lineItemID,
		"price":                  map[string]interface{}{"amount": amount, "currencyCode": currencyCode},
		"description":            description,
		"idempotencyKey":         idempotencyKey,
	}, &data)
	if err != nil {
		return "", nil, err
	}
	if len(data.AppUsageRecordCreate.UserErrors) > 0 {
		return "", data.AppUsageRecordCreate.UserErrors, nil
	}
	if data.AppUsageRecordCreate.AppUsageRecord == nil {
		return "", nil, errors.New("platform returned no usage record")
	}
	return data.AppUsageRecordCreate.AppUsageRecord.ID, nil, nil
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
