package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omafit/tryon-app/app/models"
	"github.com/omafit/tryon-app/internal/pkg/billing"
)

func TestWidgetEnabled(t *testing.T) {
	settings := models.DefaultShopSettings(1)

	granted := billing.EvaluateAccess(&billing.ShopBillingRecord{
		Plan:          billing.PlanGrowth,
		BillingStatus: billing.BillingStatusActive,
	}, true)
	assert.True(t, widgetEnabled(settings, granted))

	// Billing denial hides the widget even when the merchant toggle is on.
	denied := billing.EvaluateAccess(nil, true)
	assert.False(t, widgetEnabled(settings, denied))

	// Merchant toggle off hides the widget regardless of billing.
	settings.WidgetEnabled = false
	assert.False(t, widgetEnabled(settings, granted))
}
