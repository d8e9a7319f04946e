package billing

import (
	"net/http"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

var (
	// ErrProviderNotConfigured is returned when the payment backend has no API key
	ErrProviderNotConfigured = featured.NewError(featured.KindConfig, "STRIPE_NOT_CONFIGURED", "payment backend not configured")

	// ErrWebhookNotConfigured is returned when no webhook signing secret is set
	ErrWebhookNotConfigured = featured.NewError(featured.KindConfig, "WEBHOOK_NOT_CONFIGURED", "webhook not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = featured.NewError(featured.KindValidation, "INVALID_SIGNATURE", "invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = featured.NewError(featured.KindValidation, "INVALID_PAYLOAD", "invalid webhook payload")

	// ErrPayloadTooLarge is returned when the webhook body exceeds the size limit
	ErrPayloadTooLarge = &featured.Error{
		Kind:    featured.KindValidation,
		Code:    "PAYLOAD_TOO_LARGE",
		Message: "payload too large",
		Status:  http.StatusRequestEntityTooLarge,
	}

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = featured.NewError(featured.KindUpstream, "STRIPE_ERROR", "payment backend error")

	// ErrFulfillmentFailed is returned when the fulfillment transaction failed
	ErrFulfillmentFailed = featured.NewError(featured.KindPersistence, "DB_ERROR", "failed to record fulfillment")
)
