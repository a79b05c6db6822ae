package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// WebhookEventType is a provider-neutral classification of a webhook delivery
type WebhookEventType string

const (
	EventCheckoutCompleted WebhookEventType = "checkout_completed"
	EventPaymentSucceeded  WebhookEventType = "payment_succeeded"
	EventPaymentFailed     WebhookEventType = "payment_failed"
	EventPaymentCanceled   WebhookEventType = "payment_canceled"
	EventDisputeCreated    WebhookEventType = "dispute_created"
	EventIgnored           WebhookEventType = "ignored"
)

// SessionRequest describes the payment session to create. Amounts are in the
// major currency unit; gateways convert to the smallest unit themselves.
type SessionRequest struct {
	BookingID      string
	UserID         string
	UserEmail      string
	ItemTitle      string
	ItemType       string
	BaseAmount     float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
	Currency       string
	ExpiresAt      time.Time
	SuccessURL     string // overrides the gateway default when set
	CancelURL      string
	Metadata       map[string]string
}

// SessionResponse is the provider object created for a session request
type SessionResponse struct {
	SessionID   string
	PaymentID   string // provider payment object id, when known at creation
	CheckoutURL string
}

// WebhookEvent is the provider-neutral view of a verified webhook delivery
type WebhookEvent struct {
	ID               string
	Type             WebhookEventType
	SessionID        string
	PaymentID        string // payment_intent / transfer id
	ChargeID         string // dispute events only
	AmountTotal      float64
	Currency         string
	FailureReason    string
	RawPayload       json.RawMessage
	ProviderEventRaw string // original provider event type, for logging
}

// PaymentGateway creates provider payment sessions and verifies provider
// webhook deliveries. Implementations must not mutate engine state.
type PaymentGateway interface {
	Name() string

	// CreateSession creates the provider-side payment object for a booking.
	CreateSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error)

	// VerifyWebhook checks the delivery signature and normalizes the event.
	// Returns an error when the signature is invalid; unrecognized event
	// types come back with Type == EventIgnored.
	VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}
