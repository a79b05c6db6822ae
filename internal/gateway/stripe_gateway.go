package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/insominiac/dancemvp-backend/internal/logger"
)

// StripeGateway implements PaymentGateway using Stripe Checkout Sessions
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for the Stripe gateway
type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// CreateSession creates a Stripe Checkout Session for the booking. The price
// breakdown is expressed as line items: the base price, a negative discount
// line when a discount applies, and a tax line. The session carries the
// booking id in metadata and expires 30 minutes after creation.
func (g *StripeGateway) CreateSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("session request is required")
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	lineItems := []*stripe.CheckoutSessionLineItemParams{
		{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ItemTitle),
				},
				UnitAmount: stripe.Int64(toCents(req.BaseAmount)),
			},
			Quantity: stripe.Int64(1),
		},
	}
	if req.DiscountAmount > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Discount"),
				},
				UnitAmount: stripe.Int64(-toCents(req.DiscountAmount)),
			},
			Quantity: stripe.Int64(1),
		})
	}
	if req.TaxAmount > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Tax"),
				},
				UnitAmount: stripe.Int64(toCents(req.TaxAmount)),
			},
			Quantity: stripe.Int64(1),
		})
	}

	metadata := map[string]string{
		"booking_id": req.BookingID,
		"user_id":    req.UserID,
		"item_type":  req.ItemType,
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	successURL := g.config.SuccessURL
	if req.SuccessURL != "" {
		successURL = req.SuccessURL
	}
	cancelURL := g.config.CancelURL
	if req.CancelURL != "" {
		cancelURL = req.CancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		LineItems:         lineItems,
		ClientReferenceID: stripe.String(req.BookingID),
		ExpiresAt:         stripe.Int64(req.ExpiresAt.Unix()),
		Metadata:          metadata,
	}
	if req.UserEmail != "" {
		params.CustomerEmail = stripe.String(req.UserEmail)
	}
	params.Context = ctx

	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &SessionResponse{
		SessionID:   s.ID,
		CheckoutURL: s.URL,
	}, nil
}

// VerifyWebhook verifies the Stripe-Signature header and normalizes the event
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.config.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	out := &WebhookEvent{
		ID:               event.ID,
		RawPayload:       event.Data.Raw,
		ProviderEventRaw: string(event.Type),
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		out.Type = EventCheckoutCompleted
		out.SessionID = session.ID
		out.AmountTotal = float64(session.AmountTotal) / 100
		out.Currency = string(session.Currency)
		if session.PaymentIntent != nil {
			out.PaymentID = session.PaymentIntent.ID
		}

	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("failed to parse payment intent: %w", err)
		}
		out.PaymentID = intent.ID
		out.AmountTotal = float64(intent.Amount) / 100
		out.Currency = string(intent.Currency)
		switch event.Type {
		case "payment_intent.succeeded":
			out.Type = EventPaymentSucceeded
		case "payment_intent.canceled":
			out.Type = EventPaymentCanceled
		default:
			out.Type = EventPaymentFailed
			if intent.LastPaymentError != nil {
				out.FailureReason = intent.LastPaymentError.Msg
			}
			if out.FailureReason == "" {
				out.FailureReason = "payment failed"
			}
		}

	case "charge.dispute.created":
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, fmt.Errorf("failed to parse dispute: %w", err)
		}
		out.Type = EventDisputeCreated
		if dispute.Charge != nil {
			out.ChargeID = dispute.Charge.ID
		}
		if dispute.PaymentIntent != nil {
			out.PaymentID = dispute.PaymentIntent.ID
		}
		out.FailureReason = string(dispute.Reason)

	default:
		logger.Get().Debug("ignoring stripe event type: " + string(event.Type))
		out.Type = EventIgnored
	}

	return out, nil
}

// toCents converts a major-unit amount to the smallest currency unit
func toCents(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

var _ PaymentGateway = (*StripeGateway)(nil)
