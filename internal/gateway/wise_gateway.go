package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WiseGateway implements PaymentGateway against the Wise transfers API.
// Wise has no checkout page: a session here is a quote plus a funded
// transfer, and the transfer id doubles as the session id.
type WiseGateway struct {
	config *WiseGatewayConfig
	client *http.Client
}

// WiseGatewayConfig holds configuration for the Wise gateway
type WiseGatewayConfig struct {
	APIKey        string
	BaseURL       string // https://api.sandbox.transferwise.tech for sandbox
	ProfileID     string
	WebhookSecret string
	// RecipientID is the pre-registered studio account transfers pay into.
	// When empty a recipient is created per transfer from the user email.
	RecipientID string
}

// NewWiseGateway creates a new Wise gateway
func NewWiseGateway(config *WiseGatewayConfig) (*WiseGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("wise config is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("wise api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.sandbox.transferwise.tech"
	}

	return &WiseGateway{
		config: config,
		client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Name returns the gateway name
func (g *WiseGateway) Name() string {
	return "wise"
}

type wiseQuote struct {
	ID string `json:"id"`
}

type wiseRecipient struct {
	ID int64 `json:"id"`
}

type wiseTransfer struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// CreateSession runs the Wise flow: quote, recipient (unless preconfigured),
// transfer. Any step failing fails the whole session; the caller deletes the
// PENDING booking and transaction it created.
func (g *WiseGateway) CreateSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("session request is required")
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	quote, err := g.createQuote(ctx, req.TotalAmount, currency)
	if err != nil {
		return nil, fmt.Errorf("wise quote failed: %w", err)
	}

	recipientID := g.config.RecipientID
	if recipientID == "" {
		recipient, err := g.createRecipient(ctx, req.UserEmail, currency)
		if err != nil {
			return nil, fmt.Errorf("wise recipient failed: %w", err)
		}
		recipientID = fmt.Sprintf("%d", recipient.ID)
	}

	transfer, err := g.createTransfer(ctx, quote.ID, recipientID, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("wise transfer failed: %w", err)
	}

	sessionID := fmt.Sprintf("wise_%d", transfer.ID)
	return &SessionResponse{
		SessionID: sessionID,
		PaymentID: fmt.Sprintf("%d", transfer.ID),
	}, nil
}

func (g *WiseGateway) createQuote(ctx context.Context, amount float64, currency string) (*wiseQuote, error) {
	body := map[string]any{
		"sourceCurrency": currency,
		"targetCurrency": currency,
		"targetAmount":   amount,
		"profile":        g.config.ProfileID,
	}
	quote := &wiseQuote{}
	if err := g.post(ctx, "/v3/quotes", body, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

func (g *WiseGateway) createRecipient(ctx context.Context, email, currency string) (*wiseRecipient, error) {
	body := map[string]any{
		"currency": currency,
		"type":     "email",
		"profile":  g.config.ProfileID,
		"details": map[string]any{
			"email": email,
		},
	}
	recipient := &wiseRecipient{}
	if err := g.post(ctx, "/v1/accounts", body, recipient); err != nil {
		return nil, err
	}
	return recipient, nil
}

func (g *WiseGateway) createTransfer(ctx context.Context, quoteID, recipientID, bookingID string) (*wiseTransfer, error) {
	body := map[string]any{
		"targetAccount":         recipientID,
		"quoteUuid":             quoteID,
		"customerTransactionId": uuid.New().String(),
		"details": map[string]any{
			"reference": bookingID,
		},
	}
	transfer := &wiseTransfer{}
	if err := g.post(ctx, "/v1/transfers", body, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (g *WiseGateway) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wise api %s returned %d: %s", path, resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

type wiseWebhookPayload struct {
	EventType string `json:"event_type"`
	Data      struct {
		Resource struct {
			ID int64 `json:"id"`
		} `json:"resource"`
		CurrentState string `json:"current_state"`
	} `json:"data"`
	SentAt string `json:"sent_at"`
}

// VerifyWebhook checks the X-Signature-SHA256 HMAC and normalizes the event.
// Wise transfer state changes map onto the same internal event types as
// Stripe's payment intents.
func (g *WiseGateway) VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(g.config.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return nil, fmt.Errorf("wise webhook signature mismatch")
	}

	var event wiseWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse wise webhook: %w", err)
	}

	transferID := fmt.Sprintf("%d", event.Data.Resource.ID)
	out := &WebhookEvent{
		// Wise has no delivery id; transfer id + state is stable across
		// redeliveries of the same state change.
		ID:               fmt.Sprintf("wise_%s_%s", transferID, event.Data.CurrentState),
		SessionID:        "wise_" + transferID,
		PaymentID:        transferID,
		RawPayload:       payload,
		ProviderEventRaw: event.EventType + ":" + event.Data.CurrentState,
	}

	switch event.Data.CurrentState {
	case "outgoing_payment_sent", "funds_converted":
		out.Type = EventPaymentSucceeded
	case "bounced_back", "charged_back":
		out.Type = EventPaymentFailed
		out.FailureReason = event.Data.CurrentState
	case "cancelled":
		out.Type = EventPaymentCanceled
	default:
		out.Type = EventIgnored
	}

	return out, nil
}

var _ PaymentGateway = (*WiseGateway)(nil)
