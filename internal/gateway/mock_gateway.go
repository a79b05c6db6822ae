package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockGateway implements PaymentGateway for testing and development. It
// never calls any provider; sessions are fabricated and webhook signatures
// are accepted when they equal the configured secret.
type MockGateway struct {
	config   *MockGatewayConfig
	sessions sync.Map // sessionID -> *SessionRequest
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// FailRate is the probability a CreateSession call fails (0.0 to 1.0)
	FailRate float64

	// DelayMs is the simulated provider latency in milliseconds
	DelayMs int

	// WebhookSecret is compared byte-for-byte against the signature header
	WebhookSecret string
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		FailRate:      0,
		DelayMs:       0,
		WebhookSecret: "mock-secret",
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	return &MockGateway{config: config}
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// CreateSession fabricates a provider session
func (g *MockGateway) CreateSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("session request is required")
	}

	if g.config.DelayMs > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(g.config.DelayMs) * time.Millisecond):
		}
	}

	if g.config.FailRate > 0 && rand.Float64() < g.config.FailRate {
		return nil, fmt.Errorf("mock provider unavailable")
	}

	sessionID := fmt.Sprintf("mock_sess_%s", uuid.New().String()[:8])
	g.sessions.Store(sessionID, req)

	return &SessionResponse{
		SessionID:   sessionID,
		CheckoutURL: "https://checkout.mock.local/" + sessionID,
	}, nil
}

// VerifyWebhook accepts any payload whose signature header matches the secret
func (g *MockGateway) VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	if signatureHeader != g.config.WebhookSecret {
		return nil, fmt.Errorf("mock webhook signature mismatch")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse mock webhook: %w", err)
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	return &event, nil
}

// CompleteSession builds the webhook event a successful checkout would
// deliver for a previously created session. Test helper.
func (g *MockGateway) CompleteSession(sessionID string) (*WebhookEvent, bool) {
	v, ok := g.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	req := v.(*SessionRequest)
	return &WebhookEvent{
		ID:          fmt.Sprintf("mock_evt_%s", uuid.New().String()[:8]),
		Type:        EventCheckoutCompleted,
		SessionID:   sessionID,
		PaymentID:   fmt.Sprintf("mock_pi_%s", uuid.New().String()[:8]),
		AmountTotal: req.TotalAmount,
		Currency:    req.Currency,
	}, true
}

var _ PaymentGateway = (*MockGateway)(nil)
