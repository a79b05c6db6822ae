package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/gateway"
)

// mockReconcileService records the events it was handed
type mockReconcileService struct {
	events []*gateway.WebhookEvent
	err    error
}

func (m *mockReconcileService) ProcessEvent(ctx context.Context, provider domain.Provider, event *gateway.WebhookEvent) error {
	m.events = append(m.events, event)
	return m.err
}

func setupWebhookRouter(reconciler *mockReconcileService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	gateways := map[domain.Provider]gateway.PaymentGateway{
		domain.ProviderStripe: gateway.NewMockGateway(nil),
	}
	h := NewWebhookHandler(reconciler, gateways)

	router := gin.New()
	router.POST("/api/payments/webhook", h.HandleStripeWebhook)
	router.POST("/api/payments/wise-webhook", h.HandleWiseWebhook)
	return router
}

func postWebhook(router *gin.Engine, path, signature string, event *gateway.WebhookEvent) *httptest.ResponseRecorder {
	body, _ := json.Marshal(event)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if path == "/api/payments/webhook" {
		req.Header.Set("Stripe-Signature", signature)
	} else {
		req.Header.Set("X-Signature-SHA256", signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookVerifiedDeliveryIsAcked(t *testing.T) {
	reconciler := &mockReconcileService{}
	router := setupWebhookRouter(reconciler)

	rec := postWebhook(router, "/api/payments/webhook", "mock-secret", &gateway.WebhookEvent{
		ID:        "evt_1",
		Type:      gateway.EventCheckoutCompleted,
		SessionID: "cs_1",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var ack dto.WebhookAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack.Received)

	require.Len(t, reconciler.events, 1)
	assert.Equal(t, "evt_1", reconciler.events[0].ID)
}

func TestWebhookBadSignatureRejected(t *testing.T) {
	reconciler := &mockReconcileService{}
	router := setupWebhookRouter(reconciler)

	rec := postWebhook(router, "/api/payments/webhook", "wrong-secret", &gateway.WebhookEvent{
		ID:   "evt_1",
		Type: gateway.EventCheckoutCompleted,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, reconciler.events)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_SIGNATURE", resp.Code)
}

func TestWebhookUnconfiguredProvider(t *testing.T) {
	reconciler := &mockReconcileService{}
	router := setupWebhookRouter(reconciler)

	// Wise gateway was never wired.
	rec := postWebhook(router, "/api/payments/wise-webhook", "mock-secret", &gateway.WebhookEvent{ID: "evt_1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, reconciler.events)
}

func TestWebhookProcessingFailureStillAcked(t *testing.T) {
	reconciler := &mockReconcileService{err: assert.AnError}
	router := setupWebhookRouter(reconciler)

	rec := postWebhook(router, "/api/payments/webhook", "mock-secret", &gateway.WebhookEvent{
		ID:   "evt_1",
		Type: gateway.EventCheckoutCompleted,
	})

	// Verified deliveries are acked even when reconciliation fails; the
	// provider retrying would only hit dedup.
	assert.Equal(t, http.StatusOK, rec.Code)
}
