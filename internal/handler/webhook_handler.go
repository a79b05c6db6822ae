package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/gateway"
	"github.com/insominiac/dancemvp-backend/internal/logger"
	"github.com/insominiac/dancemvp-backend/internal/metrics"
	"github.com/insominiac/dancemvp-backend/internal/service"
)

// maxWebhookBody bounds how much of a webhook payload is read
const maxWebhookBody = 1 << 20

// WebhookHandler receives provider webhook deliveries, verifies their
// signatures and hands the decoded events to the reconciler
type WebhookHandler struct {
	reconcileService service.ReconcileService
	gateways         map[domain.Provider]gateway.PaymentGateway
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconcileService service.ReconcileService, gateways map[domain.Provider]gateway.PaymentGateway) *WebhookHandler {
	return &WebhookHandler{
		reconcileService: reconcileService,
		gateways:         gateways,
	}
}

// HandleStripeWebhook handles POST /api/payments/webhook
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	h.handle(c, domain.ProviderStripe, c.GetHeader("Stripe-Signature"))
}

// HandleWiseWebhook handles POST /api/payments/wise-webhook
func (h *WebhookHandler) HandleWiseWebhook(c *gin.Context) {
	h.handle(c, domain.ProviderWise, c.GetHeader("X-Signature-SHA256"))
}

func (h *WebhookHandler) handle(c *gin.Context, provider domain.Provider, signature string) {
	log := logger.Get()

	gw, ok := h.gateways[provider]
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "provider not configured", Code: "UNKNOWN_PROVIDER"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "failed to read request body", Code: "BAD_REQUEST"})
		return
	}

	metrics.RecordWebhookReceived(c.Request.Context(), string(provider))

	event, err := gw.VerifyWebhook(payload, signature)
	if err != nil {
		log.Warn("webhook signature verification failed",
			zap.String("provider", string(provider)), zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid signature", Code: "INVALID_SIGNATURE"})
		return
	}

	// A verified delivery is always acked. Processing failures are logged
	// and resolved out of band; re-sending the same event would be skipped
	// by dedup anyway.
	if err := h.reconcileService.ProcessEvent(c.Request.Context(), provider, event); err != nil {
		log.Error("webhook reconciliation failed",
			zap.String("provider", string(provider)),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, dto.WebhookAck{Received: true})
}
