package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/service"
)

// CheckoutHandler handles payment session HTTP endpoints
type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

// CreateSession handles POST /api/payments/create-session
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}

	// Authenticated identity wins over the body when present.
	if userID := c.GetString("user_id"); userID != "" {
		req.UserID = userID
	}
	if req.UserID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "user_id is required", Code: "UNAUTHORIZED"})
		return
	}

	resp, err := h.checkoutService.CreateSession(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
