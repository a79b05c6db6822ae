package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/service"
)

// WaitlistHandler handles waitlist HTTP endpoints
type WaitlistHandler struct {
	waitlistService service.WaitlistService
}

// NewWaitlistHandler creates a new WaitlistHandler
func NewWaitlistHandler(waitlistService service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{waitlistService: waitlistService}
}

// JoinWaitlist handles POST /api/waitlist
func (h *WaitlistHandler) JoinWaitlist(c *gin.Context) {
	var req dto.JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}
	if userID := c.GetString("user_id"); userID != "" {
		req.UserID = userID
	}
	if req.UserID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "user_id is required", Code: "UNAUTHORIZED"})
		return
	}

	resp, err := h.waitlistService.Join(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
