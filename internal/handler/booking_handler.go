package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/service"
)

// BookingHandler handles booking read and management HTTP endpoints
type BookingHandler struct {
	checkoutService service.CheckoutService
	manageService   service.ManageService
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(checkoutService service.CheckoutService, manageService service.ManageService) *BookingHandler {
	return &BookingHandler{
		checkoutService: checkoutService,
		manageService:   manageService,
	}
}

// GetBooking handles GET /api/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID := c.Param("id")
	userID := requestUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "user_id is required", Code: "UNAUTHORIZED"})
		return
	}

	booking, err := h.checkoutService.GetBooking(c.Request.Context(), bookingID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GetUserBookings handles GET /api/bookings/user
func (h *BookingHandler) GetUserBookings(c *gin.Context) {
	userID := requestUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "user_id is required", Code: "UNAUTHORIZED"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	bookings, err := h.checkoutService.GetUserBookings(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// CancelBooking handles DELETE /api/bookings/manage/:id
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID := c.Param("id")

	var req dto.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}
	if userID := c.GetString("user_id"); userID != "" {
		req.UserID = userID
	}

	resp, err := h.manageService.Cancel(c.Request.Context(), bookingID, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RescheduleBooking handles PATCH /api/bookings/manage/:id
func (h *BookingHandler) RescheduleBooking(c *gin.Context) {
	bookingID := c.Param("id")

	var req dto.RescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}
	if userID := c.GetString("user_id"); userID != "" {
		req.UserID = userID
	}

	resp, err := h.manageService.Reschedule(c.Request.Context(), bookingID, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// requestUserID resolves the acting user: auth context first, query fallback
func requestUserID(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return userID
	}
	return c.Query("user_id")
}
