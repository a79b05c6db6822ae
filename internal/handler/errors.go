package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
)

// handleError maps domain errors to HTTP responses. Policy rejections carry
// their window details so clients can render why the request was refused.
func handleError(c *gin.Context, err error) {
	var cancelErr *domain.CancellationPolicyError
	if errors.As(err, &cancelErr) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "CANCELLATION_WINDOW_CLOSED",
			Details: cancelErr.Policy,
		})
		return
	}
	var reschedErr *domain.ReschedulePolicyError
	if errors.As(err, &reschedErr) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "RESCHEDULE_WINDOW_CLOSED",
			Details: reschedErr.Policy,
		})
		return
	}

	switch {
	case domain.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, domain.ErrInsufficientSeats):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "CLASS_FULL"})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
	case domain.IsConflictError(err):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Code: "CONFLICT"})
	case errors.Is(err, domain.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "UNKNOWN_PROVIDER"})
	case errors.Is(err, domain.ErrProviderFailure):
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error(), Code: "PROVIDER_FAILURE"})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error", Code: "INTERNAL"})
	}
}
