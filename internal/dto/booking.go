package dto

import (
	"time"

	"github.com/insominiac/dancemvp-backend/internal/domain"
)

// CreateSessionRequest represents a request to create a payment session.
// CustomAmount replaces the catalog price when set; success/cancel URLs
// override the configured provider redirect targets.
type CreateSessionRequest struct {
	ItemID         string   `json:"item_id" binding:"required"`
	UserID         string   `json:"user_id" binding:"required"`
	BookingType    string   `json:"booking_type" binding:"required,oneof=class event"`
	PaymentMethod  string   `json:"payment_method"`
	Provider       string   `json:"provider"`
	CustomAmount   *float64 `json:"custom_amount,omitempty"`
	DiscountAmount float64  `json:"discount_amount"`
	TaxAmount      float64  `json:"tax_amount"`
	Currency       string   `json:"currency"`
	SuccessURL     string   `json:"success_url,omitempty"`
	CancelURL      string   `json:"cancel_url,omitempty"`
}

// CreateSessionResponse represents the created payment session
type CreateSessionResponse struct {
	BookingID        string  `json:"booking_id"`
	TransactionID    string  `json:"transaction_id"`
	SessionID        string  `json:"session_id"`
	CheckoutURL      string  `json:"checkout_url,omitempty"`
	ConfirmationCode string  `json:"confirmation_code"`
	TotalAmount      float64 `json:"total_amount"`
	Provider         string  `json:"provider"`
	ExpiresAt        string  `json:"expires_at"`
}

// CancelBookingRequest represents a cancellation request. RequestRefund
// defaults to true when omitted; setting it false cancels without creating
// a refund row.
type CancelBookingRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	Reason        string `json:"reason,omitempty"`
	RequestRefund *bool  `json:"request_refund,omitempty"`
}

// CancelBookingResponse represents the result of a cancellation
type CancelBookingResponse struct {
	BookingID     string  `json:"booking_id"`
	Status        string  `json:"status"`
	RefundAmount  float64 `json:"refund_amount"`
	RefundPercent int     `json:"refund_percent"`
}

// RescheduleBookingRequest represents a reschedule request
type RescheduleBookingRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	NewClassID string `json:"new_class_id" binding:"required"`
}

// RescheduleBookingResponse represents the result of a reschedule
type RescheduleBookingResponse struct {
	BookingID       string  `json:"booking_id"`
	NewClassID      string  `json:"new_class_id"`
	OldClassID      string  `json:"old_class_id"`
	NewTotalAmount  float64 `json:"new_total_amount"`
	Fee             float64 `json:"fee"`
	PaymentRequired float64 `json:"payment_required,omitempty"`
	RefundAmount    float64 `json:"refund_amount,omitempty"`
}

// JoinWaitlistRequest represents a request to join an item's waitlist
type JoinWaitlistRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	ItemID      string `json:"item_id" binding:"required"`
	BookingType string `json:"booking_type" binding:"required,oneof=class event"`
	Priority    int    `json:"priority"`
}

// JoinWaitlistResponse represents the waitlist entry created
type JoinWaitlistResponse struct {
	EntryID  string `json:"entry_id"`
	Position int    `json:"position"`
	Status   string `json:"status"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	ClassID            string     `json:"class_id,omitempty"`
	EventID            string     `json:"event_id,omitempty"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	TotalAmount        float64    `json:"total_amount"`
	AmountPaid         float64    `json:"amount_paid"`
	DiscountAmount     float64    `json:"discount_amount,omitempty"`
	TaxAmount          float64    `json:"tax_amount,omitempty"`
	ConfirmationCode   string     `json:"confirmation_code"`
	PaymentMethod      string     `json:"payment_method,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CreatedFrom        string     `json:"created_from,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// FromBooking converts a domain Booking to BookingResponse. The status is
// the effective one: CONFIRMED bookings whose class already ended read as
// COMPLETED.
func FromBooking(b *domain.Booking, itemEnd time.Time, now time.Time) *BookingResponse {
	return &BookingResponse{
		ID:                 b.ID,
		UserID:             b.UserID,
		ClassID:            b.ClassID,
		EventID:            b.EventID,
		Status:             b.EffectiveStatus(itemEnd, now).String(),
		PaymentStatus:      b.PaymentStatus,
		TotalAmount:        b.TotalAmount,
		AmountPaid:         b.AmountPaid,
		DiscountAmount:     b.DiscountAmount,
		TaxAmount:          b.TaxAmount,
		ConfirmationCode:   b.ConfirmationCode,
		PaymentMethod:      b.PaymentMethod,
		CancellationReason: b.CancellationReason,
		CancelledAt:        b.CancelledAt,
		ConfirmedAt:        b.ConfirmedAt,
		CreatedFrom:        b.CreatedFrom,
		CreatedAt:          b.CreatedAt,
	}
}

// BookingListResponse represents a list of bookings
type BookingListResponse struct {
	Bookings []*BookingResponse `json:"bookings"`
	Total    int                `json:"total"`
}

// WebhookAck is the body returned after a webhook is accepted
type WebhookAck struct {
	Received bool `json:"received"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
