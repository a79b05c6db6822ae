package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatusPending is the only status the engine writes: refund settlement
// is an external process and rows never advance here.
const RefundStatusPending = "PENDING"

// Refund records a refund owed to a user after a cancellation or a cheaper
// reschedule. It does not mutate the booking's amountPaid.
type Refund struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRefund creates a PENDING refund request.
func NewRefund(bookingID, userID string, amount float64, reason string) (*Refund, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return &Refund{
		ID:          uuid.New().String(),
		BookingID:   bookingID,
		UserID:      userID,
		Amount:      amount,
		Status:      RefundStatusPending,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}, nil
}

// AuditLog records provider-side incidents (disputes) without mutating
// booking state.
type AuditLog struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	BookingID     string    `json:"booking_id,omitempty"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewAuditLog creates an audit entry for a provider incident.
func NewAuditLog(transactionID, bookingID, action, detail string) *AuditLog {
	return &AuditLog{
		ID:            uuid.New().String(),
		TransactionID: transactionID,
		BookingID:     bookingID,
		Action:        action,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
}
