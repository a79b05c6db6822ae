package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking (matches DB ENUM)
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// String returns the string representation of the status
func (s BookingStatus) String() string {
	return string(s)
}

// BookingType distinguishes class bookings from event bookings
type BookingType string

const (
	BookingTypeClass BookingType = "class"
	BookingTypeEvent BookingType = "event"
)

// Payment status values carried on a booking. Kept as plain strings to match
// the values the payment providers and the front end exchange.
const (
	PaymentStatusPending       = "pending"
	PaymentStatusSucceeded     = "succeeded"
	PaymentStatusFailed        = "failed"
	PaymentStatusRefundPending = "refund_pending"
	PaymentStatusCanceled      = "canceled"
)

// CreatedFromWaitlist marks bookings created by waitlist promotion
const CreatedFromWaitlist = "WAITLIST"

// Booking represents one user's claim on one class or event.
// Exactly one of ClassID/EventID is set.
type Booking struct {
	ID                     string        `json:"id"`
	UserID                 string        `json:"user_id"`
	ClassID                string        `json:"class_id,omitempty"`
	EventID                string        `json:"event_id,omitempty"`
	Status                 BookingStatus `json:"status"`
	PaymentStatus          string        `json:"payment_status"`
	TotalAmount            float64       `json:"total_amount"`
	AmountPaid             float64       `json:"amount_paid"`
	DiscountAmount         float64       `json:"discount_amount"`
	TaxAmount              float64       `json:"tax_amount"`
	ConfirmationCode       string        `json:"confirmation_code"`
	PaymentMethod          string        `json:"payment_method,omitempty"`
	ProviderSessionID      string        `json:"provider_session_id,omitempty"`
	CancellationReason     string        `json:"cancellation_reason,omitempty"`
	CancelledAt            *time.Time    `json:"cancelled_at,omitempty"`
	ConfirmedAt            *time.Time    `json:"confirmed_at,omitempty"`
	RescheduledFromClassID string        `json:"rescheduled_from_class_id,omitempty"`
	CreatedFrom            string        `json:"created_from,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// NewBooking creates a new PENDING booking for a class or an event.
func NewBooking(userID, classID, eventID string, total, discount, tax float64) (*Booking, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if (classID == "") == (eventID == "") {
		return nil, ErrExactlyOneItem
	}
	if discount < 0 || tax < 0 {
		return nil, ErrNegativeAdjustment
	}
	if total <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Booking{
		ID:               uuid.New().String(),
		UserID:           userID,
		ClassID:          classID,
		EventID:          eventID,
		Status:           BookingStatusPending,
		PaymentStatus:    PaymentStatusPending,
		TotalAmount:      total,
		DiscountAmount:   discount,
		TaxAmount:        tax,
		ConfirmationCode: NewConfirmationCode(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// ItemID returns the class or event id the booking points at.
func (b *Booking) ItemID() string {
	if b.ClassID != "" {
		return b.ClassID
	}
	return b.EventID
}

// ItemType returns the booking type derived from which id is set.
func (b *Booking) ItemType() BookingType {
	if b.ClassID != "" {
		return BookingTypeClass
	}
	return BookingTypeEvent
}

// FinalAmount returns the amount actually owed for the booking.
func (b *Booking) FinalAmount() float64 {
	return b.TotalAmount - b.DiscountAmount + b.TaxAmount
}

// Confirm moves the booking to CONFIRMED after a verified payment.
func (b *Booking) Confirm(amountPaid float64) error {
	if b.Status == BookingStatusConfirmed {
		return ErrAlreadyConfirmed
	}
	if b.Status != BookingStatusPending {
		return ErrInvalidBookingStatus
	}
	now := time.Now().UTC()
	b.Status = BookingStatusConfirmed
	b.PaymentStatus = PaymentStatusSucceeded
	b.AmountPaid = amountPaid
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// Cancel moves the booking to CANCELLED with the given payment status.
func (b *Booking) Cancel(paymentStatus, reason string) error {
	if b.Status == BookingStatusCancelled {
		return ErrAlreadyCancelled
	}
	if b.Status != BookingStatusPending && b.Status != BookingStatusConfirmed {
		return ErrInvalidBookingStatus
	}
	now := time.Now().UTC()
	b.Status = BookingStatusCancelled
	b.PaymentStatus = paymentStatus
	b.CancellationReason = reason
	b.CancelledAt = &now
	b.UpdatedAt = now
	return nil
}

// IsConfirmed returns true if the booking holds a reserved seat.
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// IsCancelled returns true if the booking has been cancelled.
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// BelongsToUser checks booking ownership.
func (b *Booking) BelongsToUser(userID string) bool {
	return b.UserID == userID
}

// EffectiveStatus derives COMPLETED at read time for confirmed class bookings
// whose class has ended. COMPLETED is never stored.
func (b *Booking) EffectiveStatus(itemEnd time.Time, now time.Time) BookingStatus {
	if b.Status == BookingStatusConfirmed && !itemEnd.IsZero() && itemEnd.Before(now) {
		return BookingStatusCompleted
	}
	return b.Status
}
