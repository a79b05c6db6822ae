package domain

import "time"

// BookingEventType classifies booking lifecycle events
type BookingEventType string

const (
	BookingEventCreated          BookingEventType = "booking.created"
	BookingEventConfirmed        BookingEventType = "booking.confirmed"
	BookingEventCancelled        BookingEventType = "booking.cancelled"
	BookingEventRescheduled      BookingEventType = "booking.rescheduled"
	BookingEventExpired          BookingEventType = "booking.expired"
	BookingEventWaitlistPromoted BookingEventType = "booking.waitlist_promoted"
)

// BookingEvent is the message published on booking lifecycle transitions
type BookingEvent struct {
	EventID       string           `json:"event_id"`
	EventType     BookingEventType `json:"event_type"`
	BookingID     string           `json:"booking_id"`
	UserID        string           `json:"user_id"`
	ClassID       string           `json:"class_id,omitempty"`
	EventRefID    string           `json:"event_ref_id,omitempty"`
	Status        string           `json:"status"`
	PaymentStatus string           `json:"payment_status"`
	TotalAmount   float64          `json:"total_amount"`
	AmountPaid    float64          `json:"amount_paid"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewBookingEvent builds a lifecycle event from a booking snapshot
func NewBookingEvent(eventType BookingEventType, booking *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:       eventID,
		EventType:     eventType,
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		ClassID:       booking.ClassID,
		EventRefID:    booking.EventID,
		Status:        booking.Status.String(),
		PaymentStatus: booking.PaymentStatus,
		TotalAmount:   booking.TotalAmount,
		AmountPaid:    booking.AmountPaid,
		OccurredAt:    time.Now().UTC(),
	}
}

// Key returns the partition key: events for one booking stay ordered
func (e *BookingEvent) Key() string {
	return e.BookingID
}
