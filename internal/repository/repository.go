package repository

import (
	"context"
	"time"

	"github.com/insominiac/dancemvp-backend/internal/domain"
)

// BookingRepository persists bookings and owns the paired booking-status /
// capacity-counter transitions. Confirm, cancel and reschedule are atomic:
// either both the status row and the counter move, or neither does.
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Booking, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
	Delete(ctx context.Context, id string) error

	// ConfirmAndReserveSeat moves a PENDING booking to CONFIRMED and
	// increments the item's capacity counter in one atomic step. Returns
	// domain.ErrAlreadyConfirmed when the booking already left PENDING and
	// domain.ErrInsufficientSeats when the item is full.
	ConfirmAndReserveSeat(ctx context.Context, id string, amountPaid float64) error

	// CancelPending cancels a booking that never held a seat. No counter change.
	CancelPending(ctx context.Context, id, paymentStatus, reason string) error

	// CancelConfirmedAndReleaseSeat cancels a CONFIRMED booking and decrements
	// the item's capacity counter in one atomic step.
	CancelConfirmedAndReleaseSeat(ctx context.Context, id, paymentStatus, reason string) error

	// Reschedule atomically moves a class booking to a new class: decrements
	// the old class counter and increments the new one (only while the booking
	// is CONFIRMED), and rewrites classID/totalAmount/rescheduledFromClassID.
	// Returns domain.ErrInsufficientSeats when the target class is full.
	Reschedule(ctx context.Context, id, newClassID string, newTotal float64) error

	// GetExpiredPending returns PENDING bookings created before the cutoff,
	// for the payment-session reaper.
	GetExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)
}

// TransactionRepository persists payment-provider attempts.
type TransactionRepository interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByBookingID(ctx context.Context, bookingID string) ([]*domain.Transaction, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Transaction, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Transaction, error)
	Update(ctx context.Context, txn *domain.Transaction) error
	Delete(ctx context.Context, id string) error
}

// CatalogRepository reads the class/event records the engine books against.
// The engine only mutates their capacity counters, and only through
// BookingRepository's atomic transitions.
type CatalogRepository interface {
	GetClass(ctx context.Context, id string) (*domain.Class, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// WaitlistRepository persists waitlist entries.
type WaitlistRepository interface {
	// Create assigns position = max position for the item + 1.
	Create(ctx context.Context, entry *domain.WaitlistEntry) error

	// NextActive returns the next ACTIVE entry by priority descending then
	// position ascending, or domain.ErrWaitlistEntryNotFound.
	NextActive(ctx context.Context, itemType domain.BookingType, itemID string) (*domain.WaitlistEntry, error)

	// MarkConverted flips an ACTIVE entry to CONVERTED. Returns false without
	// error when the entry was already converted by a concurrent promotion.
	MarkConverted(ctx context.Context, id string) (bool, error)
}

// RefundRepository persists refund requests; settlement is external.
type RefundRepository interface {
	Create(ctx context.Context, refund *domain.Refund) error
	GetByBookingID(ctx context.Context, bookingID string) ([]*domain.Refund, error)
}

// AuditLogRepository persists provider incident records.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// WebhookEventRepository deduplicates provider webhook deliveries.
type WebhookEventRepository interface {
	// MarkProcessed records a provider event id. Returns false when the event
	// was already recorded, so duplicate deliveries short-circuit before any
	// state mutation.
	MarkProcessed(ctx context.Context, provider domain.Provider, eventID string) (bool, error)
}
