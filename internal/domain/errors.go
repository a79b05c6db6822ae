package domain

import "errors"

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingAlreadyExists = errors.New("booking already exists")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrAlreadyConfirmed     = errors.New("booking already confirmed")
	ErrAlreadyCancelled     = errors.New("booking already cancelled")
	ErrNotClassBooking      = errors.New("booking is not a class booking")

	// Transaction errors
	ErrTransactionNotFound = errors.New("transaction not found")

	// Validation errors
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidBookingID   = errors.New("invalid booking id")
	ErrInvalidItemID      = errors.New("invalid item id")
	ErrInvalidBookingType = errors.New("invalid booking type")
	ErrInvalidAmount      = errors.New("total amount must be positive")
	ErrNegativeAdjustment = errors.New("discount and tax must not be negative")
	ErrExactlyOneItem     = errors.New("exactly one of class id and event id must be set")

	// Catalog errors
	ErrClassNotFound     = errors.New("class not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrItemUnavailable   = errors.New("item is not open for booking")
	ErrInsufficientSeats = errors.New("no seats available")

	// Policy errors
	ErrCancellationWindowClosed = errors.New("cancellation window has closed")
	ErrRescheduleWindowClosed   = errors.New("reschedule window has closed")

	// Waitlist errors
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrAlreadyOnWaitlist     = errors.New("user is already on the waitlist")

	// Provider errors
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrProviderFailure = errors.New("payment provider request failed")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrItemUnavailable) ||
		errors.Is(err, ErrWaitlistEntryNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidItemID) ||
		errors.Is(err, ErrInvalidBookingType) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNegativeAdjustment) ||
		errors.Is(err, ErrExactlyOneItem)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyConfirmed) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrBookingAlreadyExists) ||
		errors.Is(err, ErrInsufficientSeats) ||
		errors.Is(err, ErrAlreadyOnWaitlist)
}

// IsPolicyError checks if the error is a booking policy violation
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrCancellationWindowClosed) ||
		errors.Is(err, ErrRescheduleWindowClosed)
}
