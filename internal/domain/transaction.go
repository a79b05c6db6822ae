package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider identifies a payment provider (matches DB ENUM)
type Provider string

const (
	ProviderStripe Provider = "STRIPE"
	ProviderWise   Provider = "WISE"
)

// ParseProvider normalizes a request-supplied provider name. Empty input
// defaults to Stripe.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToUpper(s) {
	case "", "STRIPE":
		return ProviderStripe, nil
	case "WISE":
		return ProviderWise, nil
	default:
		return "", ErrUnknownProvider
	}
}

// TransactionStatus represents the state of one provider payment attempt
type TransactionStatus string

const (
	TransactionStatusCreated   TransactionStatus = "CREATED"
	TransactionStatusSucceeded TransactionStatus = "SUCCEEDED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// TransactionTypePayment is the only transaction type the engine records.
const TransactionTypePayment = "PAYMENT"

// Transaction is one record per payment-provider attempt tied to a booking.
// SessionID holds the Stripe Checkout Session id or the Wise transfer id;
// ProviderPaymentID holds the payment intent id once known.
type Transaction struct {
	ID                string            `json:"id"`
	BookingID         string            `json:"booking_id"`
	UserID            string            `json:"user_id"`
	Provider          Provider          `json:"provider"`
	SessionID         string            `json:"session_id,omitempty"`
	ProviderPaymentID string            `json:"provider_payment_id,omitempty"`
	Type              string            `json:"type"`
	Status            TransactionStatus `json:"status"`
	Amount            float64           `json:"amount"`
	Currency          string            `json:"currency"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	RawPayload        json.RawMessage   `json:"raw_payload,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewTransaction creates a CREATED transaction for a booking.
func NewTransaction(bookingID, userID string, provider Provider, amount float64, currency string) (*Transaction, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		UserID:    userID,
		Provider:  provider,
		Type:      TransactionTypePayment,
		Status:    TransactionStatusCreated,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Succeed marks the transaction as SUCCEEDED.
func (t *Transaction) Succeed(providerPaymentID string) error {
	if t.Status != TransactionStatusCreated {
		return ErrInvalidBookingStatus
	}
	t.Status = TransactionStatusSucceeded
	if providerPaymentID != "" {
		t.ProviderPaymentID = providerPaymentID
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail marks the transaction as FAILED with the provider's reason.
func (t *Transaction) Fail(reason string) error {
	if t.Status != TransactionStatusCreated {
		return ErrInvalidBookingStatus
	}
	t.Status = TransactionStatusFailed
	t.FailureReason = reason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel marks the transaction as CANCELLED.
func (t *Transaction) Cancel() error {
	if t.Status != TransactionStatusCreated {
		return ErrInvalidBookingStatus
	}
	t.Status = TransactionStatusCancelled
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// IsFinal returns true once no further provider callback can change the transaction.
func (t *Transaction) IsFinal() bool {
	return t.Status != TransactionStatusCreated
}
