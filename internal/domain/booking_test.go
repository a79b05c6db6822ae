package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingValidation(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		classID string
		eventID string
		total   float64
		disc    float64
		tax     float64
		wantErr error
	}{
		{"valid class booking", "user-1", "class-1", "", 25, 0, 0, nil},
		{"valid event booking", "user-1", "", "event-1", 40, 5, 2, nil},
		{"missing user", "", "class-1", "", 25, 0, 0, ErrInvalidUserID},
		{"both class and event", "user-1", "class-1", "event-1", 25, 0, 0, ErrExactlyOneItem},
		{"neither class nor event", "user-1", "", "", 25, 0, 0, ErrExactlyOneItem},
		{"negative discount", "user-1", "class-1", "", 25, -1, 0, ErrNegativeAdjustment},
		{"negative tax", "user-1", "class-1", "", 25, 0, -1, ErrNegativeAdjustment},
		{"zero total", "user-1", "class-1", "", 0, 0, 0, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBooking(tt.userID, tt.classID, tt.eventID, tt.total, tt.disc, tt.tax)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, BookingStatusPending, b.Status)
			assert.Equal(t, PaymentStatusPending, b.PaymentStatus)
			assert.NotEmpty(t, b.ID)
			assert.NotEmpty(t, b.ConfirmationCode)
		})
	}
}

func TestBookingFinalAmount(t *testing.T) {
	b, err := NewBooking("user-1", "class-1", "", 100, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, 97.0, b.FinalAmount())
}

func TestBookingConfirm(t *testing.T) {
	b, err := NewBooking("user-1", "class-1", "", 25, 0, 0)
	require.NoError(t, err)

	require.NoError(t, b.Confirm(25))
	assert.Equal(t, BookingStatusConfirmed, b.Status)
	assert.Equal(t, PaymentStatusSucceeded, b.PaymentStatus)
	assert.Equal(t, 25.0, b.AmountPaid)
	require.NotNil(t, b.ConfirmedAt)

	assert.ErrorIs(t, b.Confirm(25), ErrAlreadyConfirmed)

	require.NoError(t, b.Cancel(PaymentStatusRefundPending, "user requested"))
	assert.ErrorIs(t, b.Confirm(25), ErrInvalidBookingStatus)
}

func TestBookingCancel(t *testing.T) {
	b, err := NewBooking("user-1", "", "event-1", 40, 0, 0)
	require.NoError(t, err)

	require.NoError(t, b.Cancel(PaymentStatusCanceled, "changed my mind"))
	assert.Equal(t, BookingStatusCancelled, b.Status)
	assert.Equal(t, "changed my mind", b.CancellationReason)
	require.NotNil(t, b.CancelledAt)

	assert.ErrorIs(t, b.Cancel(PaymentStatusCanceled, "again"), ErrAlreadyCancelled)
}

func TestBookingItemAccessors(t *testing.T) {
	classBooking, err := NewBooking("user-1", "class-1", "", 25, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, BookingTypeClass, classBooking.ItemType())
	assert.Equal(t, "class-1", classBooking.ItemID())

	eventBooking, err := NewBooking("user-1", "", "event-1", 40, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, BookingTypeEvent, eventBooking.ItemType())
	assert.Equal(t, "event-1", eventBooking.ItemID())
}

func TestEffectiveStatusDerivesCompleted(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	b, err := NewBooking("user-1", "class-1", "", 25, 0, 0)
	require.NoError(t, err)

	// Pending bookings never complete, no matter the schedule.
	assert.Equal(t, BookingStatusPending, b.EffectiveStatus(now.Add(-time.Hour), now))

	require.NoError(t, b.Confirm(25))
	assert.Equal(t, BookingStatusConfirmed, b.EffectiveStatus(now.Add(time.Hour), now))
	assert.Equal(t, BookingStatusCompleted, b.EffectiveStatus(now.Add(-time.Hour), now))
	assert.Equal(t, BookingStatusConfirmed, b.EffectiveStatus(time.Time{}, now))

	// The stored status is never rewritten.
	assert.Equal(t, BookingStatusConfirmed, b.Status)
}

func TestBelongsToUser(t *testing.T) {
	b, err := NewBooking("user-1", "class-1", "", 25, 0, 0)
	require.NoError(t, err)
	assert.True(t, b.BelongsToUser("user-1"))
	assert.False(t, b.BelongsToUser("user-2"))
}
