package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/repository"
)

func reaperStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddClass(&domain.Class{
		ID:          "class-1",
		Title:       "Salsa Beginners",
		Price:       25,
		MaxStudents: 10,
		IsActive:    true,
		StartTime:   time.Now().Add(72 * time.Hour),
	})
	return store
}

// staleBooking creates a PENDING booking aged past the session TTL, with its
// provider session and transaction attached.
func staleBooking(t *testing.T, store *repository.MemoryStore, userID string, age time.Duration) (*domain.Booking, *domain.Transaction) {
	t.Helper()
	ctx := context.Background()

	booking, err := domain.NewBooking(userID, "class-1", "", 25, 0, 0)
	require.NoError(t, err)
	booking.ProviderSessionID = "sess_" + booking.ID[:8]
	booking.CreatedAt = time.Now().Add(-age)
	require.NoError(t, store.Bookings().Create(ctx, booking))

	txn, err := domain.NewTransaction(booking.ID, userID, domain.ProviderStripe, 25, "USD")
	require.NoError(t, err)
	txn.SessionID = booking.ProviderSessionID
	require.NoError(t, store.Transactions().Create(ctx, txn))
	return booking, txn
}

func TestReapOnceExpiresStalePending(t *testing.T) {
	ctx := context.Background()
	store := reaperStore(t)
	stale, txn := staleBooking(t, store, "user-1", time.Hour)
	fresh, _ := staleBooking(t, store, "user-2", time.Minute)

	reaper := NewReaper(store.Bookings(), store.Transactions(), nil, &ReaperConfig{
		ScanInterval: time.Minute,
		SessionTTL:   30 * time.Minute,
		BatchSize:    100,
	})

	reaped := reaper.ReapOnce(ctx)
	assert.Equal(t, 1, reaped)

	got, err := store.Bookings().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	assert.Equal(t, domain.PaymentStatusCanceled, got.PaymentStatus)
	assert.Equal(t, "payment session expired", got.CancellationReason)

	// The provider attempt is settled with it.
	gotTxn, err := store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCancelled, gotTxn.Status)

	// Bookings inside the TTL are untouched.
	got, err = store.Bookings().GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, got.Status)
}

func TestReapOnceSkipsConfirmed(t *testing.T) {
	ctx := context.Background()
	store := reaperStore(t)
	stale, _ := staleBooking(t, store, "user-1", time.Hour)
	require.NoError(t, store.Bookings().ConfirmAndReserveSeat(ctx, stale.ID, 25))

	reaper := NewReaper(store.Bookings(), store.Transactions(), nil, nil)
	assert.Equal(t, 0, reaper.ReapOnce(ctx))

	got, err := store.Bookings().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)

	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 1, class.CurrentStudents)
}

func TestReapOnceToleratesRaces(t *testing.T) {
	ctx := context.Background()
	store := reaperStore(t)
	stale, _ := staleBooking(t, store, "user-1", time.Hour)

	reaper := NewReaper(store.Bookings(), store.Transactions(), nil, nil)

	// A webhook cancels the booking between the scan and the conditional
	// cancel. The reaper treats it as already settled.
	first := reaper.ReapOnce(ctx)
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, reaper.ReapOnce(ctx))

	got, err := store.Bookings().GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
}

func TestReapOnceHonorsBatchSize(t *testing.T) {
	ctx := context.Background()
	store := reaperStore(t)
	for i := 0; i < 5; i++ {
		staleBooking(t, store, "user-"+string(rune('a'+i)), time.Hour)
	}

	reaper := NewReaper(store.Bookings(), store.Transactions(), nil, &ReaperConfig{
		ScanInterval: time.Minute,
		SessionTTL:   30 * time.Minute,
		BatchSize:    2,
	})

	assert.Equal(t, 2, reaper.ReapOnce(ctx))
	assert.Equal(t, 2, reaper.ReapOnce(ctx))
	assert.Equal(t, 1, reaper.ReapOnce(ctx))

	stats := reaper.Stats()
	assert.Equal(t, int64(5), stats.TotalExpired)
}

func TestReaperStartStop(t *testing.T) {
	store := reaperStore(t)
	reaper := NewReaper(store.Bookings(), store.Transactions(), nil, &ReaperConfig{
		ScanInterval: 10 * time.Millisecond,
		SessionTTL:   30 * time.Minute,
		BatchSize:    100,
	})

	require.NoError(t, reaper.Start(context.Background()))
	assert.Error(t, reaper.Start(context.Background()))
	assert.True(t, reaper.Stats().IsRunning)

	reaper.Stop()
	assert.False(t, reaper.Stats().IsRunning)
}
