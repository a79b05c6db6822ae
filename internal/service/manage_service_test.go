package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/repository"
)

// newManageService wires the manage service against the store with a frozen
// clock so policy windows are deterministic.
func newManageService(store *repository.MemoryStore, now time.Time) (ManageService, WaitlistService) {
	waitlist := NewWaitlistService(store.Waitlist(), store.Bookings(), store.Catalog(), nil, nil)
	svc := NewManageService(store.Bookings(), store.Catalog(), store.Refunds(), waitlist, nil, nil)
	svc.(*manageService).now = func() time.Time { return now }
	return svc, waitlist
}

// confirmedBooking creates a session and confirms it with a paid amount.
func confirmedBooking(t *testing.T, store *repository.MemoryStore, itemID, bookingType string, amountPaid float64) string {
	t.Helper()
	session := openSession(t, store, itemID, bookingType)
	require.NoError(t, store.Bookings().ConfirmAndReserveSeat(context.Background(), session.BookingID, amountPaid))
	return session.BookingID
}

// classStarting seeds a class whose start is offset from the given clock.
func classStarting(store *repository.MemoryStore, id string, start time.Time, price float64, maxStudents int) {
	store.AddClass(&domain.Class{
		ID:          id,
		Title:       "Test Class " + id,
		Price:       price,
		MaxStudents: maxStudents,
		IsActive:    true,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	})
}

func TestCancelConfirmedRefundPercents(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		hoursAhead  time.Duration
		wantPercent int
		wantRefund  float64
	}{
		{"full refund outside 24h", 30 * time.Hour, 100, 25},
		{"75 percent inside 24h", 18 * time.Hour, 75, 18.75},
		{"half refund inside 12h", 6 * time.Hour, 50, 12.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := testStore(t)
			classStarting(store, "class-window", now.Add(tt.hoursAhead), 25, 10)
			bookingID := confirmedBooking(t, store, "class-window", "class", 25)
			svc, _ := newManageService(store, now)

			resp, err := svc.Cancel(ctx, bookingID, &dto.CancelBookingRequest{UserID: "user-1"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPercent, resp.RefundPercent)
			assert.Equal(t, tt.wantRefund, resp.RefundAmount)

			booking, err := store.Bookings().GetByID(ctx, bookingID)
			require.NoError(t, err)
			assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
			assert.Equal(t, domain.PaymentStatusRefundPending, booking.PaymentStatus)

			// Seat released.
			class, err := store.Catalog().GetClass(ctx, "class-window")
			require.NoError(t, err)
			assert.Equal(t, 0, class.CurrentStudents)

			// Refund row written, settlement deferred.
			refunds, err := store.Refunds().GetByBookingID(ctx, bookingID)
			require.NoError(t, err)
			require.Len(t, refunds, 1)
			assert.Equal(t, tt.wantRefund, refunds[0].Amount)
			assert.Equal(t, domain.RefundStatusPending, refunds[0].Status)
		})
	}
}

func TestCancelConfirmedRefundDeclined(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-window", now.Add(48*time.Hour), 25, 10)
	bookingID := confirmedBooking(t, store, "class-window", "class", 25)
	svc, _ := newManageService(store, now)

	noRefund := false
	resp, err := svc.Cancel(ctx, bookingID, &dto.CancelBookingRequest{
		UserID:        "user-1",
		RequestRefund: &noRefund,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.RefundAmount)

	// Cancelled and seat released, but no refund row and no refund_pending.
	booking, err := store.Bookings().GetByID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
	assert.Equal(t, domain.PaymentStatusCanceled, booking.PaymentStatus)

	class, err := store.Catalog().GetClass(ctx, "class-window")
	require.NoError(t, err)
	assert.Equal(t, 0, class.CurrentStudents)

	refunds, err := store.Refunds().GetByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestCancelConfirmedWindowClosed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-soon", now.Add(time.Hour), 25, 10)
	bookingID := confirmedBooking(t, store, "class-soon", "class", 25)
	svc, _ := newManageService(store, now)

	_, err := svc.Cancel(ctx, bookingID, &dto.CancelBookingRequest{UserID: "user-1"})
	require.Error(t, err)

	var policyErr *domain.CancellationPolicyError
	require.True(t, errors.As(err, &policyErr))
	assert.False(t, policyErr.Policy.CanCancel)
	assert.True(t, errors.Is(err, domain.ErrCancellationWindowClosed))

	// Booking and seat untouched.
	booking, err := store.Bookings().GetByID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	class, err := store.Catalog().GetClass(ctx, "class-soon")
	require.NoError(t, err)
	assert.Equal(t, 1, class.CurrentStudents)
}

func TestCancelPendingSkipsPolicy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	// Starts in one hour: inside the no-cancel window for CONFIRMED bookings.
	classStarting(store, "class-soon", now.Add(time.Hour), 25, 10)
	session := openSession(t, store, "class-soon", "class")
	svc, _ := newManageService(store, now)

	resp, err := svc.Cancel(ctx, session.BookingID, &dto.CancelBookingRequest{UserID: "user-1", Reason: "changed plans"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.RefundAmount)

	booking, err := store.Bookings().GetByID(ctx, session.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
	assert.Equal(t, domain.PaymentStatusCanceled, booking.PaymentStatus)
	assert.Equal(t, "changed plans", booking.CancellationReason)

	// Nothing to refund: no row written.
	refunds, err := store.Refunds().GetByBookingID(ctx, session.BookingID)
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestCancelOwnershipAndState(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-window", now.Add(48*time.Hour), 25, 10)
	bookingID := confirmedBooking(t, store, "class-window", "class", 25)
	svc, _ := newManageService(store, now)

	_, err := svc.Cancel(ctx, bookingID, &dto.CancelBookingRequest{UserID: "user-2"})
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	_, err = svc.Cancel(ctx, bookingID, &dto.CancelBookingRequest{UserID: "user-1"})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, bookingID, &dto.CancelBookingRequest{UserID: "user-1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestCancelConfirmedPromotesWaitlist(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-full", now.Add(48*time.Hour), 25, 1)
	bookingID := confirmedBooking(t, store, "class-full", "class", 25)

	store.AddUser(&domain.User{ID: "user-2", Email: "waiting@example.com", FullName: "Sam Chen"})
	entry, err := domain.NewWaitlistEntry("user-2", "class-full", "", 0)
	require.NoError(t, err)
	require.NoError(t, store.Waitlist().Create(ctx, entry))

	svc, _ := newManageService(store, now)
	_, err = svc.Cancel(ctx, bookingID, &dto.CancelBookingRequest{UserID: "user-1"})
	require.NoError(t, err)

	// The freed seat produced a PENDING booking for the waiting user.
	promoted, err := store.Bookings().GetByUserID(ctx, "user-2", 10, 0)
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, domain.BookingStatusPending, promoted[0].Status)
	assert.Equal(t, domain.CreatedFromWaitlist, promoted[0].CreatedFrom)

	// No seat reserved until the promoted user pays.
	class, err := store.Catalog().GetClass(ctx, "class-full")
	require.NoError(t, err)
	assert.Equal(t, 0, class.CurrentStudents)
}

func TestRescheduleFree(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-old", now.Add(48*time.Hour), 25, 10)
	classStarting(store, "class-new", now.Add(72*time.Hour), 25, 10)
	bookingID := confirmedBooking(t, store, "class-old", "class", 25)
	svc, _ := newManageService(store, now)

	resp, err := svc.Reschedule(ctx, bookingID, &dto.RescheduleBookingRequest{UserID: "user-1", NewClassID: "class-new"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Fee)
	assert.Equal(t, 25.0, resp.NewTotalAmount)
	assert.Equal(t, 0.0, resp.PaymentRequired)
	assert.Equal(t, 0.0, resp.RefundAmount)

	booking, err := store.Bookings().GetByID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, "class-new", booking.ClassID)
	assert.Equal(t, "class-old", booking.RescheduledFromClassID)

	oldClass, _ := store.Catalog().GetClass(ctx, "class-old")
	newClass, _ := store.Catalog().GetClass(ctx, "class-new")
	assert.Equal(t, 0, oldClass.CurrentStudents)
	assert.Equal(t, 1, newClass.CurrentStudents)
}

func TestRescheduleInsideFeeWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-old", now.Add(6*time.Hour), 25, 10)
	classStarting(store, "class-new", now.Add(72*time.Hour), 25, 10)
	bookingID := confirmedBooking(t, store, "class-old", "class", 25)
	svc, _ := newManageService(store, now)

	resp, err := svc.Reschedule(ctx, bookingID, &dto.RescheduleBookingRequest{UserID: "user-1", NewClassID: "class-new"})
	require.NoError(t, err)
	assert.Equal(t, domain.RescheduleFee, resp.Fee)
	assert.Equal(t, 30.0, resp.NewTotalAmount)
	// Paid 25, now owes 30: the fee becomes a balance to settle.
	assert.Equal(t, 5.0, resp.PaymentRequired)
}

func TestRescheduleWindowClosed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-old", now.Add(2*time.Hour), 25, 10)
	classStarting(store, "class-new", now.Add(72*time.Hour), 25, 10)
	bookingID := confirmedBooking(t, store, "class-old", "class", 25)
	svc, _ := newManageService(store, now)

	_, err := svc.Reschedule(ctx, bookingID, &dto.RescheduleBookingRequest{UserID: "user-1", NewClassID: "class-new"})
	require.Error(t, err)

	var policyErr *domain.ReschedulePolicyError
	require.True(t, errors.As(err, &policyErr))
	assert.True(t, errors.Is(err, domain.ErrRescheduleWindowClosed))
}

func TestRescheduleToCheaperClassRefundsDelta(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-old", now.Add(48*time.Hour), 40, 10)
	classStarting(store, "class-cheap", now.Add(72*time.Hour), 25, 10)
	bookingID := confirmedBooking(t, store, "class-old", "class", 40)
	svc, _ := newManageService(store, now)

	resp, err := svc.Reschedule(ctx, bookingID, &dto.RescheduleBookingRequest{UserID: "user-1", NewClassID: "class-cheap"})
	require.NoError(t, err)
	assert.Equal(t, 15.0, resp.RefundAmount)
	assert.Equal(t, 0.0, resp.PaymentRequired)

	refunds, err := store.Refunds().GetByBookingID(ctx, bookingID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, 15.0, refunds[0].Amount)
}

func TestRescheduleRejectsNonClassAndSameClass(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-old", now.Add(48*time.Hour), 25, 10)
	svc, _ := newManageService(store, now)

	eventBooking := openSession(t, store, "event-1", "event")
	_, err := svc.Reschedule(ctx, eventBooking.BookingID, &dto.RescheduleBookingRequest{UserID: "user-1", NewClassID: "class-old"})
	assert.ErrorIs(t, err, domain.ErrNotClassBooking)

	classBooking := openSession(t, store, "class-old", "class")
	_, err = svc.Reschedule(ctx, classBooking.BookingID, &dto.RescheduleBookingRequest{UserID: "user-1", NewClassID: "class-old"})
	assert.ErrorIs(t, err, domain.ErrInvalidItemID)
}

func TestRescheduleIntoFullClass(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := testStore(t)
	classStarting(store, "class-old", now.Add(48*time.Hour), 25, 10)
	classStarting(store, "class-full", now.Add(72*time.Hour), 25, 1)
	takenID := confirmedBooking(t, store, "class-full", "class", 25)
	_ = takenID
	bookingID := confirmedBooking(t, store, "class-old", "class", 25)
	svc, _ := newManageService(store, now)

	_, err := svc.Reschedule(ctx, bookingID, &dto.RescheduleBookingRequest{UserID: "user-1", NewClassID: "class-full"})
	assert.ErrorIs(t, err, domain.ErrInsufficientSeats)

	// The old seat was not released.
	oldClass, _ := store.Catalog().GetClass(ctx, "class-old")
	assert.Equal(t, 1, oldClass.CurrentStudents)
}
