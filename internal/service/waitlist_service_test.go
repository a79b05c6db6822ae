package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/repository"
)

func newWaitlistService(store *repository.MemoryStore) WaitlistService {
	return NewWaitlistService(store.Waitlist(), store.Bookings(), store.Catalog(), nil, nil)
}

func TestJoinWaitlist(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newWaitlistService(store)

	first, err := svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-1",
		ItemID:      "class-1",
		BookingType: "class",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, string(domain.WaitlistStatusActive), first.Status)

	store.AddUser(&domain.User{ID: "user-2", Email: "second@example.com", FullName: "Sam Chen"})
	second, err := svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-2",
		ItemID:      "class-1",
		BookingType: "class",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)
}

func TestJoinWaitlistValidation(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newWaitlistService(store)

	_, err := svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-1",
		ItemID:      "class-1",
		BookingType: "workshop",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBookingType)

	_, err = svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-1",
		ItemID:      "class-404",
		BookingType: "class",
	})
	assert.ErrorIs(t, err, domain.ErrClassNotFound)

	_, err = svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-1",
		ItemID:      "class-1",
		BookingType: "class",
	})
	require.NoError(t, err)
	_, err = svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-1",
		ItemID:      "class-1",
		BookingType: "class",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyOnWaitlist)
}

func TestPromoteNextEmptyWaitlist(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newWaitlistService(store)

	booking, err := svc.PromoteNext(ctx, domain.BookingTypeClass, "class-1")
	require.NoError(t, err)
	assert.Nil(t, booking)
}

func TestPromoteNextOrdering(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	store.AddUser(&domain.User{ID: "user-2", Email: "second@example.com", FullName: "Sam Chen"})
	store.AddUser(&domain.User{ID: "user-3", Email: "vip@example.com", FullName: "Dana Lee"})
	svc := newWaitlistService(store)

	for _, join := range []struct {
		userID   string
		priority int
	}{
		{"user-1", 0},
		{"user-2", 0},
		{"user-3", 1},
	} {
		_, err := svc.Join(ctx, &dto.JoinWaitlistRequest{
			UserID:      join.userID,
			ItemID:      "class-1",
			BookingType: "class",
			Priority:    join.priority,
		})
		require.NoError(t, err)
	}

	// Highest priority first, then earliest position.
	expected := []string{"user-3", "user-1", "user-2"}
	for _, wantUser := range expected {
		booking, err := svc.PromoteNext(ctx, domain.BookingTypeClass, "class-1")
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, wantUser, booking.UserID)
		assert.Equal(t, domain.BookingStatusPending, booking.Status)
		assert.Equal(t, domain.CreatedFromWaitlist, booking.CreatedFrom)
		assert.Equal(t, 25.0, booking.TotalAmount)
	}

	// Everyone promoted; the list is drained.
	booking, err := svc.PromoteNext(ctx, domain.BookingTypeClass, "class-1")
	require.NoError(t, err)
	assert.Nil(t, booking)
}

func TestPromoteNextDoesNotReserveSeat(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newWaitlistService(store)

	_, err := svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-1",
		ItemID:      "class-1",
		BookingType: "class",
	})
	require.NoError(t, err)

	booking, err := svc.PromoteNext(ctx, domain.BookingTypeClass, "class-1")
	require.NoError(t, err)
	require.NotNil(t, booking)

	// Promotion only invites payment; capacity moves on confirmation.
	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 0, class.CurrentStudents)
}

func TestPromoteNextEventWaitlist(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newWaitlistService(store)

	_, err := svc.Join(ctx, &dto.JoinWaitlistRequest{
		UserID:      "user-1",
		ItemID:      "event-1",
		BookingType: "event",
	})
	require.NoError(t, err)

	booking, err := svc.PromoteNext(ctx, domain.BookingTypeEvent, "event-1")
	require.NoError(t, err)
	require.NotNil(t, booking)
	assert.Equal(t, "event-1", booking.EventID)
	assert.Equal(t, 40.0, booking.TotalAmount)
}
