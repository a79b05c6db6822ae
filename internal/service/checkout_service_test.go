package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/gateway"
	"github.com/insominiac/dancemvp-backend/internal/repository"
)

func newCheckoutService(store *repository.MemoryStore, gateways map[domain.Provider]gateway.PaymentGateway) CheckoutService {
	return NewCheckoutService(
		store.Bookings(),
		store.Transactions(),
		store.Catalog(),
		gateways,
		nil,
		&CheckoutServiceConfig{SessionTTL: 30 * time.Minute, DefaultCurrency: "USD"},
	)
}

func mockGateways() map[domain.Provider]gateway.PaymentGateway {
	return map[domain.Provider]gateway.PaymentGateway{
		domain.ProviderStripe: gateway.NewMockGateway(nil),
	}
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newCheckoutService(store, mockGateways())

	resp, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:      "class-1",
		UserID:      "user-1",
		BookingType: "class",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.BookingID)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.CheckoutURL)
	assert.NotEmpty(t, resp.ConfirmationCode)
	assert.Equal(t, 25.0, resp.TotalAmount)
	assert.Equal(t, string(domain.ProviderStripe), resp.Provider)

	booking, err := store.Bookings().GetByID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, booking.Status)
	assert.Equal(t, resp.SessionID, booking.ProviderSessionID)

	txn, err := store.Transactions().GetBySessionID(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, resp.BookingID, txn.BookingID)
	assert.Equal(t, domain.TransactionStatusCreated, txn.Status)

	// No seat is held before payment confirms.
	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 0, class.CurrentStudents)
}

func TestCreateSessionWithAdjustments(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newCheckoutService(store, mockGateways())

	resp, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:         "event-1",
		UserID:         "user-1",
		BookingType:    "event",
		DiscountAmount: 5,
		TaxAmount:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, 38.0, resp.TotalAmount)
}

// recordingGateway wraps the mock and captures the session request it saw
type recordingGateway struct {
	gateway.PaymentGateway
	lastReq *gateway.SessionRequest
}

func (g *recordingGateway) CreateSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.SessionResponse, error) {
	g.lastReq = req
	return g.PaymentGateway.CreateSession(ctx, req)
}

func TestCreateSessionCustomAmount(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	rec := &recordingGateway{PaymentGateway: gateway.NewMockGateway(nil)}
	svc := newCheckoutService(store, map[domain.Provider]gateway.PaymentGateway{
		domain.ProviderStripe: rec,
	})

	custom := 60.0
	resp, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:         "class-1",
		UserID:         "user-1",
		BookingType:    "class",
		CustomAmount:   &custom,
		DiscountAmount: 5,
		TaxAmount:      3,
		SuccessURL:     "https://studio.example/ok",
		CancelURL:      "https://studio.example/no",
	})
	require.NoError(t, err)

	// The custom price replaces the catalog price entirely.
	assert.Equal(t, 58.0, resp.TotalAmount)
	require.NotNil(t, rec.lastReq)
	assert.Equal(t, 60.0, rec.lastReq.BaseAmount)
	assert.Equal(t, "https://studio.example/ok", rec.lastReq.SuccessURL)
	assert.Equal(t, "https://studio.example/no", rec.lastReq.CancelURL)
}

func TestCreateSessionCustomAmountMustBePositive(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newCheckoutService(store, mockGateways())

	zero := 0.0
	_, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:       "class-1",
		UserID:       "user-1",
		BookingType:  "class",
		CustomAmount: &zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newCheckoutService(store, mockGateways())

	tests := []struct {
		name    string
		req     *dto.CreateSessionRequest
		wantErr error
	}{
		{"missing item", &dto.CreateSessionRequest{UserID: "user-1", BookingType: "class"}, domain.ErrInvalidItemID},
		{"missing user", &dto.CreateSessionRequest{ItemID: "class-1", BookingType: "class"}, domain.ErrInvalidUserID},
		{"bad booking type", &dto.CreateSessionRequest{ItemID: "class-1", UserID: "user-1", BookingType: "workshop"}, domain.ErrInvalidBookingType},
		{"bad provider", &dto.CreateSessionRequest{ItemID: "class-1", UserID: "user-1", BookingType: "class", Provider: "paypal"}, domain.ErrUnknownProvider},
		{"unconfigured provider", &dto.CreateSessionRequest{ItemID: "class-1", UserID: "user-1", BookingType: "class", Provider: "wise"}, domain.ErrUnknownProvider},
		{"missing class", &dto.CreateSessionRequest{ItemID: "class-404", UserID: "user-1", BookingType: "class"}, domain.ErrClassNotFound},
		{"missing user record", &dto.CreateSessionRequest{ItemID: "class-1", UserID: "user-404", BookingType: "class"}, domain.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSession(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateSessionUnavailableItem(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	store.AddClass(&domain.Class{
		ID:          "class-inactive",
		Title:       "Retired Class",
		Price:       25,
		MaxStudents: 10,
		IsActive:    false,
		StartTime:   time.Now().Add(72 * time.Hour),
	})
	svc := newCheckoutService(store, mockGateways())

	_, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:      "class-inactive",
		UserID:      "user-1",
		BookingType: "class",
	})
	assert.ErrorIs(t, err, domain.ErrItemUnavailable)
}

func TestCreateSessionProviderFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	gateways := map[domain.Provider]gateway.PaymentGateway{
		domain.ProviderStripe: gateway.NewMockGateway(&gateway.MockGatewayConfig{FailRate: 1}),
	}
	svc := newCheckoutService(store, gateways)

	_, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:      "class-1",
		UserID:      "user-1",
		BookingType: "class",
	})
	assert.ErrorIs(t, err, domain.ErrProviderFailure)

	// The PENDING booking created for the failed session must not survive.
	bookings, err := store.Bookings().GetByUserID(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestGetBookingOwnership(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newCheckoutService(store, mockGateways())

	resp, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:      "class-1",
		UserID:      "user-1",
		BookingType: "class",
	})
	require.NoError(t, err)

	got, err := svc.GetBooking(ctx, resp.BookingID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, resp.BookingID, got.ID)
	assert.Equal(t, domain.BookingStatusPending.String(), got.Status)

	_, err = svc.GetBooking(ctx, resp.BookingID, "user-2")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestGetUserBookingsDerivesCompleted(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	store.AddClass(&domain.Class{
		ID:          "class-past",
		Title:       "Last Week's Class",
		Price:       25,
		MaxStudents: 10,
		IsActive:    true,
		StartTime:   time.Now().Add(-48 * time.Hour),
		EndTime:     time.Now().Add(-47 * time.Hour),
	})
	svc := newCheckoutService(store, mockGateways())

	resp, err := svc.CreateSession(ctx, &dto.CreateSessionRequest{
		ItemID:      "class-past",
		UserID:      "user-1",
		BookingType: "class",
	})
	require.NoError(t, err)
	require.NoError(t, store.Bookings().ConfirmAndReserveSeat(ctx, resp.BookingID, 25))

	list, err := svc.GetUserBookings(ctx, "user-1", 1, 20)
	require.NoError(t, err)
	require.Len(t, list.Bookings, 1)
	assert.Equal(t, domain.BookingStatusCompleted.String(), list.Bookings[0].Status)

	// The stored row still says CONFIRMED.
	stored, err := store.Bookings().GetByID(ctx, resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, stored.Status)
}
