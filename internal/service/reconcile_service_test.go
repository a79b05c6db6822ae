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

func newReconcileService(store *repository.MemoryStore) ReconcileService {
	return NewReconcileService(
		store.Bookings(),
		store.Transactions(),
		store.Catalog(),
		store.AuditLogs(),
		store.WebhookEvents(),
		nil,
		nil,
	)
}

// openSession creates a PENDING booking with a provider session attached.
func openSession(t *testing.T, store *repository.MemoryStore, itemID, bookingType string) *dto.CreateSessionResponse {
	t.Helper()
	svc := newCheckoutService(store, mockGateways())
	resp, err := svc.CreateSession(context.Background(), &dto.CreateSessionRequest{
		ItemID:      itemID,
		UserID:      "user-1",
		BookingType: bookingType,
	})
	require.NoError(t, err)
	return resp
}

func TestProcessCheckoutCompleted(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	session := openSession(t, store, "class-1", "class")
	svc := newReconcileService(store)

	err := svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:          "evt_1",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   session.SessionID,
		PaymentID:   "pi_1",
		AmountTotal: 25,
	})
	require.NoError(t, err)

	booking, err := store.Bookings().GetByID(ctx, session.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, domain.PaymentStatusSucceeded, booking.PaymentStatus)
	assert.Equal(t, 25.0, booking.AmountPaid)

	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 1, class.CurrentStudents)

	txn, err := store.Transactions().GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSucceeded, txn.Status)
	assert.Equal(t, "pi_1", txn.ProviderPaymentID)
}

func TestProcessDuplicateEventID(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	session := openSession(t, store, "class-1", "class")
	svc := newReconcileService(store)

	event := &gateway.WebhookEvent{
		ID:          "evt_1",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   session.SessionID,
		AmountTotal: 25,
	}
	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, event))
	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, event))

	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 1, class.CurrentStudents)
}

func TestProcessRedeliveryWithDistinctEventID(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	session := openSession(t, store, "class-1", "class")
	svc := newReconcileService(store)

	first := &gateway.WebhookEvent{
		ID:          "evt_1",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   session.SessionID,
		AmountTotal: 25,
	}
	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, first))

	// A payment_succeeded event for the same session slips past the event-id
	// dedup. The conditional confirm protects the counter.
	second := &gateway.WebhookEvent{
		ID:          "evt_2",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   session.SessionID,
		AmountTotal: 25,
	}
	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, second))

	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 1, class.CurrentStudents)
}

func TestProcessPaymentFailed(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	session := openSession(t, store, "class-1", "class")
	svc := newReconcileService(store)

	txn, err := store.Transactions().GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)

	err = svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:            "evt_fail",
		Type:          gateway.EventPaymentFailed,
		SessionID:     session.SessionID,
		FailureReason: "card_declined",
	})
	require.NoError(t, err)

	booking, err := store.Bookings().GetByID(ctx, session.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
	assert.Equal(t, domain.PaymentStatusFailed, booking.PaymentStatus)

	// A failed payment never held capacity.
	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 0, class.CurrentStudents)

	updated, err := store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, updated.Status)
	assert.Equal(t, "card_declined", updated.FailureReason)
}

func TestProcessLateFailureAfterConfirmation(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	session := openSession(t, store, "class-1", "class")
	svc := newReconcileService(store)

	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:          "evt_ok",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   session.SessionID,
		AmountTotal: 25,
	}))

	// The stray failure arrives after the session already confirmed. The
	// confirmed booking must stand.
	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:        "evt_late_fail",
		Type:      gateway.EventPaymentFailed,
		SessionID: session.SessionID,
	}))

	booking, err := store.Bookings().GetByID(ctx, session.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)

	class, err := store.Catalog().GetClass(ctx, "class-1")
	require.NoError(t, err)
	assert.Equal(t, 1, class.CurrentStudents)
}

func TestProcessUnknownSessionIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newReconcileService(store)

	err := svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:        "evt_unknown",
		Type:      gateway.EventCheckoutCompleted,
		SessionID: "cs_never_created",
	})
	assert.NoError(t, err)
}

func TestProcessIgnoredEventSkipsDedup(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	svc := newReconcileService(store)

	event := &gateway.WebhookEvent{ID: "evt_noise", Type: gateway.EventIgnored}
	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, event))

	// Ignored events never consume the dedup slot.
	first, err := store.WebhookEvents().MarkProcessed(ctx, domain.ProviderStripe, "evt_noise")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestProcessPaidButFull(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	store.AddClass(&domain.Class{
		ID:          "class-tiny",
		Title:       "Private Session",
		Price:       25,
		MaxStudents: 1,
		IsActive:    true,
		StartTime:   time.Now().Add(72 * time.Hour),
	})
	svc := newReconcileService(store)

	winner := openSession(t, store, "class-tiny", "class")
	loser := openSession(t, store, "class-tiny", "class")

	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:          "evt_win",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   winner.SessionID,
		AmountTotal: 25,
	}))
	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:          "evt_lose",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   loser.SessionID,
		AmountTotal: 25,
	}))

	// The loser stays PENDING for manual resolution; the counter never
	// exceeds capacity.
	booking, err := store.Bookings().GetByID(ctx, loser.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, booking.Status)

	class, err := store.Catalog().GetClass(ctx, "class-tiny")
	require.NoError(t, err)
	assert.Equal(t, 1, class.CurrentStudents)
}

func TestProcessDisputeCreated(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	session := openSession(t, store, "class-1", "class")
	svc := newReconcileService(store)

	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:          "evt_ok",
		Type:        gateway.EventCheckoutCompleted,
		SessionID:   session.SessionID,
		AmountTotal: 25,
	}))

	require.NoError(t, svc.ProcessEvent(ctx, domain.ProviderStripe, &gateway.WebhookEvent{
		ID:            "evt_dispute",
		Type:          gateway.EventDisputeCreated,
		SessionID:     session.SessionID,
		ChargeID:      "ch_1",
		FailureReason: "fraudulent",
	}))

	// Disputes are recorded for review, never applied to booking state.
	booking, err := store.Bookings().GetByID(ctx, session.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
}
