package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/email"
	"github.com/insominiac/dancemvp-backend/internal/gateway"
	"github.com/insominiac/dancemvp-backend/internal/logger"
	"github.com/insominiac/dancemvp-backend/internal/metrics"
	"github.com/insominiac/dancemvp-backend/internal/repository"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

// ReconcileService applies verified webhook events to booking state
type ReconcileService interface {
	// ProcessEvent reconciles one verified provider event. Duplicate
	// deliveries short-circuit before any state mutation. Every branch
	// recovers independently: an error here means infrastructure failure,
	// not a rejected event.
	ProcessEvent(ctx context.Context, provider domain.Provider, event *gateway.WebhookEvent) error
}

// reconcileService implements ReconcileService
type reconcileService struct {
	bookingRepo    repository.BookingRepository
	txnRepo        repository.TransactionRepository
	catalogRepo    repository.CatalogRepository
	auditRepo      repository.AuditLogRepository
	webhookRepo    repository.WebhookEventRepository
	mailer         email.Mailer
	eventPublisher EventPublisher
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(
	bookingRepo repository.BookingRepository,
	txnRepo repository.TransactionRepository,
	catalogRepo repository.CatalogRepository,
	auditRepo repository.AuditLogRepository,
	webhookRepo repository.WebhookEventRepository,
	mailer email.Mailer,
	eventPublisher EventPublisher,
) ReconcileService {
	if mailer == nil {
		mailer = email.NewNoOpMailer()
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &reconcileService{
		bookingRepo:    bookingRepo,
		txnRepo:        txnRepo,
		catalogRepo:    catalogRepo,
		auditRepo:      auditRepo,
		webhookRepo:    webhookRepo,
		mailer:         mailer,
		eventPublisher: eventPublisher,
	}
}

func (s *reconcileService) ProcessEvent(ctx context.Context, provider domain.Provider, event *gateway.WebhookEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile.process_event")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("event_id", event.ID),
		attribute.String("event_type", string(event.Type)),
	)

	start := time.Now()
	log := logger.Get()

	if event.Type == gateway.EventIgnored {
		span.SetStatus(codes.Ok, "ignored")
		return nil
	}

	// Dedup before anything mutates. A redelivered event must not touch the
	// capacity counter a second time.
	first, err := s.webhookRepo.MarkProcessed(ctx, provider, event.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !first {
		if metrics.WebhooksDuplicate != nil {
			metrics.WebhooksDuplicate.Inc(ctx, attribute.String("provider", string(provider)))
		}
		log.Info("duplicate webhook delivery skipped",
			zap.String("provider", string(provider)),
			zap.String("event_id", event.ID))
		span.SetStatus(codes.Ok, "duplicate")
		return nil
	}

	switch event.Type {
	case gateway.EventCheckoutCompleted:
		err = s.handleCheckoutCompleted(ctx, provider, event)
	case gateway.EventPaymentSucceeded:
		err = s.handlePaymentSucceeded(ctx, provider, event)
	case gateway.EventPaymentFailed:
		err = s.handlePaymentFinal(ctx, event, domain.PaymentStatusFailed)
	case gateway.EventPaymentCanceled:
		err = s.handlePaymentFinal(ctx, event, domain.PaymentStatusCanceled)
	case gateway.EventDisputeCreated:
		err = s.handleDisputeCreated(ctx, provider, event)
	}

	if err != nil {
		if metrics.WebhooksFailed != nil {
			metrics.WebhooksFailed.Inc(ctx, attribute.String("provider", string(provider)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	metrics.RecordWebhook(ctx, string(provider), string(event.Type), time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "")
	return nil
}

// handleCheckoutCompleted confirms the booking the session paid for
func (s *reconcileService) handleCheckoutCompleted(ctx context.Context, provider domain.Provider, event *gateway.WebhookEvent) error {
	booking, err := s.bookingRepo.GetBySessionID(ctx, event.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			// A session we never created, or one whose booking was already
			// reaped. Log and move on; never fabricate a booking.
			logger.Get().Warn("webhook for unknown session",
				zap.String("provider", string(provider)),
				zap.String("session_id", event.SessionID))
			return nil
		}
		return err
	}
	return s.confirmBooking(ctx, provider, booking, event)
}

// handlePaymentSucceeded confirms via the transaction's provider payment id
func (s *reconcileService) handlePaymentSucceeded(ctx context.Context, provider domain.Provider, event *gateway.WebhookEvent) error {
	txn, err := s.findTransaction(ctx, event)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			logger.Get().Warn("webhook for unknown payment",
				zap.String("provider", string(provider)),
				zap.String("payment_id", event.PaymentID))
			return nil
		}
		return err
	}

	booking, err := s.bookingRepo.GetByID(ctx, txn.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			logger.Get().Warn("payment succeeded for missing booking",
				zap.String("booking_id", txn.BookingID))
			return nil
		}
		return err
	}
	return s.confirmBooking(ctx, provider, booking, event)
}

// confirmBooking is the single confirmation path: conditional status flip
// plus capacity increment, transaction update, then best-effort side effects
func (s *reconcileService) confirmBooking(ctx context.Context, provider domain.Provider, booking *domain.Booking, event *gateway.WebhookEvent) error {
	log := logger.Get()

	amountPaid := event.AmountTotal
	if amountPaid == 0 {
		amountPaid = booking.FinalAmount()
	}

	err := s.bookingRepo.ConfirmAndReserveSeat(ctx, booking.ID, amountPaid)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		// Redelivery that slipped past dedup (e.g. distinct event ids for
		// the same session). The conditional update already protected the
		// counter; nothing left to do.
		log.Info("booking already confirmed", zap.String("booking_id", booking.ID))
		return nil
	case errors.Is(err, domain.ErrInsufficientSeats):
		// Paid but full: the seat was taken while the session was open.
		// Keep the booking PENDING and flag for manual resolution.
		entry := domain.NewAuditLog("", booking.ID, "confirm_failed_capacity",
			"payment received but item is at capacity")
		if auditErr := s.auditRepo.Create(ctx, entry); auditErr != nil {
			log.Error("failed to write capacity audit entry", zap.Error(auditErr))
		}
		log.Error("payment received for full item",
			zap.String("booking_id", booking.ID),
			zap.String("item_id", booking.ItemID()))
		return nil
	default:
		return err
	}

	if txn, err := s.txnRepo.GetBySessionID(ctx, booking.ProviderSessionID); err == nil {
		if err := txn.Succeed(event.PaymentID); err == nil {
			txn.RawPayload = event.RawPayload
			if err := s.txnRepo.Update(ctx, txn); err != nil {
				log.Error("failed to update transaction",
					zap.String("transaction_id", txn.ID), zap.Error(err))
			}
		}
	} else {
		log.Warn("no transaction for confirmed session",
			zap.String("session_id", booking.ProviderSessionID))
	}

	metrics.RecordConfirmation(ctx, string(provider))

	confirmed, err := s.bookingRepo.GetByID(ctx, booking.ID)
	if err != nil {
		confirmed = booking
	}
	if err := s.eventPublisher.PublishBookingConfirmed(ctx, confirmed); err != nil {
		log.Warn("failed to publish booking.confirmed",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}

	s.sendConfirmationEmail(ctx, confirmed)
	return nil
}

// handlePaymentFinal settles a failed or canceled payment. The booking is
// cancelled without touching capacity: it never held a seat.
func (s *reconcileService) handlePaymentFinal(ctx context.Context, event *gateway.WebhookEvent, paymentStatus string) error {
	log := logger.Get()

	txn, err := s.findTransaction(ctx, event)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			log.Warn("webhook for unknown payment", zap.String("payment_id", event.PaymentID))
			return nil
		}
		return err
	}

	var txnErr error
	if paymentStatus == domain.PaymentStatusFailed {
		txnErr = txn.Fail(event.FailureReason)
	} else {
		txnErr = txn.Cancel()
	}
	if txnErr == nil {
		txn.RawPayload = event.RawPayload
		if err := s.txnRepo.Update(ctx, txn); err != nil {
			log.Error("failed to update transaction",
				zap.String("transaction_id", txn.ID), zap.Error(err))
		}
	}

	err = s.bookingRepo.CancelPending(ctx, txn.BookingID, paymentStatus, "payment "+paymentStatus)
	switch {
	case err == nil:
		metrics.RecordCancellation(ctx, true)
	case errors.Is(err, domain.ErrAlreadyCancelled), errors.Is(err, domain.ErrBookingNotFound):
		// Already settled by the reaper or an earlier delivery.
	case errors.Is(err, domain.ErrInvalidBookingStatus):
		// Confirmed in the meantime; a late failure event for a session
		// that ultimately succeeded. Leave the confirmed booking alone.
		log.Warn("late payment failure for non-pending booking",
			zap.String("booking_id", txn.BookingID))
	default:
		return err
	}

	if booking, getErr := s.bookingRepo.GetByID(ctx, txn.BookingID); getErr == nil && booking.IsCancelled() {
		if err := s.eventPublisher.PublishBookingCancelled(ctx, booking); err != nil {
			log.Warn("failed to publish booking.cancelled",
				zap.String("booking_id", booking.ID), zap.Error(err))
		}
	}
	return nil
}

// handleDisputeCreated records the dispute for manual review. No booking
// state changes on disputes.
func (s *reconcileService) handleDisputeCreated(ctx context.Context, provider domain.Provider, event *gateway.WebhookEvent) error {
	var txnID, bookingID string
	if txn, err := s.findTransaction(ctx, event); err == nil {
		txnID = txn.ID
		bookingID = txn.BookingID
	}

	entry := domain.NewAuditLog(txnID, bookingID, "dispute_created",
		"charge "+event.ChargeID+": "+event.FailureReason)
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		return err
	}

	logger.Get().Warn("payment dispute recorded",
		zap.String("provider", string(provider)),
		zap.String("charge_id", event.ChargeID),
		zap.String("booking_id", bookingID))
	return nil
}

// findTransaction locates the transaction an event refers to, trying the
// provider payment id first and falling back to the session id
func (s *reconcileService) findTransaction(ctx context.Context, event *gateway.WebhookEvent) (*domain.Transaction, error) {
	if event.PaymentID != "" {
		txn, err := s.txnRepo.GetByProviderPaymentID(ctx, event.PaymentID)
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, err
		}
	}
	if event.SessionID != "" {
		return s.txnRepo.GetBySessionID(ctx, event.SessionID)
	}
	return nil, domain.ErrTransactionNotFound
}

// sendConfirmationEmail queues the confirmation email; failures only log
func (s *reconcileService) sendConfirmationEmail(ctx context.Context, booking *domain.Booking) {
	log := logger.Get()

	user, err := s.catalogRepo.GetUser(ctx, booking.UserID)
	if err != nil {
		log.Warn("cannot email confirmation, user lookup failed",
			zap.String("user_id", booking.UserID), zap.Error(err))
		return
	}
	item, err := resolveItem(ctx, s.catalogRepo, booking.ItemType(), booking.ItemID())
	if err != nil {
		log.Warn("cannot email confirmation, item lookup failed",
			zap.String("item_id", booking.ItemID()), zap.Error(err))
		return
	}

	if err := s.mailer.SendBookingConfirmation(ctx, user.Email, user.FullName,
		item.Title, booking.ConfirmationCode, item.StartTime); err != nil {
		log.Warn("failed to queue confirmation email",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
}
