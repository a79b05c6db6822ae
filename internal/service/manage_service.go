package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/email"
	"github.com/insominiac/dancemvp-backend/internal/logger"
	"github.com/insominiac/dancemvp-backend/internal/metrics"
	"github.com/insominiac/dancemvp-backend/internal/repository"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

// ManageService handles post-booking operations: cancellation and reschedule
type ManageService interface {
	// Cancel cancels a booking under the time-based refund policy. A rejected
	// window returns *domain.CancellationPolicyError.
	Cancel(ctx context.Context, bookingID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error)

	// Reschedule moves a class booking to another class under the reschedule
	// policy. A rejected window returns *domain.ReschedulePolicyError.
	Reschedule(ctx context.Context, bookingID string, req *dto.RescheduleBookingRequest) (*dto.RescheduleBookingResponse, error)
}

// manageService implements ManageService
type manageService struct {
	bookingRepo    repository.BookingRepository
	catalogRepo    repository.CatalogRepository
	refundRepo     repository.RefundRepository
	waitlist       WaitlistService
	mailer         email.Mailer
	eventPublisher EventPublisher
	now            func() time.Time
}

// NewManageService creates a new manage service
func NewManageService(
	bookingRepo repository.BookingRepository,
	catalogRepo repository.CatalogRepository,
	refundRepo repository.RefundRepository,
	waitlist WaitlistService,
	mailer email.Mailer,
	eventPublisher EventPublisher,
) ManageService {
	if mailer == nil {
		mailer = email.NewNoOpMailer()
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &manageService{
		bookingRepo:    bookingRepo,
		catalogRepo:    catalogRepo,
		refundRepo:     refundRepo,
		waitlist:       waitlist,
		mailer:         mailer,
		eventPublisher: eventPublisher,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *manageService) Cancel(ctx context.Context, bookingID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.manage.cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", req.UserID),
	)

	log := logger.Get()

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.BelongsToUser(req.UserID) {
		// Ownership failures look like missing bookings, not forbidden ones.
		return nil, domain.ErrBookingNotFound
	}
	if booking.IsCancelled() {
		return nil, domain.ErrAlreadyCancelled
	}

	item, err := resolveItem(ctx, s.catalogRepo, booking.ItemType(), booking.ItemID())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "cancelled by user"
	}

	// A PENDING booking holds no seat and has paid nothing: it cancels
	// unconditionally, outside the refund window.
	if !booking.IsConfirmed() {
		if err := s.bookingRepo.CancelPending(ctx, booking.ID, domain.PaymentStatusCanceled, reason); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		metrics.RecordCancellation(ctx, true)
		s.finishCancel(ctx, booking.ID, item, 0)
		span.SetStatus(codes.Ok, "")
		return &dto.CancelBookingResponse{
			BookingID: booking.ID,
			Status:    domain.BookingStatusCancelled.String(),
		}, nil
	}

	policy := domain.EvaluateCancellation(item.StartTime, s.now())
	if !policy.CanCancel {
		err := &domain.CancellationPolicyError{Policy: policy}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	refundAmount := booking.AmountPaid * float64(policy.RefundPercent) / 100
	if req.RequestRefund != nil && !*req.RequestRefund {
		refundAmount = 0
	}

	paymentStatus := domain.PaymentStatusCanceled
	if refundAmount > 0 {
		paymentStatus = domain.PaymentStatusRefundPending
	}

	if err := s.bookingRepo.CancelConfirmedAndReleaseSeat(ctx, booking.ID, paymentStatus, reason); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.RecordCancellation(ctx, false)

	if refundAmount > 0 {
		s.requestRefund(ctx, booking, refundAmount, reason)
	}

	// The cancellation freed a confirmed seat: offer it to the waitlist.
	if s.waitlist != nil {
		if _, err := s.waitlist.PromoteNext(ctx, booking.ItemType(), booking.ItemID()); err != nil {
			log.Error("waitlist promotion after cancellation failed",
				zap.String("item_id", booking.ItemID()), zap.Error(err))
		}
	}

	s.finishCancel(ctx, booking.ID, item, refundAmount)

	span.SetStatus(codes.Ok, "")
	return &dto.CancelBookingResponse{
		BookingID:     booking.ID,
		Status:        domain.BookingStatusCancelled.String(),
		RefundAmount:  refundAmount,
		RefundPercent: policy.RefundPercent,
	}, nil
}

func (s *manageService) Reschedule(ctx context.Context, bookingID string, req *dto.RescheduleBookingRequest) (*dto.RescheduleBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.manage.reschedule")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("new_class_id", req.NewClassID),
	)

	log := logger.Get()

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.BelongsToUser(req.UserID) {
		return nil, domain.ErrBookingNotFound
	}
	if booking.IsCancelled() {
		return nil, domain.ErrAlreadyCancelled
	}
	if booking.ItemType() != domain.BookingTypeClass {
		return nil, domain.ErrNotClassBooking
	}
	if req.NewClassID == booking.ClassID {
		return nil, domain.ErrInvalidItemID
	}

	oldClass, err := s.catalogRepo.GetClass(ctx, booking.ClassID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	policy := domain.EvaluateReschedule(oldClass.StartTime, s.now())
	if !policy.CanReschedule {
		err := &domain.ReschedulePolicyError{Policy: policy}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	newClass, err := s.catalogRepo.GetClass(ctx, req.NewClassID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	newItem := newClass.Item()
	if !newItem.Available {
		return nil, domain.ErrItemUnavailable
	}

	newTotal := newClass.Price + policy.Fee

	// Capacity on the target class is enforced inside the repository, in the
	// same transaction that releases the old seat.
	if err := s.bookingRepo.Reschedule(ctx, booking.ID, req.NewClassID, newTotal); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.RecordReschedule(ctx)

	resp := &dto.RescheduleBookingResponse{
		BookingID:      booking.ID,
		NewClassID:     req.NewClassID,
		OldClassID:     booking.ClassID,
		NewTotalAmount: newTotal,
		Fee:            policy.Fee,
	}

	// Settle the price difference against what was already paid. Cheaper
	// classes produce a refund row; pricier ones leave a balance the user
	// pays through a follow-up session.
	if booking.IsConfirmed() {
		delta := newTotal - booking.AmountPaid
		switch {
		case delta > 0:
			resp.PaymentRequired = delta
		case delta < 0:
			resp.RefundAmount = -delta
			s.requestRefund(ctx, booking, -delta, "rescheduled to cheaper class")
		}

		// The old class seat is free now.
		if s.waitlist != nil {
			if _, err := s.waitlist.PromoteNext(ctx, domain.BookingTypeClass, booking.ClassID); err != nil {
				log.Error("waitlist promotion after reschedule failed",
					zap.String("item_id", booking.ClassID), zap.Error(err))
			}
		}
	}

	if updated, err := s.bookingRepo.GetByID(ctx, booking.ID); err == nil {
		if err := s.eventPublisher.PublishBookingRescheduled(ctx, updated); err != nil {
			log.Warn("failed to publish booking.rescheduled",
				zap.String("booking_id", booking.ID), zap.Error(err))
		}
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// requestRefund writes the PENDING refund row; settlement is a back-office
// process and never mutates amountPaid here
func (s *manageService) requestRefund(ctx context.Context, booking *domain.Booking, amount float64, reason string) {
	log := logger.Get()

	refund, err := domain.NewRefund(booking.ID, booking.UserID, amount, reason)
	if err != nil {
		log.Error("invalid refund request",
			zap.String("booking_id", booking.ID), zap.Error(err))
		return
	}
	if err := s.refundRepo.Create(ctx, refund); err != nil {
		log.Error("failed to record refund",
			zap.String("booking_id", booking.ID),
			zap.Float64("amount", amount),
			zap.Error(err))
		return
	}
	metrics.RecordRefund(ctx, amount)
}

// finishCancel publishes the cancellation event and queues the email
func (s *manageService) finishCancel(ctx context.Context, bookingID string, item *domain.BookableItem, refundAmount float64) {
	log := logger.Get()

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		log.Warn("cancelled booking reload failed", zap.String("booking_id", bookingID))
		return
	}

	if err := s.eventPublisher.PublishBookingCancelled(ctx, booking); err != nil {
		log.Warn("failed to publish booking.cancelled",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}

	user, err := s.catalogRepo.GetUser(ctx, booking.UserID)
	if err != nil {
		log.Warn("cannot email cancellation, user lookup failed",
			zap.String("user_id", booking.UserID), zap.Error(err))
		return
	}
	if err := s.mailer.SendCancellation(ctx, user.Email, user.FullName, item.Title, refundAmount); err != nil {
		log.Warn("failed to queue cancellation email",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
}
