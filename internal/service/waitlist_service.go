package service

import (
	"context"
	"errors"

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

// WaitlistService manages waitlist entries and seat promotions
type WaitlistService interface {
	// Join adds a user to the waitlist for a full class or event
	Join(ctx context.Context, req *dto.JoinWaitlistRequest) (*dto.JoinWaitlistResponse, error)

	// PromoteNext converts the highest-ranked ACTIVE entry for the item into
	// a PENDING booking. Returns (nil, nil) when nobody is waiting. Called
	// once per freed seat.
	PromoteNext(ctx context.Context, itemType domain.BookingType, itemID string) (*domain.Booking, error)
}

// waitlistService implements WaitlistService
type waitlistService struct {
	waitlistRepo   repository.WaitlistRepository
	bookingRepo    repository.BookingRepository
	catalogRepo    repository.CatalogRepository
	mailer         email.Mailer
	eventPublisher EventPublisher
}

// NewWaitlistService creates a new waitlist service
func NewWaitlistService(
	waitlistRepo repository.WaitlistRepository,
	bookingRepo repository.BookingRepository,
	catalogRepo repository.CatalogRepository,
	mailer email.Mailer,
	eventPublisher EventPublisher,
) WaitlistService {
	if mailer == nil {
		mailer = email.NewNoOpMailer()
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &waitlistService{
		waitlistRepo:   waitlistRepo,
		bookingRepo:    bookingRepo,
		catalogRepo:    catalogRepo,
		mailer:         mailer,
		eventPublisher: eventPublisher,
	}
}

func (s *waitlistService) Join(ctx context.Context, req *dto.JoinWaitlistRequest) (*dto.JoinWaitlistResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.join")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("item_id", req.ItemID),
		attribute.String("booking_type", req.BookingType),
	)

	bookingType := domain.BookingType(req.BookingType)
	if bookingType != domain.BookingTypeClass && bookingType != domain.BookingTypeEvent {
		return nil, domain.ErrInvalidBookingType
	}

	if _, err := resolveItem(ctx, s.catalogRepo, bookingType, req.ItemID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var classID, eventID string
	if bookingType == domain.BookingTypeClass {
		classID = req.ItemID
	} else {
		eventID = req.ItemID
	}

	entry, err := domain.NewWaitlistEntry(req.UserID, classID, eventID, req.Priority)
	if err != nil {
		return nil, err
	}

	if err := s.waitlistRepo.Create(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Get().Info("user joined waitlist",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", req.UserID),
		zap.String("item_id", req.ItemID),
		zap.Int("position", entry.Position))

	span.SetStatus(codes.Ok, "")
	return &dto.JoinWaitlistResponse{
		EntryID:  entry.ID,
		Position: entry.Position,
		Status:   string(entry.Status),
	}, nil
}

// PromoteNext walks the waitlist in priority-then-position order until it
// converts one entry. MarkConverted is the race gate: a concurrent promotion
// that converted the same entry makes it report false and the loop moves on.
func (s *waitlistService) PromoteNext(ctx context.Context, itemType domain.BookingType, itemID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.promote_next")
	defer span.End()

	span.SetAttributes(
		attribute.String("item_type", string(itemType)),
		attribute.String("item_id", itemID),
	)

	log := logger.Get()

	for {
		entry, err := s.waitlistRepo.NextActive(ctx, itemType, itemID)
		if err != nil {
			if errors.Is(err, domain.ErrWaitlistEntryNotFound) {
				span.SetStatus(codes.Ok, "empty")
				return nil, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		converted, err := s.waitlistRepo.MarkConverted(ctx, entry.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if !converted {
			continue
		}

		booking, err := s.createPromotionBooking(ctx, entry)
		if err != nil {
			log.Error("waitlist promotion failed after conversion",
				zap.String("entry_id", entry.ID),
				zap.String("user_id", entry.UserID),
				zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		metrics.RecordWaitlistPromotion(ctx)
		log.Info("waitlist entry promoted",
			zap.String("entry_id", entry.ID),
			zap.String("booking_id", booking.ID),
			zap.String("user_id", entry.UserID))

		span.SetStatus(codes.Ok, "")
		return booking, nil
	}
}

// createPromotionBooking creates the PENDING booking the promoted user must
// still pay for. No seat is reserved until their payment confirms.
func (s *waitlistService) createPromotionBooking(ctx context.Context, entry *domain.WaitlistEntry) (*domain.Booking, error) {
	item, err := resolveItem(ctx, s.catalogRepo, entry.ItemType(), entry.ItemID())
	if err != nil {
		return nil, err
	}

	booking, err := domain.NewBooking(entry.UserID, entry.ClassID, entry.EventID, item.Price, 0, 0)
	if err != nil {
		return nil, err
	}
	booking.CreatedFrom = domain.CreatedFromWaitlist

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		return nil, err
	}

	if err := s.eventPublisher.PublishWaitlistPromoted(ctx, booking); err != nil {
		logger.Get().Warn("failed to publish booking.waitlist_promoted",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}

	s.sendPromotionEmail(ctx, booking, item)
	return booking, nil
}

func (s *waitlistService) sendPromotionEmail(ctx context.Context, booking *domain.Booking, item *domain.BookableItem) {
	log := logger.Get()

	user, err := s.catalogRepo.GetUser(ctx, booking.UserID)
	if err != nil {
		log.Warn("cannot email promotion, user lookup failed",
			zap.String("user_id", booking.UserID), zap.Error(err))
		return
	}

	// The promoted user completes payment through the normal checkout flow.
	if err := s.mailer.SendWaitlistPromotion(ctx, user.Email, user.FullName, item.Title, ""); err != nil {
		log.Warn("failed to queue promotion email",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
}
