package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/dto"
	"github.com/insominiac/dancemvp-backend/internal/gateway"
	"github.com/insominiac/dancemvp-backend/internal/logger"
	"github.com/insominiac/dancemvp-backend/internal/metrics"
	"github.com/insominiac/dancemvp-backend/internal/repository"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

// CheckoutService defines the interface for the payment session bridge
type CheckoutService interface {
	// CreateSession creates a PENDING booking, a CREATED transaction and the
	// provider payment object for it. No capacity is reserved here.
	CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)

	// GetBooking retrieves a booking the user owns
	GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)

	// GetUserBookings retrieves a page of the user's bookings
	GetUserBookings(ctx context.Context, userID string, page, pageSize int) (*dto.BookingListResponse, error)
}

// checkoutService implements CheckoutService
type checkoutService struct {
	bookingRepo     repository.BookingRepository
	txnRepo         repository.TransactionRepository
	catalogRepo     repository.CatalogRepository
	gateways        map[domain.Provider]gateway.PaymentGateway
	eventPublisher  EventPublisher
	sessionTTL      time.Duration
	defaultCurrency string
}

// CheckoutServiceConfig contains configuration for the checkout service
type CheckoutServiceConfig struct {
	SessionTTL      time.Duration
	DefaultCurrency string
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	bookingRepo repository.BookingRepository,
	txnRepo repository.TransactionRepository,
	catalogRepo repository.CatalogRepository,
	gateways map[domain.Provider]gateway.PaymentGateway,
	eventPublisher EventPublisher,
	cfg *CheckoutServiceConfig,
) CheckoutService {
	ttl := 30 * time.Minute
	currency := "USD"
	if cfg != nil {
		if cfg.SessionTTL > 0 {
			ttl = cfg.SessionTTL
		}
		if cfg.DefaultCurrency != "" {
			currency = cfg.DefaultCurrency
		}
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &checkoutService{
		bookingRepo:     bookingRepo,
		txnRepo:         txnRepo,
		catalogRepo:     catalogRepo,
		gateways:        gateways,
		eventPublisher:  eventPublisher,
		sessionTTL:      ttl,
		defaultCurrency: currency,
	}
}

// CreateSession creates the booking, transaction and provider session.
// Provider failure rolls back both rows: a booking whose payment can never
// arrive must not exist.
func (s *checkoutService) CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.create_session")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("item_id", req.ItemID),
		attribute.String("booking_type", req.BookingType),
	)

	if req.ItemID == "" {
		return nil, domain.ErrInvalidItemID
	}
	if req.UserID == "" {
		return nil, domain.ErrInvalidUserID
	}

	bookingType := domain.BookingType(req.BookingType)
	if bookingType != domain.BookingTypeClass && bookingType != domain.BookingTypeEvent {
		return nil, domain.ErrInvalidBookingType
	}

	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	gw, ok := s.gateways[provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	item, err := resolveItem(ctx, s.catalogRepo, bookingType, req.ItemID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !item.Available {
		span.SetStatus(codes.Error, "item unavailable")
		return nil, domain.ErrItemUnavailable
	}

	user, err := s.catalogRepo.GetUser(ctx, req.UserID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	base := item.Price
	if req.CustomAmount != nil {
		if *req.CustomAmount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		base = *req.CustomAmount
	}
	total := base - req.DiscountAmount + req.TaxAmount

	var classID, eventID string
	if bookingType == domain.BookingTypeClass {
		classID = req.ItemID
	} else {
		eventID = req.ItemID
	}

	booking, err := domain.NewBooking(req.UserID, classID, eventID, total, req.DiscountAmount, req.TaxAmount)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	booking.PaymentMethod = req.PaymentMethod

	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	txn, err := domain.NewTransaction(booking.ID, req.UserID, provider, total, currency)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.txnRepo.Create(ctx, txn); err != nil {
		s.rollbackSession(ctx, booking.ID, "")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	expiresAt := time.Now().Add(s.sessionTTL)
	session, err := gw.CreateSession(ctx, &gateway.SessionRequest{
		BookingID:      booking.ID,
		UserID:         req.UserID,
		UserEmail:      user.Email,
		ItemTitle:      item.Title,
		ItemType:       string(bookingType),
		BaseAmount:     base,
		DiscountAmount: req.DiscountAmount,
		TaxAmount:      req.TaxAmount,
		TotalAmount:    total,
		Currency:       currency,
		ExpiresAt:      expiresAt,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		// Same cleanup for every provider: the PENDING booking and the
		// transaction disappear together.
		s.rollbackSession(ctx, booking.ID, txn.ID)
		metrics.RecordSessionFailure(ctx, string(provider))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Get().Error("provider session creation failed",
			zap.String("booking_id", booking.ID),
			zap.String("provider", string(provider)),
			zap.Error(err))
		return nil, domain.ErrProviderFailure
	}

	booking.ProviderSessionID = session.SessionID
	if err := s.bookingRepo.Update(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	txn.SessionID = session.SessionID
	if session.PaymentID != "" {
		txn.ProviderPaymentID = session.PaymentID
	}
	if err := s.txnRepo.Update(ctx, txn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.eventPublisher.PublishBookingCreated(ctx, booking); err != nil {
		logger.Get().Warn("failed to publish booking.created",
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
	metrics.RecordSessionCreated(ctx, string(provider))

	span.SetStatus(codes.Ok, "")
	return &dto.CreateSessionResponse{
		BookingID:        booking.ID,
		TransactionID:    txn.ID,
		SessionID:        session.SessionID,
		CheckoutURL:      session.CheckoutURL,
		ConfirmationCode: booking.ConfirmationCode,
		TotalAmount:      total,
		Provider:         string(provider),
		ExpiresAt:        expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// rollbackSession removes the booking/transaction pair created for a session
// that never materialized
func (s *checkoutService) rollbackSession(ctx context.Context, bookingID, txnID string) {
	log := logger.Get()
	if txnID != "" {
		if err := s.txnRepo.Delete(ctx, txnID); err != nil {
			log.Error("failed to roll back transaction",
				zap.String("transaction_id", txnID), zap.Error(err))
		}
	}
	if err := s.bookingRepo.Delete(ctx, bookingID); err != nil {
		log.Error("failed to roll back booking",
			zap.String("booking_id", bookingID), zap.Error(err))
	}
}

// GetBooking retrieves a booking the user owns
func (s *checkoutService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.get_booking")
	defer span.End()

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromBooking(booking, s.itemEnd(ctx, booking), time.Now()), nil
}

// GetUserBookings retrieves a page of the user's bookings
func (s *checkoutService) GetUserBookings(ctx context.Context, userID string, page, pageSize int) (*dto.BookingListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.get_user_bookings")
	defer span.End()

	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	bookings, err := s.bookingRepo.GetByUserID(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now()
	resp := &dto.BookingListResponse{
		Bookings: make([]*dto.BookingResponse, 0, len(bookings)),
		Total:    len(bookings),
	}
	for _, booking := range bookings {
		resp.Bookings = append(resp.Bookings, dto.FromBooking(booking, s.itemEnd(ctx, booking), now))
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// itemEnd looks up when the booked item ends, for deriving COMPLETED status.
// A lookup failure reads as "not ended": the stored status stands.
func (s *checkoutService) itemEnd(ctx context.Context, booking *domain.Booking) time.Time {
	item, err := resolveItem(ctx, s.catalogRepo, booking.ItemType(), booking.ItemID())
	if err != nil {
		return time.Time{}
	}
	return item.EndTime
}

// resolveItem loads the bookable view of a class or event
func resolveItem(ctx context.Context, catalog repository.CatalogRepository, itemType domain.BookingType, itemID string) (*domain.BookableItem, error) {
	if itemType == domain.BookingTypeClass {
		class, err := catalog.GetClass(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return class.Item(), nil
	}
	event, err := catalog.GetEvent(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return event.Item(), nil
}
