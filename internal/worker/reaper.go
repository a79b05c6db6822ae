package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/logger"
	"github.com/insominiac/dancemvp-backend/internal/metrics"
	"github.com/insominiac/dancemvp-backend/internal/repository"
	"github.com/insominiac/dancemvp-backend/internal/service"
)

// ReaperConfig contains configuration for the session reaper
type ReaperConfig struct {
	// ScanInterval is the interval between scans for stale sessions
	ScanInterval time.Duration
	// SessionTTL is how long a PENDING booking may wait for its payment
	SessionTTL time.Duration
	// BatchSize is the number of bookings to reap in each scan
	BatchSize int
}

// DefaultReaperConfig returns default configuration
func DefaultReaperConfig() *ReaperConfig {
	return &ReaperConfig{
		ScanInterval: 1 * time.Minute,
		SessionTTL:   30 * time.Minute,
		BatchSize:    100,
	}
}

// Reaper cancels PENDING bookings whose payment session expired without a
// webhook. Expired bookings never held a seat, so no counter moves.
type Reaper struct {
	bookingRepo    repository.BookingRepository
	txnRepo        repository.TransactionRepository
	eventPublisher service.EventPublisher
	config         *ReaperConfig
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool

	totalExpired int64
	lastScanTime time.Time
}

// NewReaper creates a new session reaper
func NewReaper(
	bookingRepo repository.BookingRepository,
	txnRepo repository.TransactionRepository,
	eventPublisher service.EventPublisher,
	config *ReaperConfig,
) *Reaper {
	if config == nil {
		config = DefaultReaperConfig()
	}
	if eventPublisher == nil {
		eventPublisher = service.NewNoOpEventPublisher()
	}
	return &Reaper{
		bookingRepo:    bookingRepo,
		txnRepo:        txnRepo,
		eventPublisher: eventPublisher,
		config:         config,
		stopCh:         make(chan struct{}),
	}
}

// Start starts the reaper loop
func (w *Reaper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reaper already running")
	}
	w.running = true
	w.mu.Unlock()

	logger.Get().Info("starting session reaper",
		zap.Duration("scan_interval", w.config.ScanInterval),
		zap.Duration("session_ttl", w.config.SessionTTL))

	w.wg.Add(1)
	go w.scan(ctx)
	return nil
}

// Stop stops the reaper and waits for the in-flight scan
func (w *Reaper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	logger.Get().Info("session reaper stopped")
}

func (w *Reaper) scan(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.ReapOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.ReapOnce(ctx)
		}
	}
}

// ReapOnce runs a single scan and returns the number of bookings expired
func (w *Reaper) ReapOnce(ctx context.Context) int {
	log := logger.Get()

	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	cutoff := time.Now().UTC().Add(-w.config.SessionTTL)
	expired, err := w.bookingRepo.GetExpiredPending(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		log.Error("failed to scan expired sessions", zap.Error(err))
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	log.Info("reaping expired payment sessions", zap.Int("count", len(expired)))

	reaped := 0
	for _, booking := range expired {
		if err := w.expire(ctx, booking); err != nil {
			log.Error("failed to expire booking",
				zap.String("booking_id", booking.ID), zap.Error(err))
			continue
		}
		reaped++
	}

	if reaped > 0 {
		metrics.RecordExpiration(ctx, int64(reaped))
		w.mu.Lock()
		w.totalExpired += int64(reaped)
		w.mu.Unlock()
	}
	return reaped
}

func (w *Reaper) expire(ctx context.Context, booking *domain.Booking) error {
	err := w.bookingRepo.CancelPending(ctx, booking.ID, domain.PaymentStatusCanceled, "payment session expired")
	if err != nil {
		// A webhook confirmed or cancelled it between the scan and now.
		if errors.Is(err, domain.ErrAlreadyCancelled) ||
			errors.Is(err, domain.ErrInvalidBookingStatus) ||
			errors.Is(err, domain.ErrBookingNotFound) {
			return nil
		}
		return err
	}

	// Settle the provider attempt alongside the booking.
	if txn, txnErr := w.txnRepo.GetBySessionID(ctx, booking.ProviderSessionID); txnErr == nil {
		if cancelErr := txn.Cancel(); cancelErr == nil {
			if updErr := w.txnRepo.Update(ctx, txn); updErr != nil {
				logger.Get().Warn("failed to cancel transaction for expired session",
					zap.String("transaction_id", txn.ID), zap.Error(updErr))
			}
		}
	}

	if pubErr := w.eventPublisher.PublishBookingExpired(ctx, booking); pubErr != nil {
		logger.Get().Warn("failed to publish booking.expired",
			zap.String("booking_id", booking.ID), zap.Error(pubErr))
	}

	logger.Get().Info("expired stale payment session",
		zap.String("booking_id", booking.ID),
		zap.String("user_id", booking.UserID))
	return nil
}

// Stats returns reaper counters for the health endpoint
func (w *Reaper) Stats() ReaperStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ReaperStats{
		IsRunning:    w.running,
		TotalExpired: w.totalExpired,
		LastScanTime: w.lastScanTime,
	}
}

// ReaperStats contains reaper counters
type ReaperStats struct {
	IsRunning    bool      `json:"is_running"`
	TotalExpired int64     `json:"total_expired"`
	LastScanTime time.Time `json:"last_scan_time"`
}
