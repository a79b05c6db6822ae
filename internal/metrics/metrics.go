package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

var (
	// Session counters
	SessionsCreated        *telemetry.Counter
	SessionCreateFailures  *telemetry.Counter

	// Webhook counters
	WebhooksReceived  *telemetry.Counter
	WebhooksProcessed *telemetry.Counter
	WebhooksDuplicate *telemetry.Counter
	WebhooksFailed    *telemetry.Counter

	// Booking lifecycle counters
	BookingsConfirmed   *telemetry.Counter
	BookingsCancelled   *telemetry.Counter
	BookingsRescheduled *telemetry.Counter
	BookingsExpired     *telemetry.Counter
	WaitlistPromotions  *telemetry.Counter

	// Histograms
	WebhookProcessingTime *telemetry.Histogram
	RefundAmount          *telemetry.Histogram

	// Gauges
	PendingBookings *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking engine metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	SessionsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_sessions_created_total",
		Description: "Total number of payment sessions created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SessionCreateFailures, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_session_failures_total",
		Description: "Total number of provider session creation failures",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksReceived, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "webhooks_received_total",
		Description: "Total number of webhook deliveries received",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksProcessed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "webhooks_processed_total",
		Description: "Total number of webhook deliveries processed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksDuplicate, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "webhooks_duplicate_total",
		Description: "Total number of duplicate webhook deliveries skipped",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "webhooks_failed_total",
		Description: "Total number of webhook deliveries that failed processing",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_confirmed_total",
		Description: "Total number of bookings confirmed via webhook",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_cancelled_total",
		Description: "Total number of bookings cancelled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsRescheduled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_rescheduled_total",
		Description: "Total number of bookings rescheduled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "bookings_expired_total",
		Description: "Total number of expired pending bookings reaped",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitlistPromotions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "waitlist_promotions_total",
		Description: "Total number of waitlist entries promoted",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhookProcessingTime, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "webhook_processing_seconds",
		Description: "Time spent processing a webhook delivery",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5})
	if err != nil {
		return err
	}

	RefundAmount, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "refund_amount",
		Description: "Refund amounts created by cancellations and reschedules",
		Unit:        "USD",
	}, []float64{5, 10, 25, 50, 100, 250, 500})
	if err != nil {
		return err
	}

	PendingBookings, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "pending_bookings",
		Description: "Number of bookings currently awaiting payment",
		Unit:        "1",
	})
	return err
}

// RecordSessionCreated records a successfully created payment session
func RecordSessionCreated(ctx context.Context, provider string) {
	if SessionsCreated != nil {
		SessionsCreated.Inc(ctx, attribute.String("provider", provider))
	}
	if PendingBookings != nil {
		PendingBookings.Inc(ctx)
	}
}

// RecordSessionFailure records a provider session creation failure
func RecordSessionFailure(ctx context.Context, provider string) {
	if SessionCreateFailures != nil {
		SessionCreateFailures.Inc(ctx, attribute.String("provider", provider))
	}
}

// RecordConfirmation records a booking confirmed by reconciliation
func RecordConfirmation(ctx context.Context, provider string) {
	if BookingsConfirmed != nil {
		BookingsConfirmed.Inc(ctx, attribute.String("provider", provider))
	}
	if PendingBookings != nil {
		PendingBookings.Dec(ctx)
	}
}

// RecordCancellation records a booking cancellation
func RecordCancellation(ctx context.Context, wasPending bool) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx)
	}
	if wasPending && PendingBookings != nil {
		PendingBookings.Dec(ctx)
	}
}

// RecordReschedule records a booking moved to a different class
func RecordReschedule(ctx context.Context) {
	if BookingsRescheduled != nil {
		BookingsRescheduled.Inc(ctx)
	}
}

// RecordExpiration records reaped pending bookings
func RecordExpiration(ctx context.Context, count int64) {
	if BookingsExpired != nil {
		BookingsExpired.Add(ctx, count)
	}
	if PendingBookings != nil {
		PendingBookings.Add(ctx, -count)
	}
}

// RecordWaitlistPromotion records a waitlist entry converted to a booking
func RecordWaitlistPromotion(ctx context.Context) {
	if WaitlistPromotions != nil {
		WaitlistPromotions.Inc(ctx)
	}
}

// RecordWebhookReceived records a webhook delivery before verification
func RecordWebhookReceived(ctx context.Context, provider string) {
	if WebhooksReceived != nil {
		WebhooksReceived.Inc(ctx, attribute.String("provider", provider))
	}
}

// RecordWebhook records one processed webhook delivery
func RecordWebhook(ctx context.Context, provider, eventType string, seconds float64) {
	if WebhooksProcessed != nil {
		WebhooksProcessed.Inc(ctx,
			attribute.String("provider", provider),
			attribute.String("event_type", eventType),
		)
	}
	if WebhookProcessingTime != nil {
		WebhookProcessingTime.Record(ctx, seconds,
			attribute.String("provider", provider),
		)
	}
}

// RecordRefund records a refund request
func RecordRefund(ctx context.Context, amount float64) {
	if RefundAmount != nil {
		RefundAmount.Record(ctx, amount)
	}
}
