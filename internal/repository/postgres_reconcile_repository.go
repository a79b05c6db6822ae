package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

// PostgresRefundRepository implements RefundRepository using PostgreSQL
type PostgresRefundRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRefundRepository creates a new PostgresRefundRepository
func NewPostgresRefundRepository(pool *pgxpool.Pool) *PostgresRefundRepository {
	return &PostgresRefundRepository{pool: pool}
}

// Create records a refund request. Settlement happens outside the engine, so
// rows stay PENDING here.
func (r *PostgresRefundRepository) Create(ctx context.Context, refund *domain.Refund) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.refund.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", refund.BookingID),
		attribute.Float64("amount", refund.Amount),
	)

	query := `
		INSERT INTO refunds (
			id, booking_id, user_id, amount, status, reason, requested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		refund.ID,
		refund.BookingID,
		refund.UserID,
		refund.Amount,
		refund.Status,
		nullString(refund.Reason),
		refund.RequestedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create refund: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByBookingID returns refund requests for a booking, newest first
func (r *PostgresRefundRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*domain.Refund, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.refund.get_by_booking")
	defer span.End()

	query := `
		SELECT id, booking_id, user_id, amount, status, reason, requested_at
		FROM refunds
		WHERE booking_id = $1
		ORDER BY requested_at DESC
	`

	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*domain.Refund
	for rows.Next() {
		refund := &domain.Refund{}
		var reason *string
		if err := rows.Scan(
			&refund.ID,
			&refund.BookingID,
			&refund.UserID,
			&refund.Amount,
			&refund.Status,
			&reason,
			&refund.RequestedAt,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		if reason != nil {
			refund.Reason = *reason
		}
		refunds = append(refunds, refund)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating refunds: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return refunds, nil
}

// PostgresAuditLogRepository implements AuditLogRepository using PostgreSQL
type PostgresAuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditLogRepository creates a new PostgresAuditLogRepository
func NewPostgresAuditLogRepository(pool *pgxpool.Pool) *PostgresAuditLogRepository {
	return &PostgresAuditLogRepository{pool: pool}
}

// Create records a provider incident for manual review
func (r *PostgresAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.audit.create")
	defer span.End()

	query := `
		INSERT INTO audit_logs (id, transaction_id, booking_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		nullString(entry.TransactionID),
		nullString(entry.BookingID),
		entry.Action,
		nullString(entry.Detail),
		entry.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// PostgresWebhookEventRepository implements WebhookEventRepository using PostgreSQL
type PostgresWebhookEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresWebhookEventRepository creates a new PostgresWebhookEventRepository
func NewPostgresWebhookEventRepository(pool *pgxpool.Pool) *PostgresWebhookEventRepository {
	return &PostgresWebhookEventRepository{pool: pool}
}

// MarkProcessed records a provider event id. ON CONFLICT DO NOTHING makes
// redelivered events report zero rows, which the reconciler treats as a
// duplicate and skips.
func (r *PostgresWebhookEventRepository) MarkProcessed(ctx context.Context, provider domain.Provider, eventID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.webhook_event.mark_processed")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("event_id", eventID),
	)

	result, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (provider, event_id, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (provider, event_id) DO NOTHING
	`, string(provider), eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}

	first := result.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("first_delivery", first))
	span.SetStatus(codes.Ok, "")
	return first, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	_ RefundRepository       = (*PostgresRefundRepository)(nil)
	_ AuditLogRepository     = (*PostgresAuditLogRepository)(nil)
	_ WebhookEventRepository = (*PostgresWebhookEventRepository)(nil)
)
