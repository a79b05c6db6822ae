package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

const bookingColumns = `
	id, user_id, class_id, event_id, status, payment_status,
	total_amount, amount_paid, discount_amount, tax_amount,
	confirmation_code, payment_method, provider_session_id,
	cancellation_reason, cancelled_at, confirmed_at,
	rescheduled_from_class_id, created_from, created_at, updated_at
`

// Create creates a new booking record in the database
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("user_id", booking.UserID),
	)

	query := `
		INSERT INTO bookings (
			id, user_id, class_id, event_id, status, payment_status,
			total_amount, amount_paid, discount_amount, tax_amount,
			confirmation_code, payment_method, provider_session_id,
			rescheduled_from_class_id, created_from, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17
		)
	`

	_, err := r.pool.Exec(ctx, query,
		booking.ID,
		booking.UserID,
		nullString(booking.ClassID),
		nullString(booking.EventID),
		booking.Status.String(),
		booking.PaymentStatus,
		booking.TotalAmount,
		booking.AmountPaid,
		booking.DiscountAmount,
		booking.TaxAmount,
		booking.ConfirmationCode,
		nullString(booking.PaymentMethod),
		nullString(booking.ProviderSessionID),
		nullString(booking.RescheduledFromClassID),
		nullString(booking.CreatedFrom),
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetBySessionID retrieves a booking by its provider session id
func (r *PostgresBookingRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_session")
	defer span.End()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE provider_session_id = $1`

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking by session: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByUserID retrieves all bookings for a user
func (r *PostgresBookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_user_id")
	defer span.End()

	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get bookings by user ID: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// Update updates an existing booking
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", booking.ID))

	query := `
		UPDATE bookings SET
			status = $2,
			payment_status = $3,
			total_amount = $4,
			amount_paid = $5,
			payment_method = $6,
			provider_session_id = $7,
			cancellation_reason = $8,
			cancelled_at = $9,
			confirmed_at = $10,
			updated_at = $11
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		booking.ID,
		booking.Status.String(),
		booking.PaymentStatus,
		booking.TotalAmount,
		booking.AmountPaid,
		nullString(booking.PaymentMethod),
		nullString(booking.ProviderSessionID),
		nullString(booking.CancellationReason),
		booking.CancelledAt,
		booking.ConfirmedAt,
		time.Now(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete deletes a booking by its ID. Used to clean up an orphan PENDING
// booking when the payment provider call fails.
func (r *PostgresBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.delete")
	defer span.End()

	result, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ConfirmAndReserveSeat confirms a PENDING booking and increments the
// capacity counter inside one transaction. The conditional status update is
// the idempotency guard: a replayed confirmation affects zero rows and the
// counter is never touched twice.
func (r *PostgresBookingRepository) ConfirmAndReserveSeat(ctx context.Context, id string, amountPaid float64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	result, err := tx.Exec(ctx, `
		UPDATE bookings SET
			status = $2,
			payment_status = $3,
			amount_paid = $4,
			confirmed_at = $5,
			updated_at = $5
		WHERE id = $1 AND status = 'PENDING'
	`, id, domain.BookingStatusConfirmed.String(), domain.PaymentStatusSucceeded, amountPaid, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to confirm booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				span.SetStatus(codes.Error, "not found")
				return domain.ErrBookingNotFound
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to check booking status: %w", err)
		}
		if status == domain.BookingStatusConfirmed.String() {
			span.SetStatus(codes.Error, "already confirmed")
			return domain.ErrAlreadyConfirmed
		}
		span.SetStatus(codes.Error, "invalid status")
		return domain.ErrInvalidBookingStatus
	}

	if err := r.adjustCounter(ctx, tx, id, +1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit confirmation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CancelPending cancels a PENDING booking. The booking never held a seat, so
// no counter changes.
func (r *PostgresBookingRepository) CancelPending(ctx context.Context, id, paymentStatus, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.cancel_pending")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	now := time.Now()
	result, err := r.pool.Exec(ctx, `
		UPDATE bookings SET
			status = $2,
			payment_status = $3,
			cancellation_reason = $4,
			cancelled_at = $5,
			updated_at = $5
		WHERE id = $1 AND status = 'PENDING'
	`, id, domain.BookingStatusCancelled.String(), paymentStatus, nullString(reason), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.classifyCancelMiss(ctx, span, id)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CancelConfirmedAndReleaseSeat cancels a CONFIRMED booking and decrements
// the capacity counter inside one transaction.
func (r *PostgresBookingRepository) CancelConfirmedAndReleaseSeat(ctx context.Context, id, paymentStatus, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.cancel_confirmed")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	result, err := tx.Exec(ctx, `
		UPDATE bookings SET
			status = $2,
			payment_status = $3,
			cancellation_reason = $4,
			cancelled_at = $5,
			updated_at = $5
		WHERE id = $1 AND status = 'CONFIRMED'
	`, id, domain.BookingStatusCancelled.String(), paymentStatus, nullString(reason), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.classifyCancelMiss(ctx, span, id)
	}

	if err := r.adjustCounter(ctx, tx, id, -1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Reschedule atomically moves a class booking to a new class. For CONFIRMED
// bookings the old class counter is decremented and the new one incremented
// with a capacity guard; PENDING bookings only have their fields rewritten.
func (r *PostgresBookingRepository) Reschedule(ctx context.Context, id, newClassID string, newTotal float64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.reschedule")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("new_class_id", newClassID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var oldClassID *string
	var status string
	err = tx.QueryRow(ctx, `SELECT class_id, status FROM bookings WHERE id = $1 FOR UPDATE`, id).Scan(&oldClassID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to lock booking: %w", err)
	}
	if oldClassID == nil {
		span.SetStatus(codes.Error, "not a class booking")
		return domain.ErrNotClassBooking
	}
	if status == domain.BookingStatusCancelled.String() {
		span.SetStatus(codes.Error, "already cancelled")
		return domain.ErrAlreadyCancelled
	}

	if status == domain.BookingStatusConfirmed.String() {
		result, err := tx.Exec(ctx, `
			UPDATE classes SET current_students = current_students + 1
			WHERE id = $1 AND current_students < max_students
		`, newClassID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to reserve seat in new class: %w", err)
		}
		if result.RowsAffected() == 0 {
			span.SetStatus(codes.Error, "class full")
			return domain.ErrInsufficientSeats
		}

		if _, err := tx.Exec(ctx, `
			UPDATE classes SET current_students = current_students - 1
			WHERE id = $1 AND current_students > 0
		`, *oldClassID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to release seat in old class: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET
			class_id = $2,
			total_amount = $3,
			rescheduled_from_class_id = $4,
			updated_at = $5
		WHERE id = $1
	`, id, newClassID, newTotal, *oldClassID, time.Now()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to reschedule booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit reschedule: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetExpiredPending returns PENDING bookings created before the cutoff
func (r *PostgresBookingRepository) GetExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_expired_pending")
	defer span.End()

	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get expired pending bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// adjustCounter moves the capacity counter for whichever item the booking
// points at. The increment is guarded by the max so two racing confirmations
// cannot overbook; the decrement is guarded by zero.
func (r *PostgresBookingRepository) adjustCounter(ctx context.Context, tx pgx.Tx, bookingID string, delta int) error {
	var query string
	if delta > 0 {
		query = `
			UPDATE classes SET current_students = current_students + 1
			WHERE id = (SELECT class_id FROM bookings WHERE id = $1)
				AND current_students < max_students
		`
	} else {
		query = `
			UPDATE classes SET current_students = current_students - 1
			WHERE id = (SELECT class_id FROM bookings WHERE id = $1)
				AND current_students > 0
		`
	}

	result, err := tx.Exec(ctx, query, bookingID)
	if err != nil {
		return fmt.Errorf("failed to adjust class counter: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Not a class booking (or the class guard failed); try the event counter.
	if delta > 0 {
		query = `
			UPDATE events SET current_attendees = current_attendees + 1
			WHERE id = (SELECT event_id FROM bookings WHERE id = $1)
				AND current_attendees < max_attendees
		`
	} else {
		query = `
			UPDATE events SET current_attendees = current_attendees - 1
			WHERE id = (SELECT event_id FROM bookings WHERE id = $1)
				AND current_attendees > 0
		`
	}

	result, err = tx.Exec(ctx, query, bookingID)
	if err != nil {
		return fmt.Errorf("failed to adjust event counter: %w", err)
	}
	if result.RowsAffected() == 0 {
		if delta > 0 {
			return domain.ErrInsufficientSeats
		}
		// Decrement guard failed: the counter is already zero. Nothing to release.
	}
	return nil
}

// classifyCancelMiss distinguishes why a conditional cancel affected no rows
func (r *PostgresBookingRepository) classifyCancelMiss(ctx context.Context, span trace.Span, id string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to check booking status: %w", err)
	}
	if status == domain.BookingStatusCancelled.String() {
		span.SetStatus(codes.Error, "already cancelled")
		return domain.ErrAlreadyCancelled
	}
	span.SetStatus(codes.Error, "invalid status")
	return domain.ErrInvalidBookingStatus
}

// scanBookingRow scans a row into a Booking struct
func scanBookingRow(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		classID            *string
		eventID            *string
		status             string
		paymentMethod      *string
		providerSessionID  *string
		cancellationReason *string
		cancelledAt        *time.Time
		confirmedAt        *time.Time
		rescheduledFrom    *string
		createdFrom        *string
	)

	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&classID,
		&eventID,
		&status,
		&booking.PaymentStatus,
		&booking.TotalAmount,
		&booking.AmountPaid,
		&booking.DiscountAmount,
		&booking.TaxAmount,
		&booking.ConfirmationCode,
		&paymentMethod,
		&providerSessionID,
		&cancellationReason,
		&cancelledAt,
		&confirmedAt,
		&rescheduledFrom,
		&createdFrom,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	if classID != nil {
		booking.ClassID = *classID
	}
	if eventID != nil {
		booking.EventID = *eventID
	}
	if paymentMethod != nil {
		booking.PaymentMethod = *paymentMethod
	}
	if providerSessionID != nil {
		booking.ProviderSessionID = *providerSessionID
	}
	if cancellationReason != nil {
		booking.CancellationReason = *cancellationReason
	}
	booking.CancelledAt = cancelledAt
	booking.ConfirmedAt = confirmedAt
	if rescheduledFrom != nil {
		booking.RescheduledFromClassID = *rescheduledFrom
	}
	if createdFrom != nil {
		booking.CreatedFrom = *createdFrom
	}

	return booking, nil
}

// nullString converts an empty string to a nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresBookingRepository implements BookingRepository
var _ BookingRepository = (*PostgresBookingRepository)(nil)
