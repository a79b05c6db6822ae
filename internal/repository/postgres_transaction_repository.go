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

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

// PostgresTransactionRepository implements TransactionRepository using PostgreSQL
type PostgresTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactionRepository creates a new PostgresTransactionRepository
func NewPostgresTransactionRepository(pool *pgxpool.Pool) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{pool: pool}
}

const transactionColumns = `
	id, booking_id, user_id, provider, session_id, provider_payment_id,
	type, status, amount, currency, failure_reason, raw_payload,
	created_at, updated_at
`

// Create creates a new payment transaction record
func (r *PostgresTransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("transaction_id", txn.ID),
		attribute.String("booking_id", txn.BookingID),
		attribute.String("provider", string(txn.Provider)),
	)

	query := `
		INSERT INTO payment_transactions (
			id, booking_id, user_id, provider, session_id, provider_payment_id,
			type, status, amount, currency, failure_reason, raw_payload,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14
		)
	`

	_, err := r.pool.Exec(ctx, query,
		txn.ID,
		txn.BookingID,
		txn.UserID,
		string(txn.Provider),
		nullString(txn.SessionID),
		nullString(txn.ProviderPaymentID),
		txn.Type,
		string(txn.Status),
		txn.Amount,
		txn.Currency,
		nullString(txn.FailureReason),
		txn.RawPayload,
		txn.CreatedAt,
		txn.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a transaction by its ID
func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.get_by_id")
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

// GetByBookingID retrieves all transactions for a booking, newest first
func (r *PostgresTransactionRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*domain.Transaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.get_by_booking")
	defer span.End()

	query := `SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE booking_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get transactions by booking ID: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransactionRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(txns)))
	span.SetStatus(codes.Ok, "")
	return txns, nil
}

// GetBySessionID retrieves a transaction by the provider session id
func (r *PostgresTransactionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Transaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.get_by_session")
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE session_id = $1`
	return r.queryOne(ctx, query, sessionID)
}

// GetByProviderPaymentID retrieves a transaction by the provider payment id
func (r *PostgresTransactionRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Transaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.get_by_provider_payment")
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE provider_payment_id = $1`
	return r.queryOne(ctx, query, providerPaymentID)
}

// Update updates an existing transaction
func (r *PostgresTransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.update")
	defer span.End()

	span.SetAttributes(attribute.String("transaction_id", txn.ID))

	query := `
		UPDATE payment_transactions SET
			status = $2,
			provider_payment_id = $3,
			failure_reason = $4,
			raw_payload = $5,
			updated_at = $6
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		txn.ID,
		string(txn.Status),
		nullString(txn.ProviderPaymentID),
		nullString(txn.FailureReason),
		txn.RawPayload,
		time.Now(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrTransactionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete deletes a transaction by its ID
func (r *PostgresTransactionRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.transaction.delete")
	defer span.End()

	result, err := r.pool.Exec(ctx, `DELETE FROM payment_transactions WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrTransactionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *PostgresTransactionRepository) queryOne(ctx context.Context, query string, arg any) (*domain.Transaction, error) {
	txn, err := scanTransactionRow(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// scanTransactionRow scans a row into a Transaction struct
func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	var (
		provider          string
		sessionID         *string
		providerPaymentID *string
		status            string
		failureReason     *string
	)

	err := row.Scan(
		&txn.ID,
		&txn.BookingID,
		&txn.UserID,
		&provider,
		&sessionID,
		&providerPaymentID,
		&txn.Type,
		&status,
		&txn.Amount,
		&txn.Currency,
		&failureReason,
		&txn.RawPayload,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Provider = domain.Provider(provider)
	txn.Status = domain.TransactionStatus(status)
	if sessionID != nil {
		txn.SessionID = *sessionID
	}
	if providerPaymentID != nil {
		txn.ProviderPaymentID = *providerPaymentID
	}
	if failureReason != nil {
		txn.FailureReason = *failureReason
	}

	return txn, nil
}

var _ TransactionRepository = (*PostgresTransactionRepository)(nil)
