package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
)

// PostgresWaitlistRepository implements WaitlistRepository using PostgreSQL
type PostgresWaitlistRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresWaitlistRepository creates a new PostgresWaitlistRepository
func NewPostgresWaitlistRepository(pool *pgxpool.Pool) *PostgresWaitlistRepository {
	return &PostgresWaitlistRepository{pool: pool}
}

// Create inserts a waitlist entry, assigning position = max position + 1 for
// the item. The unique (user, item) index rejects duplicate joins.
func (r *PostgresWaitlistRepository) Create(ctx context.Context, entry *domain.WaitlistEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", entry.UserID),
		attribute.String("item_id", entry.ItemID()),
	)

	query := `
		INSERT INTO waitlist_entries (
			id, user_id, class_id, event_id, status, priority, position, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(position), 0) + 1
				FROM waitlist_entries
				WHERE (class_id = $3 OR event_id = $4)),
			$7, $8
		)
		RETURNING position
	`

	err := r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		nullString(entry.ClassID),
		nullString(entry.EventID),
		string(entry.Status),
		entry.Priority,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Scan(&entry.Position)

	if err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "already on waitlist")
			return domain.ErrAlreadyOnWaitlist
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}

	span.SetAttributes(attribute.Int("position", entry.Position))
	span.SetStatus(codes.Ok, "")
	return nil
}

// NextActive returns the next ACTIVE entry for the item by priority
// descending, then position ascending
func (r *PostgresWaitlistRepository) NextActive(ctx context.Context, itemType domain.BookingType, itemID string) (*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.next_active")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", itemID))

	column := "class_id"
	if itemType == domain.BookingTypeEvent {
		column = "event_id"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, class_id, event_id, status, priority, position, created_at, updated_at
		FROM waitlist_entries
		WHERE %s = $1 AND status = 'ACTIVE'
		ORDER BY priority DESC, position ASC
		LIMIT 1
	`, column)

	entry := &domain.WaitlistEntry{}
	var (
		classID *string
		eventID *string
		status  string
	)
	err := r.pool.QueryRow(ctx, query, itemID).Scan(
		&entry.ID,
		&entry.UserID,
		&classID,
		&eventID,
		&status,
		&entry.Priority,
		&entry.Position,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrWaitlistEntryNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get next waitlist entry: %w", err)
	}

	entry.Status = domain.WaitlistStatus(status)
	if classID != nil {
		entry.ClassID = *classID
	}
	if eventID != nil {
		entry.EventID = *eventID
	}

	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// MarkConverted flips an ACTIVE entry to CONVERTED. The conditional update
// makes concurrent promotions of the same entry settle to a single winner.
func (r *PostgresWaitlistRepository) MarkConverted(ctx context.Context, id string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.mark_converted")
	defer span.End()

	result, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries SET status = 'CONVERTED', updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to mark waitlist entry converted: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return result.RowsAffected() > 0, nil
}

var _ WaitlistRepository = (*PostgresWaitlistRepository)(nil)
