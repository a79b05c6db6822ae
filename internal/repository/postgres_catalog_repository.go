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

// PostgresCatalogRepository implements CatalogRepository using PostgreSQL
type PostgresCatalogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalogRepository creates a new PostgresCatalogRepository
func NewPostgresCatalogRepository(pool *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

// GetClass retrieves a class by its ID
func (r *PostgresCatalogRepository) GetClass(ctx context.Context, id string) (*domain.Class, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_class")
	defer span.End()

	span.SetAttributes(attribute.String("class_id", id))

	query := `
		SELECT id, title, instructor_name, venue, price, max_students,
			current_students, is_active, start_time, end_time
		FROM classes
		WHERE id = $1
	`

	class := &domain.Class{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&class.ID,
		&class.Title,
		&class.InstructorName,
		&class.Venue,
		&class.Price,
		&class.MaxStudents,
		&class.CurrentStudents,
		&class.IsActive,
		&class.StartTime,
		&class.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrClassNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get class: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return class, nil
}

// GetEvent retrieves an event by its ID
func (r *PostgresCatalogRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	query := `
		SELECT id, title, organizer_name, venue, price, max_attendees,
			current_attendees, status, start_time, end_time
		FROM events
		WHERE id = $1
	`

	event := &domain.Event{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.OrganizerName,
		&event.Venue,
		&event.Price,
		&event.MaxAttendees,
		&event.CurrentAttendees,
		&event.Status,
		&event.StartTime,
		&event.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// GetUser retrieves a user by its ID
func (r *PostgresCatalogRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_user")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", id))

	query := `SELECT id, email, full_name FROM users WHERE id = $1`

	user := &domain.User{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &user.FullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrUserNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return user, nil
}

var _ CatalogRepository = (*PostgresCatalogRepository)(nil)
