package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classbook/internal/config"
	"github.com/stemsi/classbook/internal/model"
)

// EnrollmentRepository handles enrollment data access.
type EnrollmentRepository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool, txTimeout time.Duration) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool, txTimeout: txTimeout}
}

// CreateWithinCapacity counts the enrollments of e's occurrence and inserts e
// only while the count is below capacity. The transaction holds an advisory
// lock on the occurrence key, so concurrent callers for the same occurrence
// are serialised by PostgreSQL while other occurrences proceed in parallel.
func (r *EnrollmentRepository) CreateWithinCapacity(ctx context.Context, e *model.Enrollment, capacity int) error {
	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		key := config.CacheKey.OccurrenceKey(e.ClassID, e.OccurrenceDate)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock occurrence: %w", err)
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND occurrence_date = $2`,
			e.ClassID, e.OccurrenceDate,
		).Scan(&count); err != nil {
			return fmt.Errorf("count enrollments: %w", err)
		}
		if count >= capacity {
			return ErrCapacityReached
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO enrollments (id, class_id, occurrence_date, name, phone, insurance)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			e.ID, e.ClassID, e.OccurrenceDate, e.Name, e.Phone, e.Insurance,
		).Scan(&e.CreatedAt)
		// The class was deleted after the caller looked it up.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrNotFound
		}
		return err
	})
}

// CountByOccurrence returns the number of enrollments for one occurrence.
func (r *EnrollmentRepository) CountByOccurrence(ctx context.Context, classID uuid.UUID, date time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND occurrence_date = $2`,
		classID, date,
	).Scan(&count)
	return count, err
}

// ListByClass returns a class's enrollments ordered by occurrence date, then
// signup time.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID uuid.UUID) ([]model.Enrollment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, class_id, occurrence_date, name, phone, insurance, created_at
		 FROM enrollments WHERE class_id = $1
		 ORDER BY occurrence_date, created_at, id`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.ID, &e.ClassID, &e.OccurrenceDate, &e.Name, &e.Phone, &e.Insurance, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
