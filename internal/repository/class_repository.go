package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classbook/internal/model"
)

// ClassRepository handles class data access.
type ClassRepository struct {
	pool *pgxpool.Pool
}

// NewClassRepository creates a new ClassRepository.
func NewClassRepository(pool *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

const classColumns = `id, title, description, start_date, capacity, frequency, days_of_week,
	        COALESCE(image_type, ''), image IS NOT NULL, created_at, updated_at`

func scanClass(row pgx.Row, c *model.ClassDefinition) error {
	return row.Scan(&c.ID, &c.Title, &c.Description, &c.StartDate, &c.Capacity, &c.Frequency,
		&c.DaysOfWeek, &c.ImageType, &c.HasImage, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID retrieves a class by its ID. Image bytes are not loaded.
func (r *ClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ClassDefinition, error) {
	c := &model.ClassDefinition{}
	err := scanClass(r.pool.QueryRow(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = $1`, id), c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List retrieves all classes in creation order.
func (r *ClassRepository) List(ctx context.Context) ([]model.ClassDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+classColumns+` FROM classes ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.ClassDefinition
	for rows.Next() {
		var c model.ClassDefinition
		if err := scanClass(rows, &c); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// GetImage returns the stored image and its MIME type.
func (r *ClassRepository) GetImage(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	var img []byte
	var mime *string
	err := r.pool.QueryRow(ctx,
		`SELECT image, image_type FROM classes WHERE id = $1`, id,
	).Scan(&img, &mime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if img == nil || mime == nil {
		return nil, "", ErrNotFound
	}
	return img, *mime, nil
}

// Create inserts a new class and appends it to the catalog order in the same
// transaction.
func (r *ClassRepository) Create(ctx context.Context, c *model.ClassDefinition) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO classes (id, title, description, start_date, capacity, frequency, days_of_week, image, image_type)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
			 RETURNING created_at, updated_at`,
			c.ID, c.Title, c.Description, c.StartDate, c.Capacity, c.Frequency, c.DaysOfWeek, c.Image, c.ImageType,
		).Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert class: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE catalog_order
			 SET class_ids = array_append(class_ids, $1), version = version + 1
			 WHERE id = $2
			 RETURNING cardinality(class_ids) - 1`,
			c.ID, catalogRowID,
		).Scan(&c.DisplayOrder)
		if err != nil {
			return fmt.Errorf("append to catalog: %w", err)
		}
		return nil
	})
}

// Update modifies an existing class. The image is replaced only when
// c.Image is non-nil.
func (r *ClassRepository) Update(ctx context.Context, c *model.ClassDefinition) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE classes
		 SET title = $1, description = $2, start_date = $3, capacity = $4, frequency = $5, days_of_week = $6,
		     image = COALESCE($7, image), image_type = COALESCE(NULLIF($8, ''), image_type),
		     updated_at = NOW()
		 WHERE id = $9
		 RETURNING image IS NOT NULL, COALESCE(image_type, ''), created_at, updated_at,
		     COALESCE((SELECT array_position(class_ids, $9) - 1 FROM catalog_order WHERE id = $10), 0)`,
		c.Title, c.Description, c.StartDate, c.Capacity, c.Frequency, c.DaysOfWeek, c.Image, c.ImageType, c.ID, catalogRowID,
	).Scan(&c.HasImage, &c.ImageType, &c.CreatedAt, &c.UpdatedAt, &c.DisplayOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes a class, its enrollments and its catalog entry atomically.
func (r *ClassRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM enrollments WHERE class_id = $1`, id); err != nil {
			return fmt.Errorf("delete enrollments: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM classes WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete class: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`UPDATE catalog_order
			 SET class_ids = array_remove(class_ids, $1), version = version + 1
			 WHERE id = $2`,
			id, catalogRowID,
		); err != nil {
			return fmt.Errorf("remove from catalog: %w", err)
		}
		return nil
	})
}
