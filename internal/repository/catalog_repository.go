package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/classbook/internal/model"
)

// CatalogRepository persists the display order of classes as a single
// versioned row.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetOrder returns the current order and its version.
func (r *CatalogRepository) GetOrder(ctx context.Context) (*model.CatalogOrder, error) {
	o := &model.CatalogOrder{}
	err := r.pool.QueryRow(ctx,
		`SELECT class_ids, version FROM catalog_order WHERE id = $1`, catalogRowID,
	).Scan(&o.IDs, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.CatalogOrder{IDs: []uuid.UUID{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ReplaceOrder writes ids as the new order if the stored version still equals
// expectedVersion. A stale version yields ErrVersionConflict.
func (r *CatalogRepository) ReplaceOrder(ctx context.Context, ids []uuid.UUID, expectedVersion int64) (*model.CatalogOrder, error) {
	o := &model.CatalogOrder{IDs: ids}
	err := r.pool.QueryRow(ctx,
		`UPDATE catalog_order SET class_ids = $1, version = version + 1
		 WHERE id = $2 AND version = $3
		 RETURNING version`,
		ids, catalogRowID, expectedVersion,
	).Scan(&o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}
