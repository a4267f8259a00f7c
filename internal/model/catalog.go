package model

import "github.com/google/uuid"

// CatalogOrder is the persisted display order of classes. Version increases
// on every write and guards against lost updates.
type CatalogOrder struct {
	IDs     []uuid.UUID `json:"ids"`
	Version int64       `json:"version"`
}

// ReorderRequest replaces the full order.
type ReorderRequest struct {
	IDs     []string `json:"ids" binding:"required,dive,uuid"`
	Version *int64   `json:"version" binding:"required"`
}

// SwapRequest exchanges two positions.
type SwapRequest struct {
	PositionA *int   `json:"a" binding:"required"`
	PositionB *int   `json:"b" binding:"required"`
	Version   *int64 `json:"version" binding:"required"`
}
