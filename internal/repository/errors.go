package repository

import "errors"

// Errors shared by every store implementation.
var (
	ErrNotFound        = errors.New("record not found")
	ErrCapacityReached = errors.New("occurrence capacity reached")
	ErrVersionConflict = errors.New("catalog version conflict")
)

// catalogRowID is the single row holding the catalog order.
const catalogRowID = 1

// pgForeignKeyViolation is the SQLSTATE of a foreign key violation.
const pgForeignKeyViolation = "23503"
