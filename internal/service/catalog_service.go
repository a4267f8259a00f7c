package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/repository"
)

// CatalogStore persists the catalog order. ReplaceOrder must write the whole
// sequence atomically and return repository.ErrVersionConflict when the stored
// version differs from expectedVersion.
type CatalogStore interface {
	GetOrder(ctx context.Context) (*model.CatalogOrder, error)
	ReplaceOrder(ctx context.Context, ids []uuid.UUID, expectedVersion int64) (*model.CatalogOrder, error)
}

// ClassLister lists every class definition in no particular order.
type ClassLister interface {
	List(ctx context.Context) ([]model.ClassDefinition, error)
}

// ListFilter selects which classes the catalog returns.
type ListFilter int

const (
	// FilterOngoing keeps classes with an occurrence today or later.
	FilterOngoing ListFilter = iota
	FilterAll
)

// CatalogService owns the manual display order of classes.
type CatalogService struct {
	order   CatalogStore
	classes ClassLister
	now     func() time.Time
	log     zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(order CatalogStore, classes ClassLister, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		order:   order,
		classes: classes,
		now:     time.Now,
		log:     log.With().Str("component", "catalog_service").Logger(),
	}
}

// Snapshot returns the current order and its version token.
func (s *CatalogService) Snapshot(ctx context.Context) (*model.CatalogOrder, error) {
	o, err := s.order.GetOrder(ctx)
	if err != nil {
		return nil, storeErr("get catalog order", err)
	}
	return o, nil
}

// Swap exchanges the classes at positions a and b. It is a no-op returning the
// unchanged order when either position is out of range. A write based on a
// stale version fails with ErrConcurrencyConflict.
func (s *CatalogService) Swap(ctx context.Context, a, b int, expectedVersion int64) (*model.CatalogOrder, error) {
	cur, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if cur.Version != expectedVersion {
		return nil, ErrConcurrencyConflict
	}
	if a < 0 || b < 0 || a >= len(cur.IDs) || b >= len(cur.IDs) || a == b {
		return cur, nil
	}

	next := make([]uuid.UUID, len(cur.IDs))
	copy(next, cur.IDs)
	next[a], next[b] = next[b], next[a]

	return s.write(ctx, next, expectedVersion)
}

// Reorder replaces the order with ids, which must be a permutation of the
// current order.
func (s *CatalogService) Reorder(ctx context.Context, ids []uuid.UUID, expectedVersion int64) (*model.CatalogOrder, error) {
	cur, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if cur.Version != expectedVersion {
		return nil, ErrConcurrencyConflict
	}
	if !isPermutation(cur.IDs, ids) {
		verr := &ValidationError{}
		verr.add("ids", "must contain every class exactly once")
		return nil, verr
	}
	return s.write(ctx, ids, expectedVersion)
}

func (s *CatalogService) write(ctx context.Context, ids []uuid.UUID, expectedVersion int64) (*model.CatalogOrder, error) {
	o, err := s.order.ReplaceOrder(ctx, ids, expectedVersion)
	if errors.Is(err, repository.ErrVersionConflict) {
		s.log.Info().Int64("version", expectedVersion).Msg("Catalog write rejected, stale version")
		return nil, ErrConcurrencyConflict
	}
	if err != nil {
		return nil, storeErr("replace catalog order", err)
	}
	s.log.Info().Int64("version", o.Version).Msg("Catalog order updated")
	return o, nil
}

// List returns classes by display order. Classes missing from the stored
// order are placed after the ordered ones, oldest first.
func (s *CatalogService) List(ctx context.Context, filter ListFilter) ([]model.ClassDefinition, error) {
	o, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.classes.List(ctx)
	if err != nil {
		return nil, storeErr("list classes", err)
	}

	byID := make(map[uuid.UUID]model.ClassDefinition, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}

	ordered := make([]model.ClassDefinition, 0, len(all))
	for _, id := range o.IDs {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
			delete(byID, id)
		}
	}
	// List returns rows by creation time; keep that for the stragglers.
	for _, c := range all {
		if _, ok := byID[c.ID]; ok {
			ordered = append(ordered, c)
		}
	}

	today := recurrence.Normalize(s.now())
	out := make([]model.ClassDefinition, 0, len(ordered))
	for i, c := range ordered {
		c.DisplayOrder = i
		if filter == FilterOngoing && !recurrence.HasUpcoming(c.Rule(), today) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func isPermutation(cur, next []uuid.UUID) bool {
	if len(cur) != len(next) {
		return false
	}
	seen := make(map[uuid.UUID]int, len(cur))
	for _, id := range cur {
		seen[id]++
	}
	for _, id := range next {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

// ParseFilter maps the query flag to a ListFilter.
func ParseFilter(all bool) ListFilter {
	if all {
		return FilterAll
	}
	return FilterOngoing
}
