// Package memory is an in-process store with the same contracts as the
// PostgreSQL repositories. It backs STORAGE_DRIVER=memory and the tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/repository"
)

// Store keeps classes, enrollments and the catalog order behind one mutex.
type Store struct {
	mu          sync.Mutex
	classes     map[uuid.UUID]model.ClassDefinition
	enrollments map[uuid.UUID][]model.Enrollment
	order       []uuid.UUID
	version     int64
	now         func() time.Time

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate an unavailable store.
	FailWith error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		classes:     make(map[uuid.UUID]model.ClassDefinition),
		enrollments: make(map[uuid.UUID][]model.Enrollment),
		order:       []uuid.UUID{},
		now:         time.Now,
	}
}

// ─── Classes ──────────────────────────────────────────────────────────

// GetByID retrieves a class without its image bytes.
func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*model.ClassDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	c, ok := s.classes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := withoutImage(c)
	return &out, nil
}

// List retrieves all classes in creation order.
func (s *Store) List(_ context.Context) ([]model.ClassDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	out := make([]model.ClassDefinition, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, withoutImage(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetImage retrieves the stored image of a class and its MIME type.
func (s *Store) GetImage(_ context.Context, id uuid.UUID) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, "", s.FailWith
	}

	c, ok := s.classes[id]
	if !ok || c.Image == nil {
		return nil, "", repository.ErrNotFound
	}
	return slices.Clone(c.Image), c.ImageType, nil
}

// Create inserts a class and appends it to the catalog order.
func (s *Store) Create(_ context.Context, c *model.ClassDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.HasImage = c.Image != nil
	c.DisplayOrder = len(s.order)

	stored := *c
	stored.Image = slices.Clone(c.Image)
	stored.DaysOfWeek = slices.Clone(c.DaysOfWeek)
	s.classes[c.ID] = stored
	s.order = append(s.order, c.ID)
	s.version++
	return nil
}

// Update replaces a class. The image is kept when c.Image is nil.
func (s *Store) Update(_ context.Context, c *model.ClassDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	existing, ok := s.classes[c.ID]
	if !ok {
		return repository.ErrNotFound
	}

	updated := *c
	updated.DaysOfWeek = slices.Clone(c.DaysOfWeek)
	if c.Image == nil {
		updated.Image = existing.Image
		updated.ImageType = existing.ImageType
	} else {
		updated.Image = slices.Clone(c.Image)
	}
	updated.HasImage = updated.Image != nil
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()
	s.classes[c.ID] = updated

	c.HasImage, c.ImageType = updated.HasImage, updated.ImageType
	c.CreatedAt, c.UpdatedAt = updated.CreatedAt, updated.UpdatedAt
	c.DisplayOrder = max(slices.Index(s.order, c.ID), 0)
	return nil
}

// Delete removes a class, its enrollments and its catalog entry.
func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	if _, ok := s.classes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.classes, id)
	delete(s.enrollments, id)
	s.order = slices.DeleteFunc(s.order, func(x uuid.UUID) bool { return x == id })
	s.version++
	return nil
}

// ─── Enrollments ──────────────────────────────────────────────────────

// CreateWithinCapacity inserts e while its occurrence is below capacity.
func (s *Store) CreateWithinCapacity(_ context.Context, e *model.Enrollment, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}

	// The class may have been deleted since the caller looked it up.
	if _, ok := s.classes[e.ClassID]; !ok {
		return repository.ErrNotFound
	}
	if s.countLocked(e.ClassID, e.OccurrenceDate) >= capacity {
		return repository.ErrCapacityReached
	}
	e.CreatedAt = s.now()
	s.enrollments[e.ClassID] = append(s.enrollments[e.ClassID], *e)
	return nil
}

// CountByOccurrence returns the number of enrollments for one occurrence.
func (s *Store) CountByOccurrence(_ context.Context, classID uuid.UUID, date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	return s.countLocked(classID, date), nil
}

// ListByClass returns a class's enrollments ordered by occurrence date, then
// signup time.
func (s *Store) ListByClass(_ context.Context, classID uuid.UUID) ([]model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	out := slices.Clone(s.enrollments[classID])
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurrenceDate.Equal(out[j].OccurrenceDate) {
			return out[i].OccurrenceDate.Before(out[j].OccurrenceDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) countLocked(classID uuid.UUID, date time.Time) int {
	n := 0
	for _, e := range s.enrollments[classID] {
		if e.OccurrenceDate.Equal(date) {
			n++
		}
	}
	return n
}

// ─── Catalog ──────────────────────────────────────────────────────────

// GetOrder retrieves the catalog order and its version.
func (s *Store) GetOrder(_ context.Context) (*model.CatalogOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	return &model.CatalogOrder{IDs: slices.Clone(s.order), Version: s.version}, nil
}

// ReplaceOrder writes ids when expectedVersion is still current.
func (s *Store) ReplaceOrder(_ context.Context, ids []uuid.UUID, expectedVersion int64) (*model.CatalogOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}

	if expectedVersion != s.version {
		return nil, repository.ErrVersionConflict
	}
	s.order = slices.Clone(ids)
	s.version++
	return &model.CatalogOrder{IDs: slices.Clone(s.order), Version: s.version}, nil
}

func withoutImage(c model.ClassDefinition) model.ClassDefinition {
	c.Image = nil
	c.DaysOfWeek = slices.Clone(c.DaysOfWeek)
	return c
}
