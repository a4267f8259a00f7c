package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/config"
	"github.com/stemsi/classbook/internal/lock"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/repository"
)

// EnrollmentStore is the persistence contract for enrollments.
// CreateWithinCapacity must count and insert as one atomic unit and return
// repository.ErrCapacityReached without inserting when the occurrence is full.
type EnrollmentStore interface {
	CreateWithinCapacity(ctx context.Context, e *model.Enrollment, capacity int) error
	CountByOccurrence(ctx context.Context, classID uuid.UUID, date time.Time) (int, error)
	ListByClass(ctx context.Context, classID uuid.UUID) ([]model.Enrollment, error)
}

// ClassReader resolves class definitions.
type ClassReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ClassDefinition, error)
}

// AvailabilityPublisher announces the new availability of an occurrence after
// a signup.
type AvailabilityPublisher interface {
	PublishAvailability(ctx context.Context, a *model.Availability) error
}

// EnrollmentService admits signups without ever exceeding an occurrence's
// capacity.
type EnrollmentService struct {
	classes     ClassReader
	enrollments EnrollmentStore
	locker      lock.Locker
	counts      CountCache
	publisher   AvailabilityPublisher
	lockTimeout time.Duration
	log         zerolog.Logger
}

// NewEnrollmentService creates a new EnrollmentService. lockTimeout bounds the
// wait for an occurrence lock; zero means the caller's context alone decides.
func NewEnrollmentService(
	classes ClassReader,
	enrollments EnrollmentStore,
	locker lock.Locker,
	counts CountCache,
	lockTimeout time.Duration,
	log zerolog.Logger,
) *EnrollmentService {
	if counts == nil {
		counts = NoopCountCache{}
	}
	return &EnrollmentService{
		classes:     classes,
		enrollments: enrollments,
		locker:      locker,
		counts:      counts,
		lockTimeout: lockTimeout,
		log:         log.With().Str("component", "enrollment_service").Logger(),
	}
}

// SetPublisher enables live availability updates after each signup.
func (s *EnrollmentService) SetPublisher(p AvailabilityPublisher) {
	s.publisher = p
}

// AttemptEnroll signs details up for the occurrence of classID on date.
//
// It fails with ErrNotFound for an unknown class, ErrInvalidOccurrence when
// the class does not run on date, and ErrCapacityExceeded when the occurrence
// is full. The count and the insert run under a per-occurrence lock, so two
// callers racing for the last seat never both succeed.
func (s *EnrollmentService) AttemptEnroll(ctx context.Context, classID uuid.UUID, date time.Time, details model.SignupDetails) (*model.Enrollment, error) {
	if err := validateSignup(&details); err != nil {
		return nil, err
	}

	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		return nil, storeErr("get class", err)
	}

	date = recurrence.Normalize(date)
	if !recurrence.IsOccurrence(class.Rule(), date) {
		return nil, ErrInvalidOccurrence
	}

	e := &model.Enrollment{
		ID:             uuid.New(),
		ClassID:        classID,
		OccurrenceDate: date,
		Name:           details.Name,
		Phone:          details.Phone,
		Insurance:      details.Insurance,
	}
	count, err := s.insertLocked(ctx, e, class.Capacity)
	if err != nil {
		return nil, err
	}

	if err := s.counts.Invalidate(ctx, classID, date); err != nil {
		s.log.Warn().Err(err).Str("class_id", classID.String()).Msg("count cache invalidation failed")
	}
	s.publish(ctx, class, date, count)

	s.log.Info().
		Str("class_id", classID.String()).
		Str("date", recurrence.FormatDate(date)).
		Str("enrollment_id", e.ID.String()).
		Msg("Enrollment created")
	return e, nil
}

// insertLocked stores e under the occurrence lock and returns the
// occurrence's count including e.
func (s *EnrollmentService) insertLocked(ctx context.Context, e *model.Enrollment, capacity int) (int, error) {
	unlock, err := s.lockOccurrence(ctx, e.ClassID, e.OccurrenceDate)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if err := s.enrollments.CreateWithinCapacity(ctx, e, capacity); err != nil {
		if errors.Is(err, repository.ErrCapacityReached) {
			return 0, ErrCapacityExceeded
		}
		return 0, storeErr("create enrollment", err)
	}

	if s.publisher == nil {
		return 0, nil
	}
	n, err := s.enrollments.CountByOccurrence(ctx, e.ClassID, e.OccurrenceDate)
	if err != nil {
		// The enrollment is stored; only the live update is lost.
		s.log.Warn().Err(err).Str("class_id", e.ClassID.String()).Msg("count after enrollment failed")
		return -1, nil
	}
	return n, nil
}

func (s *EnrollmentService) publish(ctx context.Context, class *model.ClassDefinition, date time.Time, count int) {
	if s.publisher == nil || count < 0 {
		return
	}
	if err := s.publisher.PublishAvailability(ctx, newAvailability(class, date, count)); err != nil {
		s.log.Warn().Err(err).Str("class_id", class.ID.String()).Msg("availability publish failed")
	}
}

// CountEnrollments returns the participant count of one occurrence. The value
// may come from the count cache and lag behind recent signups.
func (s *EnrollmentService) CountEnrollments(ctx context.Context, classID uuid.UUID, date time.Time) (int, error) {
	date = recurrence.Normalize(date)

	if n, ok, err := s.counts.Get(ctx, classID, date); err == nil && ok {
		return n, nil
	}

	n, err := s.enrollments.CountByOccurrence(ctx, classID, date)
	if err != nil {
		return 0, storeErr("count enrollments", err)
	}
	if err := s.counts.Set(ctx, classID, date, n); err != nil {
		s.log.Debug().Err(err).Msg("count cache write failed")
	}
	return n, nil
}

// Availability returns the participant count against capacity for one
// occurrence.
func (s *EnrollmentService) Availability(ctx context.Context, classID uuid.UUID, date time.Time) (*model.Availability, error) {
	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		return nil, storeErr("get class", err)
	}

	date = recurrence.Normalize(date)
	if !recurrence.IsOccurrence(class.Rule(), date) {
		return nil, ErrInvalidOccurrence
	}

	n, err := s.CountEnrollments(ctx, classID, date)
	if err != nil {
		return nil, err
	}

	return newAvailability(class, date, n), nil
}

func newAvailability(class *model.ClassDefinition, date time.Time, count int) *model.Availability {
	remaining := class.Capacity - count
	if remaining < 0 {
		remaining = 0
	}
	return &model.Availability{
		ClassID:        class.ID,
		OccurrenceDate: recurrence.FormatDate(date),
		Count:          count,
		Capacity:       class.Capacity,
		Remaining:      remaining,
		Full:           remaining == 0,
	}
}

// ListEnrollments returns a class's enrollments ordered by occurrence date,
// then signup time.
func (s *EnrollmentService) ListEnrollments(ctx context.Context, classID uuid.UUID) ([]model.Enrollment, error) {
	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		return nil, storeErr("get class", err)
	}

	list, err := s.enrollments.ListByClass(ctx, classID)
	if err != nil {
		return nil, storeErr("list enrollments", err)
	}
	if list == nil {
		list = []model.Enrollment{}
	}
	return list, nil
}

// AttendanceSheets groups a class's enrollments into one sheet per distinct
// occurrence date, earliest first.
func (s *EnrollmentService) AttendanceSheets(ctx context.Context, classID uuid.UUID) ([]model.AttendanceSheet, error) {
	list, err := s.ListEnrollments(ctx, classID)
	if err != nil {
		return nil, err
	}
	return GroupByOccurrence(list), nil
}

// GroupByOccurrence splits an ordered enrollment list at each new date.
func GroupByOccurrence(list []model.Enrollment) []model.AttendanceSheet {
	sheets := make([]model.AttendanceSheet, 0)
	for _, e := range list {
		d := recurrence.FormatDate(e.OccurrenceDate)
		if n := len(sheets); n == 0 || sheets[n-1].OccurrenceDate != d {
			sheets = append(sheets, model.AttendanceSheet{OccurrenceDate: d})
		}
		last := &sheets[len(sheets)-1]
		last.Enrollments = append(last.Enrollments, e)
	}
	return sheets
}

func (s *EnrollmentService) lockOccurrence(ctx context.Context, classID uuid.UUID, date time.Time) (lock.Unlock, error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	unlock, err := s.locker.Lock(lockCtx, config.CacheKey.OccurrenceKey(classID, date))
	if err != nil {
		return nil, &StorageError{Op: "lock occurrence", Err: err}
	}
	return unlock, nil
}

func validateSignup(d *model.SignupDetails) error {
	verr := &ValidationError{}
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Insurance = strings.TrimSpace(d.Insurance)

	if d.Name == "" {
		verr.add("name", "name is required")
	}
	if d.Phone == "" {
		verr.add("phone", "phone is required")
	}
	if d.Insurance == "" {
		verr.add("insurance", "insurance is required")
	}
	return verr.orNil()
}
