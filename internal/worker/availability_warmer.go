package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/service"
)

// OngoingClasses lists classes that still have upcoming occurrences.
type OngoingClasses interface {
	List(ctx context.Context, filter service.ListFilter) ([]model.ClassDefinition, error)
}

// OccurrenceCounter reads the authoritative enrollment count.
type OccurrenceCounter interface {
	CountByOccurrence(ctx context.Context, classID uuid.UUID, date time.Time) (int, error)
}

// AvailabilityWarmer periodically fills the count cache for the next few days
// of every ongoing class, so the public availability display rarely hits the
// database.
type AvailabilityWarmer struct {
	classes  OngoingClasses
	counter  OccurrenceCounter
	cache    service.CountCache
	schedule string
	days     int
	now      func() time.Time
	log      zerolog.Logger
}

// NewAvailabilityWarmer creates a new AvailabilityWarmer.
func NewAvailabilityWarmer(
	classes OngoingClasses,
	counter OccurrenceCounter,
	cache service.CountCache,
	schedule string,
	days int,
	log zerolog.Logger,
) *AvailabilityWarmer {
	return &AvailabilityWarmer{
		classes:  classes,
		counter:  counter,
		cache:    cache,
		schedule: schedule,
		days:     days,
		now:      time.Now,
		log:      log.With().Str("component", "availability_warmer").Logger(),
	}
}

// Start runs the job on its schedule until ctx is cancelled. Call in a
// goroutine.
func (w *AvailabilityWarmer) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.log})))

	_, err := c.AddFunc(w.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		w.RunOnce(runCtx)
	})
	if err != nil {
		return err
	}

	w.log.Info().Str("schedule", w.schedule).Int("days", w.days).Msg("Worker started")
	c.Start()

	<-ctx.Done()
	w.log.Info().Msg("Worker stopping...")
	<-c.Stop().Done()
	w.log.Info().Msg("Worker stopped")
	return nil
}

// RunOnce warms every occurrence in [today, today+days) and returns how many
// counts it stored.
func (w *AvailabilityWarmer) RunOnce(ctx context.Context) int {
	classes, err := w.classes.List(ctx, service.FilterOngoing)
	if err != nil {
		w.log.Error().Err(err).Msg("List classes failed")
		return 0
	}

	from := recurrence.Normalize(w.now())
	to := from.AddDate(0, 0, w.days-1)

	warmed := 0
	for _, c := range classes {
		dates, err := recurrence.Enumerate(c.Rule(), from, to, 0)
		if err != nil {
			w.log.Error().Err(err).Str("class_id", c.ID.String()).Msg("Enumerate failed")
			continue
		}
		for _, d := range dates {
			if ctx.Err() != nil {
				return warmed
			}
			n, err := w.counter.CountByOccurrence(ctx, c.ID, d)
			if err != nil {
				w.log.Error().Err(err).Str("class_id", c.ID.String()).Msg("Count failed")
				continue
			}
			if err := w.cache.Set(ctx, c.ID, d, n); err != nil {
				w.log.Warn().Err(err).Msg("Cache write failed")
				continue
			}
			warmed++
		}
	}

	w.log.Debug().Int("classes", len(classes)).Int("occurrences", warmed).Msg("Availability warmed")
	return warmed
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
