package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(t *testing.T, f *fixture) []uuid.UUID {
	t.Helper()
	o, err := f.catalog.Snapshot(context.Background())
	require.NoError(t, err)
	return o.IDs
}

func TestCatalogSwapAndStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createClass(t, "A", 1, recurrence.FrequencyDaily, "2024-01-01")
	b := f.createClass(t, "B", 1, recurrence.FrequencyDaily, "2024-01-01")
	c := f.createClass(t, "C", 1, recurrence.FrequencyDaily, "2024-01-01")
	d := f.createClass(t, "D", 1, recurrence.FrequencyDaily, "2024-01-01")

	before, err := f.catalog.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID, d.ID}, before.IDs)

	after, err := f.catalog.Swap(ctx, 0, 2, before.Version)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.ID, b.ID, a.ID, d.ID}, after.IDs)
	assert.Greater(t, after.Version, before.Version)

	_, err = f.catalog.Swap(ctx, 1, 3, before.Version)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, []uuid.UUID{c.ID, b.ID, a.ID, d.ID}, ids(t, f))
}

func TestCatalogConcurrentSwapsOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C", "D"} {
		f.createClass(t, name, 1, recurrence.FrequencyDaily, "2024-01-01")
	}
	base, err := f.catalog.Snapshot(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][2]int{{0, 2}, {1, 3}} {
		wg.Add(1)
		go func(i, a, b int) {
			defer wg.Done()
			_, errs[i] = f.catalog.Swap(ctx, a, b, base.Version)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrConcurrencyConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)
}

func TestCatalogSwapOutOfRangeIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createClass(t, "A", 1, recurrence.FrequencyDaily, "2024-01-01")
	f.createClass(t, "B", 1, recurrence.FrequencyDaily, "2024-01-01")

	before, err := f.catalog.Snapshot(ctx)
	require.NoError(t, err)

	for _, pos := range [][2]int{{0, 2}, {-1, 0}, {5, 6}} {
		got, err := f.catalog.Swap(ctx, pos[0], pos[1], before.Version)
		require.NoError(t, err)
		assert.Equal(t, before.IDs, got.IDs)
		assert.Equal(t, before.Version, got.Version)
	}
}

func TestCatalogReorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createClass(t, "A", 1, recurrence.FrequencyDaily, "2024-01-01")
	b := f.createClass(t, "B", 1, recurrence.FrequencyDaily, "2024-01-01")

	o, err := f.catalog.Snapshot(ctx)
	require.NoError(t, err)

	_, err = f.catalog.Reorder(ctx, []uuid.UUID{a.ID, a.ID}, o.Version)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.catalog.Reorder(ctx, []uuid.UUID{b.ID}, o.Version)
	assert.ErrorIs(t, err, ErrValidation)

	got, err := f.catalog.Reorder(ctx, []uuid.UUID{b.ID, a.ID}, o.Version)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, got.IDs)

	_, err = f.catalog.Reorder(ctx, []uuid.UUID{a.ID, b.ID}, o.Version)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestCatalogListFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.catalog.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }

	past := f.createClass(t, "Past", 1, recurrence.FrequencyNone, "2024-05-01")
	weekly := f.createClass(t, "Weekly", 1, recurrence.FrequencyWeekly, "2024-01-01", 2)
	future := f.createClass(t, "Future", 1, recurrence.FrequencyNone, "2024-07-01")

	o, err := f.catalog.Snapshot(ctx)
	require.NoError(t, err)
	_, err = f.catalog.Swap(ctx, 0, 2, o.Version)
	require.NoError(t, err)

	all, err := f.catalog.List(ctx, FilterAll)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{future.ID, weekly.ID, past.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 2, all[2].DisplayOrder)

	ongoing, err := f.catalog.List(ctx, ParseFilter(false))
	require.NoError(t, err)
	require.Len(t, ongoing, 2)
	assert.Equal(t, future.ID, ongoing[0].ID)
	assert.Equal(t, weekly.ID, ongoing[1].ID)
}
