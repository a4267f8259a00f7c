package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/lock"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type fixture struct {
	store       *memory.Store
	classes     *ClassService
	enrollments *EnrollmentService
	catalog     *CatalogService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	log := zerolog.Nop()
	return &fixture{
		store:       store,
		classes:     NewClassService(store, 1000000, log),
		enrollments: NewEnrollmentService(store, store, lock.NewKeyedMutex(), nil, time.Second, log),
		catalog:     NewCatalogService(store, store, log),
	}
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := recurrence.ParseDate(s)
	require.NoError(t, err)
	return d
}

func (f *fixture) createClass(t *testing.T, title string, capacity int, freq recurrence.Frequency, start string, days ...int) *model.ClassDefinition {
	t.Helper()
	c, err := f.classes.Create(context.Background(), model.ClassInput{
		Title:       title,
		Description: title + " description",
		StartDate:   date(t, start),
		Capacity:    capacity,
		Frequency:   freq,
		DaysOfWeek:  days,
	})
	require.NoError(t, err)
	return c
}

func signup(name string) model.SignupDetails {
	return model.SignupDetails{Name: name, Phone: "0123", Insurance: "public"}
}

func zeroLog() zerolog.Logger { return zerolog.Nop() }
