package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// OccurrenceKey identifies one occurrence of a class. It is the mutual
// exclusion key for capacity-checked signups.
func (r *CacheKeyStruct) OccurrenceKey(classID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("class:%s:occurrence:%s", classID, date.Format("2006-01-02"))
}

// OccurrenceCountKey returns the cache key for an occurrence's enrollment count
func (r *CacheKeyStruct) OccurrenceCountKey(classID uuid.UUID, date time.Time) string {
	return r.OccurrenceKey(classID, date) + ":count"
}

// ClassAvailabilityChannel is the Pub/Sub channel for a class's live
// availability updates.
func (r *CacheKeyStruct) ClassAvailabilityChannel(classID uuid.UUID) string {
	return fmt.Sprintf("class:%s:availability", classID)
}

var CacheKey = NewCacheKeyStruct()
