package model

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment is one signup for one occurrence of a class.
type Enrollment struct {
	ID             uuid.UUID `json:"id"`
	ClassID        uuid.UUID `json:"class_id"`
	OccurrenceDate time.Time `json:"occurrence_date"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Insurance      string    `json:"insurance"`
	CreatedAt      time.Time `json:"created_at"`
}

// SignupDetails are the attendee fields of a signup.
type SignupDetails struct {
	Name      string
	Phone     string
	Insurance string
}

// SignupRequest is the public signup payload.
type SignupRequest struct {
	Name          string `json:"name" binding:"required,max=200"`
	Phone         string `json:"phone" binding:"required,max=50"`
	Insurance     string `json:"insurance" binding:"required,max=200"`
	SelectedDate  string `json:"selectedDate" binding:"required"`
	SelectedClass string `json:"selectedClass" binding:"required,uuid"`
}

// Availability is the per-occurrence participant count shown to the public.
type Availability struct {
	ClassID        uuid.UUID `json:"class_id"`
	OccurrenceDate string    `json:"occurrence_date"`
	Count          int       `json:"count"`
	Capacity       int       `json:"capacity"`
	Remaining      int       `json:"remaining"`
	Full           bool      `json:"full"`
}

// AttendanceSheet groups the enrollments of one occurrence.
type AttendanceSheet struct {
	OccurrenceDate string       `json:"occurrence_date"`
	Enrollments    []Enrollment `json:"enrollments"`
}
