package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/classbook/internal/recurrence"
)

// ClassDefinition is a recurring class offering.
type ClassDefinition struct {
	ID           uuid.UUID            `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	StartDate    time.Time            `json:"date"`
	Capacity     int                  `json:"size"`
	Frequency    recurrence.Frequency `json:"frequency"`
	DaysOfWeek   []int                `json:"days"`
	Image        []byte               `json:"-"`
	ImageType    string               `json:"image_type,omitempty"`
	HasImage     bool                 `json:"has_image"`
	DisplayOrder int                  `json:"display_order"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Rule returns the recurrence rule of the class.
func (c *ClassDefinition) Rule() recurrence.Rule {
	return recurrence.Rule{
		StartDate:  c.StartDate,
		Frequency:  c.Frequency,
		DaysOfWeek: c.DaysOfWeek,
	}
}

// ClassInput is the validated-at-the-boundary shape of a create or edit.
// Image is nil when no file was uploaded.
type ClassInput struct {
	Title       string
	Description string
	StartDate   time.Time
	Capacity    int
	Frequency   recurrence.Frequency
	DaysOfWeek  []int
	Image       []byte
	ImageType   string
}

// ClassForm is the multipart payload for creating or editing a class.
// Days is comma separated ("1,3").
type ClassForm struct {
	Title       string `form:"title" binding:"required,max=200"`
	Description string `form:"description" binding:"required,max=5000"`
	Date        string `form:"date" binding:"required"`
	Size        int    `form:"size" binding:"required,min=1"`
	Frequency   string `form:"frequency" binding:"required,oneof=none daily weekly bi-weekly monthly"`
	Days        string `form:"days" binding:"omitempty,max=20"`
}
