package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
)

// Accepted class image types, detected from the file content.
var allowedImageTypes = []string{"image/jpeg", "image/png"}

// ClassStore is the persistence contract for class definitions. Create must
// append the class to the catalog order and Delete must remove the class's
// enrollments and catalog entry, each in one atomic write.
type ClassStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ClassDefinition, error)
	List(ctx context.Context) ([]model.ClassDefinition, error)
	GetImage(ctx context.Context, id uuid.UUID) ([]byte, string, error)
	Create(ctx context.Context, c *model.ClassDefinition) error
	Update(ctx context.Context, c *model.ClassDefinition) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ClassService handles the admin lifecycle of class definitions.
type ClassService struct {
	classes       ClassStore
	maxImageBytes int64
	log           zerolog.Logger
}

// NewClassService creates a new ClassService.
func NewClassService(classes ClassStore, maxImageBytes int64, log zerolog.Logger) *ClassService {
	return &ClassService{
		classes:       classes,
		maxImageBytes: maxImageBytes,
		log:           log.With().Str("component", "class_service").Logger(),
	}
}

// Get retrieves a class by its ID.
func (s *ClassService) Get(ctx context.Context, id uuid.UUID) (*model.ClassDefinition, error) {
	c, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get class", err)
	}
	return c, nil
}

// Image returns the class image and its MIME type.
func (s *ClassService) Image(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	img, mime, err := s.classes.GetImage(ctx, id)
	if err != nil {
		return nil, "", storeErr("get class image", err)
	}
	return img, mime, nil
}

// Create validates in and persists a new class at the end of the catalog.
func (s *ClassService) Create(ctx context.Context, in model.ClassInput) (*model.ClassDefinition, error) {
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	c := fromInput(uuid.New(), in)
	if err := s.classes.Create(ctx, c); err != nil {
		return nil, storeErr("create class", err)
	}

	s.log.Info().
		Str("class_id", c.ID.String()).
		Str("frequency", string(c.Frequency)).
		Int("capacity", c.Capacity).
		Msg("Class created")
	return c, nil
}

// Update replaces the editable fields of a class. The image is kept unless a
// new one is supplied.
func (s *ClassService) Update(ctx context.Context, id uuid.UUID, in model.ClassInput) (*model.ClassDefinition, error) {
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	c := fromInput(id, in)
	if err := s.classes.Update(ctx, c); err != nil {
		return nil, storeErr("update class", err)
	}

	s.log.Info().Str("class_id", id.String()).Msg("Class updated")
	return c, nil
}

// Delete removes a class together with its enrollments. Either both go or
// neither does.
func (s *ClassService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.classes.Delete(ctx, id); err != nil {
		return storeErr("delete class", err)
	}
	s.log.Info().Str("class_id", id.String()).Msg("Class deleted")
	return nil
}

// validate checks in and returns it normalised.
func (s *ClassService) validate(in model.ClassInput) (model.ClassInput, error) {
	verr := &ValidationError{}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		verr.add("title", "title is required")
	}
	if in.Description == "" {
		verr.add("description", "description is required")
	}
	if in.Capacity < 1 {
		verr.add("size", "size must be at least 1")
	}

	in.StartDate = recurrence.Normalize(in.StartDate)
	if in.DaysOfWeek == nil || !in.Frequency.RequiresDays() {
		in.DaysOfWeek = []int{}
	}
	rule := recurrence.Rule{StartDate: in.StartDate, Frequency: in.Frequency, DaysOfWeek: in.DaysOfWeek}
	if err := rule.Validate(); err != nil {
		var re *recurrence.RuleError
		if errors.As(err, &re) {
			verr.add(re.Field, re.Reason)
		} else {
			verr.add("frequency", err.Error())
		}
	}

	if in.Image != nil {
		switch {
		case len(in.Image) == 0:
			verr.add("image", "image is empty")
		case s.maxImageBytes > 0 && int64(len(in.Image)) > s.maxImageBytes:
			verr.add("image", "image exceeds the size limit")
		default:
			mt := mimetype.Detect(in.Image)
			if !mimetype.EqualsAny(mt.String(), allowedImageTypes...) {
				verr.add("image", "please upload an image (jpg, jpeg, png)")
			}
			in.ImageType = mt.String()
		}
	} else {
		in.ImageType = ""
	}

	return in, verr.orNil()
}

func fromInput(id uuid.UUID, in model.ClassInput) *model.ClassDefinition {
	return &model.ClassDefinition{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		StartDate:   in.StartDate,
		Capacity:    in.Capacity,
		Frequency:   in.Frequency,
		DaysOfWeek:  in.DaysOfWeek,
		Image:       in.Image,
		ImageType:   in.ImageType,
		HasImage:    in.Image != nil,
	}
}
