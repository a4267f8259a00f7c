package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/export"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/response"
	"github.com/stemsi/classbook/internal/service"
	"github.com/stemsi/classbook/internal/validator"
)

// EnrollmentHandler handles public signups and the admin attendance views.
type EnrollmentHandler struct {
	enrollmentService *service.EnrollmentService
	classService      *service.ClassService
	log               zerolog.Logger
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(enrollmentService *service.EnrollmentService, classService *service.ClassService, log zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollmentService: enrollmentService,
		classService:      classService,
		log:               log.With().Str("component", "enrollment_handler").Logger(),
	}
}

// Signup godoc
// POST /api/v1/public/signups
// Enrolls the caller into one occurrence of a class.
func (h *EnrollmentHandler) Signup(c *gin.Context) {
	var req model.SignupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	classID, err := uuid.Parse(req.SelectedClass)
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"selectedClass": "must be a valid class ID"})
		return
	}
	date, err := recurrence.ParseDate(req.SelectedDate)
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"selectedDate": "must be a date in YYYY-MM-DD format"})
		return
	}

	enrollment, err := h.enrollmentService.AttemptEnroll(c.Request.Context(), classID, date, model.SignupDetails{
		Name:      req.Name,
		Phone:     req.Phone,
		Insurance: req.Insurance,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"enrollment": enrollment})
}

// GetAvailability godoc
// GET /api/v1/public/classes/:id/availability?date=YYYY-MM-DD
// Returns the participant count against capacity, e.g. 3/10.
func (h *EnrollmentHandler) GetAvailability(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}

	availability, err := h.enrollmentService.Availability(c.Request.Context(), id, date)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"availability": availability})
}

// ListEnrollments godoc
// GET /api/v1/admin/classes/:id/enrollments
// Lists enrollments by occurrence date, then signup time.
func (h *EnrollmentHandler) ListEnrollments(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	enrollments, err := h.enrollmentService.ListEnrollments(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enrollments": enrollments})
}

// GetAttendance godoc
// GET /api/v1/admin/classes/:id/attendance
// Returns one attendance sheet per occurrence date.
func (h *EnrollmentHandler) GetAttendance(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	sheets, err := h.enrollmentService.AttendanceSheets(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sheets": sheets})
}

// ExportAttendance godoc
// GET /api/v1/admin/classes/:id/attendance.xlsx
// Downloads the attendance sheets as a workbook, one worksheet per date.
func (h *EnrollmentHandler) ExportAttendance(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	class, err := h.classService.Get(ctx, id)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	sheets, err := h.enrollmentService.AttendanceSheets(ctx, id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteAttendance(&buf, class.Title, sheets); err != nil {
		h.log.Error().Err(err).Str("class_id", id.String()).Msg("Attendance export failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance-%s.xlsx"`, id))
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}
