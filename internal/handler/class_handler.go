package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/calendar"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/response"
	"github.com/stemsi/classbook/internal/service"
	"github.com/stemsi/classbook/internal/validator"
)

// multipartOverhead is the allowance for form fields on top of the image.
const multipartOverhead = 64 << 10

// ClassHandler serves the class catalog to the public and class management
// to the admin.
type ClassHandler struct {
	classService   *service.ClassService
	catalogService *service.CatalogService
	maxImageBytes  int64
	maxWindowDays  int
	log            zerolog.Logger
}

// NewClassHandler creates a new ClassHandler.
func NewClassHandler(
	classService *service.ClassService,
	catalogService *service.CatalogService,
	maxImageBytes int64,
	maxWindowDays int,
	log zerolog.Logger,
) *ClassHandler {
	return &ClassHandler{
		classService:   classService,
		catalogService: catalogService,
		maxImageBytes:  maxImageBytes,
		maxWindowDays:  maxWindowDays,
		log:            log.With().Str("component", "class_handler").Logger(),
	}
}

// ListClasses godoc
// GET /api/v1/public/classes?all=true
// Lists classes in display order. Finished classes are hidden unless all=true.
func (h *ClassHandler) ListClasses(c *gin.Context) {
	all, _ := strconv.ParseBool(c.Query("all"))

	classes, err := h.catalogService.List(c.Request.Context(), service.ParseFilter(all))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"classes": classes})
}

// GetClass godoc
// GET /api/v1/public/classes/:id
func (h *ClassHandler) GetClass(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	class, err := h.classService.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"class": class})
}

// GetImage godoc
// GET /api/v1/public/classes/:id/image
// Streams the stored class image.
func (h *ClassHandler) GetImage(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	img, mime, err := h.classService.Image(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	c.Data(http.StatusOK, mime, img)
}

// ListOccurrences godoc
// GET /api/v1/public/classes/:id/occurrences?from=YYYY-MM-DD&to=YYYY-MM-DD
// Returns the dates the class runs on within the window.
func (h *ClassHandler) ListOccurrences(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}

	class, err := h.classService.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	dates, err := recurrence.Enumerate(class.Rule(), from, to, h.maxWindowDays)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = recurrence.FormatDate(d)
	}
	response.Success(c, http.StatusOK, gin.H{"occurrences": out})
}

// GetCalendar godoc
// GET /api/v1/public/classes/:id/calendar.ics[?expand=true&from=&to=]
// Returns an iCalendar feed with the recurrence rule, or with one event per
// occurrence when expand=true.
func (h *ClassHandler) GetCalendar(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	class, err := h.classService.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	now := time.Now()
	expand, _ := strconv.ParseBool(c.Query("expand"))

	var body string
	if expand {
		from, ok := queryDate(c, "from")
		if !ok {
			return
		}
		to, ok := queryDate(c, "to")
		if !ok {
			return
		}
		dates, err := recurrence.Enumerate(class.Rule(), from, to, h.maxWindowDays)
		if err != nil {
			failService(c, h.log, err)
			return
		}
		body = calendar.Expanded(class, dates, now).Serialize()
	} else {
		cal, err := calendar.Feed(class, now)
		if err != nil {
			failService(c, h.log, err)
			return
		}
		body = cal.Serialize()
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="class-%s.ics"`, class.ID))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

// CreateClass godoc
// POST /api/v1/admin/classes (multipart/form-data)
// Creates a class and appends it to the catalog.
func (h *ClassHandler) CreateClass(c *gin.Context) {
	in, ok := h.bindClassForm(c)
	if !ok {
		return
	}

	class, err := h.classService.Create(c.Request.Context(), in)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"class": class})
}

// UpdateClass godoc
// PUT /api/v1/admin/classes/:id (multipart/form-data)
// Replaces the class fields. The image is kept unless a new one is uploaded.
func (h *ClassHandler) UpdateClass(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	in, ok := h.bindClassForm(c)
	if !ok {
		return
	}

	class, err := h.classService.Update(c.Request.Context(), id, in)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"class": class})
}

// DeleteClass godoc
// DELETE /api/v1/admin/classes/:id
// Deletes a class with all of its enrollments.
func (h *ClassHandler) DeleteClass(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.classService.Delete(c.Request.Context(), id); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// bindClassForm reads the multipart class form. It writes the error response
// itself and returns false on failure.
func (h *ClassHandler) bindClassForm(c *gin.Context) (model.ClassInput, bool) {
	if h.maxImageBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+multipartOverhead)
	}

	var form model.ClassForm
	if fields := validator.BindForm(c, &form); fields != nil {
		if strings.Contains(fields["detail"], "request body too large") {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return model.ClassInput{}, false
		}
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return model.ClassInput{}, false
	}

	fields := map[string]string{}
	start, err := recurrence.ParseDate(form.Date)
	if err != nil {
		fields["date"] = "must be a date in YYYY-MM-DD format"
	}
	days, err := parseDays(form.Days)
	if err != nil {
		fields["days"] = err.Error()
	}
	if len(fields) > 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return model.ClassInput{}, false
	}

	img, err := h.readImage(c)
	if err != nil {
		if errors.Is(err, errImageTooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		} else {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"image": err.Error()})
		}
		return model.ClassInput{}, false
	}

	return model.ClassInput{
		Title:       form.Title,
		Description: form.Description,
		StartDate:   start,
		Capacity:    form.Size,
		Frequency:   recurrence.Frequency(form.Frequency),
		DaysOfWeek:  days,
		Image:       img,
	}, true
}

var errImageTooLarge = errors.New("image exceeds the size limit")

// readImage returns the uploaded image, or nil when none was sent.
func (h *ClassHandler) readImage(c *gin.Context) ([]byte, error) {
	file, header, err := c.Request.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("could not read the uploaded image")
	}
	defer file.Close()

	if h.maxImageBytes > 0 && header.Size > h.maxImageBytes {
		return nil, errImageTooLarge
	}

	var buf bytes.Buffer
	limit := h.maxImageBytes
	if limit <= 0 {
		limit = header.Size
	}
	n, err := io.Copy(&buf, io.LimitReader(file, limit+1))
	if err != nil {
		return nil, errors.New("could not read the uploaded image")
	}
	if n > limit {
		return nil, errImageTooLarge
	}
	return buf.Bytes(), nil
}

// parseDays parses the comma separated weekday list ("1,3").
func parseDays(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid weekday %q, expected 0 (Sunday) to 6 (Saturday)", strings.TrimSpace(p))
		}
		days = append(days, d)
	}
	return days, nil
}
