package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/response"
	"github.com/stemsi/classbook/internal/service"
)

// retryAfterSeconds is advertised when storage is unavailable.
const retryAfterSeconds = 1

// failService writes the API error matching a service error.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, verr.Fields)
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrInvalidOccurrence):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidOccurrence)
	case errors.Is(err, service.ErrCapacityExceeded):
		response.Fail(c, http.StatusConflict, response.ErrCapacityExceeded)
	case errors.Is(err, service.ErrConcurrencyConflict):
		response.Fail(c, http.StatusConflict, response.ErrConcurrencyConflict)
	case errors.Is(err, recurrence.ErrWindowTooLarge):
		response.Fail(c, http.StatusBadRequest, response.ErrWindowTooLarge)
	case errors.Is(err, service.ErrStorageUnavailable):
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("Storage unavailable")
		response.FailWithRetry(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable, retryAfterSeconds)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// paramID parses the :id path parameter, writing INVALID_ID on failure.
func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// queryDate parses a required YYYY-MM-DD query parameter.
func queryDate(c *gin.Context, key string) (t time.Time, ok bool) {
	t, err := recurrence.ParseDate(c.Query(key))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidDate, map[string]string{key: "must be a date in YYYY-MM-DD format"})
		return t, false
	}
	return t, true
}
