package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json")

	log.Info().Str("component", "enrollment_service").Msg("Enrollment created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "enrollment_service", line["component"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty")
	log.Warn().Msg("count cache invalidation failed")

	assert.Contains(t, buf.String(), "WRN")
	assert.Contains(t, buf.String(), "count cache invalidation failed")
}
