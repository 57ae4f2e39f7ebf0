package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerRedactsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info", "json")
	log.Info("request", "store_key", "abc", "jwt_secret", "s3", "header", "Bearer xyz", "task_id", "t1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, redacted, rec["store_key"])
	assert.Equal(t, redacted, rec["jwt_secret"])
	assert.Equal(t, redacted, rec["header"])
	assert.Equal(t, "t1", rec["task_id"])
	assert.Equal(t, "request", rec["msg"])
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "text")
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestShouldRedactKey(t *testing.T) {
	assert.True(t, shouldRedactKey("key"))
	assert.True(t, shouldRedactKey("apikey"))
	assert.True(t, shouldRedactKey("Authorization"))
	assert.False(t, shouldRedactKey("task_id"))
	assert.False(t, shouldRedactKey("monkey"))
	assert.False(t, shouldRedactKey(""))
}
