package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "info", config.Level)
	assert.Equal(t, "console", config.Format)
	assert.NoError(t, config.Validate())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{Level: "DEBUG", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "verbose", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"error", bolt.ERROR},
		{"WARN", bolt.WARN},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNewJSONWritesFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "debug", Format: "json"}, buf)

	With(logger.Info(),
		RunID("run-123"),
		File("a.jpg"),
		ToolName("resize_single_image"),
		Provider("openai"),
		Component("batch"),
		Duration(100*time.Millisecond),
		ErrorField(errors.New("test error")),
	).Msg("processed")

	out := buf.String()
	assert.Contains(t, out, `"run_id":"run-123"`)
	assert.Contains(t, out, `"file":"a.jpg"`)
	assert.Contains(t, out, `"tool":"resize_single_image"`)
	assert.Contains(t, out, `"provider":"openai"`)
	assert.Contains(t, out, `"component":"batch"`)
	assert.Contains(t, out, `"duration_ms":100`)
	assert.Contains(t, out, `"error":"test error"`)
	assert.Contains(t, out, "processed")
}

func TestErrorFieldNil(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "info", Format: "json"}, buf)

	With(logger.Info(), ErrorField(nil)).Msg("ok")
	assert.NotContains(t, buf.String(), `"error"`)
}

func TestLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "warn", Format: "json"}, buf)

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
