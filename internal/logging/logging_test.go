package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// ============================================================
// New — level parsing and format selection
// ============================================================

func TestNew_ParsesValidLevel(t *testing.T) {
	log := New(Options{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestNew_InvalidLevel_DefaultsToInfo(t *testing.T) {
	log := New(Options{Level: "not-a-level", Format: "json"})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNew_CaseInsensitiveLevel(t *testing.T) {
	log := New(Options{Level: "DEBUG", Format: "json"})
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

// ============================================================
// Component — tags a child logger
// ============================================================

func TestComponent_AddsComponentField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	log := Component(base, "eventbus.memory")

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"eventbus.memory"`)
}
