package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTagsRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", false, "3f1c")
	logger.Info().Str("target", "UCPix8N6PMRI4KzgyjuZeF0g").Msg("resolved input")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "3f1c", entry["run_id"])
	assert.Equal(t, "resolved input", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", false, "")
	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "chatty", false, "")
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", true, "abc")
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "run_id=")
}

func TestNewDurationsInMilliseconds(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", false, "")
	New(io.Discard, "debug", true, "")
	logger.Info().Dur("took", 1500*time.Millisecond).Msg("done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, 1500.0, entry["took"])
}
