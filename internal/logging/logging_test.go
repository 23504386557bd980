package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn", Format: FormatJSON}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Str("tag", "top").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "top", rec["tag"])
	assert.Equal(t, "kept", rec["message"])
	assert.Contains(t, rec, "time")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "chatty"}, &buf)

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "debug", Format: FormatConsole}, &buf)

	log.Debug().Str("stage", "rank").Msg("stage done")

	out := buf.String()
	assert.Contains(t, out, "stage done")
	assert.Contains(t, out, "stage=")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
}
