package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: FormatJSON, Output: &buf})

	lg := Component(l, "producer")
	lg.Info().Str(FieldKey, "GRP_1").Msg("submitted")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "producer", entry[FieldComponent])
	assert.Equal(t, "GRP_1", entry[FieldKey])
	assert.Equal(t, "submitted", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		cfg      Config
		expected zerolog.Level
	}{
		{Config{Level: "warn"}, zerolog.WarnLevel},
		{Config{Level: "DEBUG"}, zerolog.DebugLevel},
		{Config{Level: ""}, zerolog.InfoLevel},
		{Config{Level: "bogus"}, zerolog.InfoLevel},
		{Config{Level: "error", Verbose: true}, zerolog.DebugLevel},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		tt.cfg.Output = &buf
		l := New(tt.cfg)
		assert.Equal(t, tt.expected, l.GetLevel(), "config %+v", tt.cfg)
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: FormatJSON, Output: &buf})

	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
