package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.Disabled, ParseLevel("Disabled"))
	assert.Equal(t, zerolog.TraceLevel, ParseLevel("TRACE"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
}

func TestZerologAdapter_WritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewFileLogger(&buf, zerolog.DebugLevel)

	log.Info("Recognizer", "board recognized", map[string]interface{}{"snapshot": 7})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "info", record["level"])
	assert.Equal(t, "Recognizer", record["component"])
	assert.Equal(t, "board recognized", record["message"])
	assert.Equal(t, float64(7), record["snapshot"])
}

func TestZerologAdapter_ErrorUsesMessageField(t *testing.T) {
	var buf bytes.Buffer
	log := NewFileLogger(&buf, zerolog.DebugLevel)

	log.Error("Lifecycle", errors.New("boom"), map[string]interface{}{"message": "poll failed"})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "error", record["level"])
	assert.Equal(t, "boom", record["error"])
	assert.Equal(t, "poll failed", record["message"])
}

func TestZerologAdapter_ErrorKeepsCallerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewFileLogger(&buf, zerolog.DebugLevel)

	fields := map[string]interface{}{"message": "reset failed", "area": 3}
	log.Error("Session", errors.New("boom"), fields)
	log.Error("Session", errors.New("boom again"), fields)

	assert.Equal(t, "reset failed", fields["message"])
	assert.Len(t, fields, 2)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &record))
		assert.Equal(t, "reset failed", record["message"])
		assert.Equal(t, float64(3), record["area"])
	}
}

func TestZerologAdapter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewFileLogger(&buf, zerolog.WarnLevel)

	log.Debug("X", "hidden", nil)
	log.Info("X", "hidden", nil)
	assert.Zero(t, buf.Len())

	log.Warning("X", "shown", nil)
	assert.NotZero(t, buf.Len())
}
