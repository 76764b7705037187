package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturing(level, format string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := &Logger{level: parseLevel(level), format: format, logger: log.New(&buf, "", 0)}
	return l, &buf
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, INFO, parseLevel("bogus"))
	assert.Equal(t, DEBUG, parseLevel("debug"))
	assert.Equal(t, ERROR, parseLevel("ERROR"))
}

func TestLoggerFiltersBelowConfiguredLevel(t *testing.T) {
	l, buf := newCapturing("WARN", "text")
	l.Info("should be dropped", nil)
	assert.Empty(t, buf.String())

	l.Warn("should appear", nil)
	assert.Contains(t, buf.String(), "should appear")
}

func TestLoggerJSONFormatIncludesFields(t *testing.T) {
	l, buf := newCapturing("DEBUG", "json")
	l.Info("posting accepted", map[string]interface{}{"transferId": "t1"})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "posting accepted", entry.Message)
	assert.Equal(t, "t1", entry.Fields["transferId"])
}

func TestLoggerErrorAttachesErrorMessageToFields(t *testing.T) {
	l, buf := newCapturing("DEBUG", "json")
	l.Error("failed to post entry", assertErr{}, nil)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestLoggerTextFormatIsHumanReadable(t *testing.T) {
	l, buf := newCapturing("DEBUG", "text")
	l.Debug("starting up", nil)
	assert.True(t, strings.Contains(buf.String(), "DEBUG"))
	assert.True(t, strings.Contains(buf.String(), "starting up"))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
