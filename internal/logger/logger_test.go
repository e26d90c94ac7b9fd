package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "prod", "info")
	log.Debug("hidden")
	log.Info("batch finalized", "batch_id", "b-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "batch finalized", line["msg"])
	assert.Equal(t, "b-1", line["batch_id"])
}

func TestNewWithWriter_DevWritesText(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "dev", "debug").Debug("claim taken", "local_id", "tx-1")
	assert.Contains(t, buf.String(), "msg=\"claim taken\"")
	assert.Contains(t, buf.String(), "local_id=tx-1")
}
