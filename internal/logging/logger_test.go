package logging

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
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "pdfquery", "info", "json")

	logger.Debug("hidden")
	logger.Info("corpus_built", "chunks", 12)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corpus_built", entry["msg"])
	assert.Equal(t, "pdfquery", entry["service"])
	assert.Equal(t, float64(12), entry["chunks"])
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "", "debug", "text")
	logger.Debug("document_processed", "document", "a.pdf")
	assert.Contains(t, buf.String(), "msg=document_processed")
	assert.Contains(t, buf.String(), "document=a.pdf")
	assert.NotContains(t, buf.String(), "service=")
}
