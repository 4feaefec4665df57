package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestTextLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Writer: &buf})
	require.NoError(t, err)

	l.Debug("hidden detail")
	l.Info("component loaded", "component", "counter")
	assert.NotContains(t, buf.String(), "hidden detail")
	assert.Contains(t, buf.String(), "component loaded")
	assert.Contains(t, buf.String(), "counter")

	l.Level.Set(slog.LevelDebug)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestJSONLoggerWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "snapoff.log")
	l, err := New(Options{Format: "json", File: path, Writer: &buf})
	require.NoError(t, err)

	l.With("instance", "abc").Warn("state read miss")
	require.NoError(t, l.Close())

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "state read miss", rec["msg"])
	assert.Equal(t, "abc", rec["instance"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"instance":"abc"`))
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}
