package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "input=%q", tt.input)
	}
}

func TestNew(t *testing.T) {
	t.Run("JSON形式で出力先にログを書き込む", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

		log.Info("indexing started", "documents", 3)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "indexing started", record["msg"])
		assert.Equal(t, float64(3), record["documents"])
	})

	t.Run("text形式で出力できる", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Config{Level: slog.LevelInfo, Format: "text", Output: &buf})

		log.Info("search completed")

		assert.Contains(t, buf.String(), "msg=\"search completed\"")
	})

	t.Run("レベル未満のログは出力されない", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

		log.Info("should be suppressed")
		log.Warn("should be written")

		assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
		assert.Contains(t, buf.String(), "should be written")
	})
}
