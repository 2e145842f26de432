package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tadaa_concierge/internal/config"
)

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	err := InitLogger(config.LogConfig{Level: "chatty", Output: "stdout"})
	assert.Error(t, err)
}

func TestInitLoggerWritesToFile(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, InitLogger(config.LogConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	}))

	Info().Str("conversation_id", "c-1").Msg("turn processed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conversation_id":"c-1"`)
	assert.Contains(t, string(data), `"service":"tadaa-concierge"`)
	assert.Contains(t, string(data), "Logger initialized successfully")

	require.NoError(t, Close())
	Info().Msg("after close")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after close")
}

func TestNewAppliesLevelWithoutGlobalState(t *testing.T) {
	l, closer, err := New(config.LogConfig{Level: "warn", Output: "stdout"})
	require.NoError(t, err)
	assert.Nil(t, closer)

	var buf bytes.Buffer
	l = l.Output(&buf)
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
