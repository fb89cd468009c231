package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, format string) (*Logger, string, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	var stdout bytes.Buffer
	logger, err := NewLogger(Options{Level: "debug", Format: format, File: path, Stdout: &stdout})
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger, path, &stdout
}

func TestLogger_WritesFileAndConsole(t *testing.T) {
	logger, path, stdout := newTestLogger(t, "json")

	loaderLog := logger.Component("loader")
	loaderLog.Info().Int("rows", 42).Msg("数据加载完成")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"loader"`)
	assert.Contains(t, string(data), `"rows":42`)
	assert.Equal(t, string(data), stdout.String())
}

func TestLogger_ConsoleFormat(t *testing.T) {
	logger, _, stdout := newTestLogger(t, "console")
	logger.Warn().Str("county", "Mobile").Msg("no rows")

	line := stdout.String()
	assert.Contains(t, line, "WRN")
	assert.Contains(t, line, "no rows")
	assert.Contains(t, line, "county=Mobile")
}

func TestLogger_Level(t *testing.T) {
	var stdout bytes.Buffer
	logger, err := NewLogger(Options{Level: "warn", Format: "json", Stdout: &stdout})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Error().Msg("shown")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "shown")

	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING"))
}

func TestLogger_Subscribe(t *testing.T) {
	logger, _, _ := newTestLogger(t, "json")
	sub := logger.Subscribe()

	logger.Info().Msg("first")
	select {
	case msg := <-sub:
		assert.Contains(t, msg, "first")
		assert.False(t, strings.HasSuffix(msg, "\n"))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive log entry")
	}

	logger.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
	logger.Info().Msg("after unsubscribe")
}

func TestLogger_Rotate(t *testing.T) {
	logger, path, _ := newTestLogger(t, "json")

	rotated, err := logger.CheckRotate(1 << 20)
	require.NoError(t, err)
	assert.False(t, rotated)

	for i := 0; i < 20; i++ {
		logger.Info().Int("i", i).Msg("filling the log file")
	}
	rotated, err = logger.CheckRotate(100)
	require.NoError(t, err)
	assert.True(t, rotated)

	logger.Info().Msg("fresh")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fresh")
	assert.NotContains(t, string(data), "filling")

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "app.*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLogger_Reopen(t *testing.T) {
	logger, path, _ := newTestLogger(t, "json")
	logger.Info().Msg("before")

	moved := path + ".1"
	require.NoError(t, os.Rename(path, moved))
	require.NoError(t, logger.Reopen())
	logger.Info().Msg("after")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after")
	assert.NotContains(t, string(data), "before")
}
