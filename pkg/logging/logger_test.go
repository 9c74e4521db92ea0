package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DEBUG.String())
	assert.Equal(t, "INFO", INFO.String())
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "ERROR", ERROR.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "s", Value: "v"}, String("s", "v"))
	assert.Equal(t, Field{Key: "i", Value: 7}, Int("i", 7))
	assert.Equal(t, Field{Key: "f", Value: 1.5}, Float64("f", 1.5))
	assert.Equal(t, Field{Key: "b", Value: true}, Bool("b", true))
	assert.Equal(t, Field{Key: "d", Value: "1s"}, Duration("d", time.Second))
	assert.Equal(t, Field{Key: "error", Value: "boom"}, Error(errors.New("boom")))
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	// Must not panic and WithFields must stay a no-op.
	l.Debug("a")
	l.WithFields(String("k", "v")).Error("b", Int("n", 1))
}

func TestZapLoggerWritesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l := NewZapLogger(WithLogLevel(DEBUG), WithOutputPaths(path))

	l.WithFields(String("exchange", "binance")).Info("markets loaded", Int("count", 3))
	zl, ok := l.(*ZapLogger)
	require.True(t, ok)
	require.NoError(t, zl.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "markets loaded")
	assert.Contains(t, out, "binance")
	assert.Contains(t, out, `"count":3`)
}

func TestZapLoggerLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l := NewZapLogger(WithLogLevel(ERROR), WithOutputPaths(path))

	l.Info("suppressed")
	l.Error("kept")
	zl := l.(*ZapLogger)
	require.NoError(t, zl.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "kept")
}
