package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), JobIDKey, "750x0000")
	ctx = context.WithValue(ctx, ResultRefKey, "https://example.com/results")

	FromContext(ctx, base).Info("staged")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "750x0000", fields["job_id"])
	assert.Equal(t, "https://example.com/results", fields["result_ref"])
}

func TestInitReplacesGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nebula.log")
	require.NoError(t, Init(Config{Level: "debug", Encoding: "json", OutputPaths: []string{path}}))
	t.Cleanup(func() { _ = Init(Config{}) })

	With(zap.String("component", "test")).Debug("hello", zap.Int("n", 1))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}
