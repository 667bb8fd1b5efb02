package logger

import (
	"os"
	"path/filepath"
	"testing"

	"dipsim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dipsim.log")

	l := InitLogger(models.LogConfig{Level: "debug", Output: "file", File: path, MaxSize: 1})
	require.NotNil(t, l)
	assert.Same(t, l, L())

	S().Debugw("simulated symbol", "symbol", "SPLG", "events", 12)
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "simulated symbol")
	assert.Contains(t, string(data), "SPLG")
}

func TestInitLogger_BadLevelFallsBackToInfo(t *testing.T) {
	l := InitLogger(models.LogConfig{Level: "chatty", Output: "console"})
	assert.False(t, l.Core().Enabled(zap.DebugLevel), "debug must be disabled")
	assert.True(t, l.Core().Enabled(zap.InfoLevel), "info must be enabled")
}
