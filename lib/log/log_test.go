package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cirrus.log")
	require.NoError(t, Setup(DefaultOptions().WithLevel("warn").WithOutputPaths(out)))
	defer func() {
		require.NoError(t, Setup(DefaultOptions().WithOutputPaths("stderr")))
	}()

	logger := Named("function.agg")
	logger.Infow("dropped", "window", "q/0")
	logger.Warnw("window failed.", "window", "q/1")
	(&PoolLoggerWrapper{Logger: logger}).Printf("pool %d", 1)
	Sync()

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"logger":"function.agg"`)
	assert.Contains(t, string(b), `"window":"q/1"`)
	assert.NotContains(t, string(b), "dropped")
	assert.NotContains(t, string(b), "pool 1")
}

func TestWithLevelUnknown(t *testing.T) {
	opts := DefaultOptions().WithLevel("loud")
	assert.Equal(t, "info", opts.level.String())
}
