package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/paycart/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected config.LogLevel
	}{
		{"off", config.LogLevelOff},
		{"none", config.LogLevelOff},
		{"error", config.LogLevelError},
		{"ERROR", config.LogLevelError},
		{"debug", config.LogLevelDebug},
		{" Debug ", config.LogLevelDebug},
		{"unknown", config.LogLevelError},
		{"", config.LogLevelError},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, config.ParseLogLevel(tc.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "off", config.LogLevelOff.String())
	assert.Equal(t, "error", config.LogLevelError.String())
	assert.Equal(t, "debug", config.LogLevelDebug.String())
	assert.Equal(t, "error", config.LogLevel(99).String())
}

func TestNewLogger_NoFile(t *testing.T) {
	t.Parallel()
	logger, err := config.NewLogger(config.LogLevelOff, "/should/not/be/created/log")
	require.NoError(t, err)
	logger.Error("ignored")
	require.NoError(t, logger.Close())

	logger, err = config.NewLogger(config.LogLevelDebug, "")
	require.NoError(t, err)
	logger.Debug("ignored")
	require.NoError(t, logger.Close())
}

func TestNewLogger_WritesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "paycart.log")

	logger, err := config.NewLogger(config.LogLevelDebug, path)
	require.NoError(t, err)
	logger.Debug("dial %s", "rpc")
	logger.Named("checkout").Error("failed: %d", 7)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close is a no-op")

	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[DEBUG] dial rpc")
	assert.Contains(t, lines[1], "[ERROR] [checkout] failed: 7")
}

func TestNewLogger_InvalidPath(t *testing.T) {
	t.Parallel()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := config.NewLogger(config.LogLevelError, filepath.Join(blocker, "paycart.log"))
	require.Error(t, err)
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelError, &buf)

	logger.Debug("hidden")
	logger.Error("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	logger.SetLevel(config.LogLevelDebug)
	assert.Equal(t, config.LogLevelDebug, logger.Level())
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")

	logger.SetLevel(config.LogLevelOff)
	logger.Error("silenced")
	assert.NotContains(t, buf.String(), "silenced")
}

func TestLogger_NamedNesting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelDebug, &buf).Named("eth").Named("receipt")
	logger.Debug("polling")
	assert.Contains(t, buf.String(), "[eth.receipt] polling")
}

func TestLogger_Writer(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelError, &buf)

	n, err := logger.Writer(config.LogLevelError).Write([]byte("from writer\n"))
	require.NoError(t, err)
	assert.Equal(t, len("from writer\n"), n)
	_, _ = logger.Writer(config.LogLevelDebug).Write([]byte("filtered"))

	assert.Contains(t, buf.String(), "[ERROR] from writer")
	assert.NotContains(t, buf.String(), "filtered")
}

func TestNullLogger(t *testing.T) {
	t.Parallel()
	logger := config.NullLogger()
	logger.Error("nothing")
	logger.Debug("nothing")
	assert.Equal(t, config.LogLevelOff, logger.Level())
	require.NoError(t, logger.Close())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestLogger_Concurrent(t *testing.T) {
	t.Parallel()
	out := &lockedBuffer{}
	logger := config.NewWriterLogger(config.LogLevelDebug, out)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Named("worker").Debug("message %d", n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, strings.Count(out.buf.String(), "\n"))
}
