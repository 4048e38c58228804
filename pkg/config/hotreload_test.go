package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path, level string) {
	t.Helper()
	content := "logging:\n  level: " + level + "\nhttp:\n  port: 9090\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commetrics.yaml")
	writeConfigFile(t, path, "info")
	t.Setenv("CONFIG_FILE", path)

	initial, err := Load(testLogger())
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, testLogger())
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	var mu sync.Mutex
	var levels []string
	w.OnReload(func(oldConfig, newConfig *Config) error {
		mu.Lock()
		defer mu.Unlock()
		levels = append(levels, newConfig.Logging.Level)
		return nil
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))

	writeConfigFile(t, path, "debug")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "debug", levels[len(levels)-1])
	mu.Unlock()
	assert.Equal(t, "debug", w.Current().Logging.Level)
}

func TestWatcher_InvalidFileKeepsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commetrics.yaml")
	writeConfigFile(t, path, "warn")
	t.Setenv("CONFIG_FILE", path)

	initial, err := Load(testLogger())
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, testLogger())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("logging: [broken"), 0644))
	event, err := w.Reload("manual")
	assert.Error(t, err)
	assert.False(t, event.Success)
	assert.Same(t, initial, w.Current())
}

func TestWatcher_ReportsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commetrics.yaml")
	writeConfigFile(t, path, "info")
	t.Setenv("CONFIG_FILE", path)

	initial, err := Load(testLogger())
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, testLogger())
	require.NoError(t, err)
	w.OnReload(func(oldConfig, newConfig *Config) error {
		return assert.AnError
	})

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\nhttp:\n  port: 9191\n"), 0644))
	event, err := w.Reload("manual")
	assert.Error(t, err)
	assert.False(t, event.Success)

	// the new configuration is in place even when a callback fails
	assert.Equal(t, "error", w.Current().Logging.Level)

	fields := map[string]bool{}
	for _, change := range event.Changes {
		fields[change.Field] = change.Reloadable
	}
	assert.Equal(t, map[string]bool{"logging.level": true, "http.port": false}, fields)
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("", Default(), testLogger())
	assert.Error(t, err)

	w, err := NewWatcher(filepath.Join(t.TempDir(), "x.yaml"), Default(), testLogger())
	require.NoError(t, err)
	assert.False(t, w.IsRunning())
	w.Stop()
}
