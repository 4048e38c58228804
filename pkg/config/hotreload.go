package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"commetrics-server/pkg/metrics"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ReloadCallback is invoked after a changed configuration file loads successfully
type ReloadCallback func(oldConfig, newConfig *Config) error

// ReloadEvent describes one reload attempt
type ReloadEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	ConfigPath  string         `json:"config_path"`
	Success     bool           `json:"success"`
	Changes     []ConfigChange `json:"changes,omitempty"`
	ReloadTime  time.Duration  `json:"reload_time"`
	TriggerType string         `json:"trigger_type"` // "file" or "manual"
}

// ConfigChange is a single setting that differs between two configurations
type ConfigChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`

	// Whether the running server picks the change up without a restart
	Reloadable bool `json:"reloadable"`
}

// Watcher reloads the configuration when CONFIG_FILE changes on disk
type Watcher struct {
	path      string
	logger    *logrus.Logger
	watcher   *fsnotify.Watcher
	current   *Config
	callbacks []ReloadCallback
	debounce  time.Duration

	stop    chan struct{}
	done    chan struct{}
	running bool
	mutex   sync.RWMutex
}

// NewWatcher creates a watcher for path. current is the configuration already in use.
func NewWatcher(path string, current *Config, logger *logrus.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("no configuration file to watch")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:     absPath,
		logger:   logger,
		watcher:  fsWatcher,
		current:  current,
		debounce: 2 * time.Second,
	}, nil
}

// OnReload registers a callback run after every successful reload
func (w *Watcher) OnReload(callback ReloadCallback) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Current returns the most recently loaded configuration
func (w *Watcher) Current() *Config {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.current
}

// Start begins watching until ctx is done or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.running {
		return fmt.Errorf("config watcher already started")
	}

	// Editors often replace the file, so watch the directory and filter by name
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true
	go w.run(ctx, w.stop, w.done)

	w.logger.WithField("config_path", w.path).Info("Configuration hot-reload started")
	return nil
}

// Stop ends watching and releases the file watcher
func (w *Watcher) Stop() {
	w.mutex.Lock()
	if !w.running {
		w.mutex.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mutex.Unlock()

	<-done
	w.watcher.Close()
	w.logger.Info("Configuration hot-reload stopped")
}

// IsRunning reports whether the watcher is active
func (w *Watcher) IsRunning() bool {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.running
}

func (w *Watcher) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"file":  event.Name,
			}).Debug("Configuration file changed")

			// Collapse bursts of writes into a single reload
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			if _, err := w.Reload("file"); err != nil {
				w.logger.WithError(err).Error("Configuration reload failed, keeping previous configuration")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Config file watcher error")
		}
	}
}

// Reload loads the configuration again and runs the callbacks. A configuration
// that fails to load or validate leaves the current one in place.
func (w *Watcher) Reload(trigger string) (*ReloadEvent, error) {
	start := time.Now()
	event := &ReloadEvent{
		Timestamp:   start,
		ConfigPath:  w.path,
		TriggerType: trigger,
	}

	newConfig, err := Load(w.logger)
	if err != nil {
		event.ReloadTime = time.Since(start)
		metrics.RecordConfigReload("error")
		return event, fmt.Errorf("failed to load configuration: %w", err)
	}

	w.mutex.Lock()
	oldConfig := w.current
	w.current = newConfig
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mutex.Unlock()

	event.Changes = detectChanges(oldConfig, newConfig)
	for _, change := range event.Changes {
		if !change.Reloadable {
			w.logger.WithField("field", change.Field).Warn("Configuration change requires a restart to take effect")
		}
	}

	var failed int
	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			failed++
			w.logger.WithError(err).Error("Configuration reload callback failed")
		}
	}

	event.ReloadTime = time.Since(start)
	event.Success = failed == 0
	if failed > 0 {
		metrics.RecordConfigReload("partial")
		return event, fmt.Errorf("%d reload callbacks failed", failed)
	}

	metrics.RecordConfigReload("success")
	w.logger.WithFields(logrus.Fields{
		"changes":     len(event.Changes),
		"reload_time": event.ReloadTime,
		"trigger":     trigger,
	}).Info("Configuration reloaded")

	return event, nil
}

// detectChanges lists the settings that differ. Logging is the only section
// applied live; the rest is read once at startup.
func detectChanges(oldConfig, newConfig *Config) []ConfigChange {
	if oldConfig == nil {
		return nil
	}

	var changes []ConfigChange
	add := func(field string, oldValue, newValue interface{}, reloadable bool) {
		if oldValue != newValue {
			changes = append(changes, ConfigChange{
				Field:      field,
				OldValue:   oldValue,
				NewValue:   newValue,
				Reloadable: reloadable,
			})
		}
	}

	add("logging.level", oldConfig.Logging.Level, newConfig.Logging.Level, true)
	add("logging.format", oldConfig.Logging.Format, newConfig.Logging.Format, true)
	add("logging.output_file", oldConfig.Logging.OutputFile, newConfig.Logging.OutputFile, true)

	add("http.port", oldConfig.HTTP.Port, newConfig.HTTP.Port, false)
	add("database.host", oldConfig.Database.Host, newConfig.Database.Host, false)
	add("database.name", oldConfig.Database.Name, newConfig.Database.Name, false)
	add("cache.enabled", oldConfig.Cache.Enabled, newConfig.Cache.Enabled, false)
	add("auth.enabled", oldConfig.Auth.Enabled, newConfig.Auth.Enabled, false)
	add("analysis.default_period_days", oldConfig.Analysis.DefaultPeriodDays, newConfig.Analysis.DefaultPeriodDays, false)
	add("digest.schedule", oldConfig.Digest.Schedule, newConfig.Digest.Schedule, false)
	add("rate_limit.requests_per_second", oldConfig.RateLimit.RequestsPerSecond, newConfig.RateLimit.RequestsPerSecond, false)

	return changes
}
