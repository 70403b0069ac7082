package config

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigReloader watches the configuration file and reloads it on change or
// on SIGHUP. Only reload-safe settings may change at runtime; the rest are
// rejected by validateReloadSafety.
type ConfigReloader struct {
	mu         sync.RWMutex
	configPath string
	current    *Config
	watcher    *fsnotify.Watcher
	logger     *logrus.Logger
	onReload   func(old, new *Config) error
	sighup     chan os.Signal
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewConfigReloader creates a reloader for the given config path. An empty
// path disables file watching; SIGHUP reload remains available.
func NewConfigReloader(configPath string, current *Config, logger *logrus.Logger) (*ConfigReloader, error) {
	r := &ConfigReloader{
		configPath: configPath,
		current:    current,
		logger:     logger,
		sighup:     make(chan os.Signal, 1),
		stop:       make(chan struct{}),
	}

	if configPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Add(configPath); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch config file: %w", err)
		}
		r.watcher = watcher
	}

	signal.Notify(r.sighup, syscall.SIGHUP)
	return r, nil
}

// SetOnReloadCallback registers a callback invoked after a successful reload.
func (r *ConfigReloader) SetOnReloadCallback(cb func(old, new *Config) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = cb
}

// GetCurrentConfig returns the currently active configuration.
func (r *ConfigReloader) GetCurrentConfig() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start blocks, processing file events and SIGHUP until Stop is called.
func (r *ConfigReloader) Start() {
	var events chan fsnotify.Event
	var errs chan error
	if r.watcher != nil {
		events = r.watcher.Events
		errs = r.watcher.Errors
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				r.reload("file change")
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			r.logger.WithError(err).Warn("Config watcher error")
		case <-r.sighup:
			r.reload("SIGHUP")
		case <-r.stop:
			return
		}
	}
}

// Stop terminates the reloader and releases the watcher.
func (r *ConfigReloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		signal.Stop(r.sighup)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

// reload re-reads the config file and swaps the active config if the change
// is reload-safe.
func (r *ConfigReloader) reload(trigger string) {
	newConfig, err := LoadConfig(r.configPath)
	if err != nil {
		r.logger.WithError(err).WithField("trigger", trigger).Error("Config reload failed, keeping previous configuration")
		return
	}

	r.mu.Lock()
	old := r.current
	if err := r.validateReloadSafety(old, newConfig); err != nil {
		r.mu.Unlock()
		r.logger.WithError(err).WithField("trigger", trigger).Error("Config reload rejected")
		return
	}
	r.current = newConfig
	cb := r.onReload
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"trigger":   trigger,
		"log_level": newConfig.LogLevel,
	}).Info("Configuration reloaded")

	if cb != nil {
		if err := cb(old, newConfig); err != nil {
			r.logger.WithError(err).Error("Config reload callback failed")
		}
	}
}

// validateReloadSafety rejects runtime changes to settings that cannot be
// applied without a restart.
func (r *ConfigReloader) validateReloadSafety(old, new *Config) error {
	if old == nil || new == nil {
		return nil
	}
	if old.ListenAddr != "" && old.ListenAddr != new.ListenAddr {
		return fmt.Errorf("listen_addr cannot be changed at runtime")
	}
	if old.Store.Addr != "" && old.Store.Addr != new.Store.Addr {
		return fmt.Errorf("store.addr cannot be changed at runtime")
	}
	if old.TLS.Enabled != new.TLS.Enabled {
		return fmt.Errorf("tls.enabled cannot be changed at runtime")
	}
	if old.Session.SealAlgorithm != "" && old.Session.SealAlgorithm != new.Session.SealAlgorithm {
		return fmt.Errorf("session.seal_algorithm cannot be changed at runtime")
	}
	return nil
}
