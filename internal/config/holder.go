// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload
// support. Components that must observe live configuration (the error
// handler chain, debug toggles, security limits) call Get on every request
// instead of capturing the config at construction time.
type Holder struct {
	mu      sync.RWMutex
	config  *Config
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewHolder creates a holder around an already loaded configuration. The
// path may be empty when the configuration was built programmatically; such
// holders cannot reload.
func NewHolder(cfg *Config, path string, logger zerolog.Logger) *Holder {
	return &Holder{config: cfg, path: path, logger: logger, stopCh: make(chan struct{})}
}

// LoadHolder loads the configuration file at path and wraps it in a Holder.
func LoadHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	return NewHolder(cfg, absPath, logger), nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Set replaces the current configuration. Intended for tests and
// programmatic embedding.
func (h *Holder) Set(cfg *Config) {
	h.mu.Lock()
	h.config = cfg
	h.mu.Unlock()
}

// Reload re-reads the configuration from disk. On failure the previous
// configuration is kept.
func (h *Holder) Reload() error {
	if h.path == "" {
		return fmt.Errorf("config holder has no backing file")
	}
	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}
	h.Set(newCfg)
	h.logger.Info().Str("path", h.path).Msg("configuration reloaded")
	return nil
}

// WatchFile starts watching the config file for changes. Changes trigger an
// automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory; editors doing atomic saves replace the file.
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()
	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

func (h *Holder) watchLoop() {
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Clean(ev.Name), h.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				_ = h.Reload()
			}
		case _, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
		case <-h.stopCh:
			return
		}
	}
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-sigCh:
				_ = h.Reload()
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Close stops all watchers.
func (h *Holder) Close() {
	close(h.stopCh)
	if h.watcher != nil {
		h.watcher.Close()
	}
}
