package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce collapses the burst of events a single save produces.
const DefaultReloadDebounce = 1500 * time.Millisecond

// Reloader re-reads a configuration file after it changes on disk and hands
// the new snapshot to apply. Saves that leave the contents unchanged are
// skipped.
//
// The parent directory is watched, not the file, so editors that replace the
// file by renaming a temporary copy over it keep being followed.
type Reloader[T any] struct {
	path     string
	debounce time.Duration
	load     func(path string) (T, error)
	apply    func(T)
	onError  func(error)
	logger   *slog.Logger

	applied []byte
}

// ReloaderOption configures a Reloader.
type ReloaderOption[T any] func(*Reloader[T])

// WithDebounce overrides DefaultReloadDebounce.
func WithDebounce[T any](d time.Duration) ReloaderOption[T] {
	return func(r *Reloader[T]) { r.debounce = d }
}

// WithErrorHandler is called with every failed load. The previous settings
// stay in effect either way.
func WithErrorHandler[T any](fn func(error)) ReloaderOption[T] {
	return func(r *Reloader[T]) { r.onError = fn }
}

// NewReloader returns a Reloader for path. Nothing is watched until Run.
func NewReloader[T any](path string, load func(string) (T, error), apply func(T), logger *slog.Logger, opts ...ReloaderOption[T]) *Reloader[T] {
	r := &Reloader[T]{
		path:     filepath.Clean(path),
		debounce: DefaultReloadDebounce,
		load:     load,
		apply:    apply,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run watches until ctx is cancelled. The contents present when Run starts
// count as applied. It returns an error only when the watch cannot be set up.
func (r *Reloader[T]) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
	}

	r.applied, _ = os.ReadFile(r.path)
	r.logger.Info("Watching config file", "path", r.path, "debounce", r.debounce)

	pending := time.NewTimer(r.debounce)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Config watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
				r.logger.Debug("Config file touched", "op", ev.Op.String())
				pending.Reset(r.debounce)
			case ev.Has(fsnotify.Remove):
				r.logger.Warn("Config file removed, keeping current settings", "path", r.path)
			}

		case <-pending.C:
			r.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (r *Reloader[T]) reload() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		r.fail(err)
		return
	}
	if bytes.Equal(data, r.applied) {
		r.logger.Debug("Config file unchanged")
		return
	}

	cfg, err := r.load(r.path)
	if err != nil {
		r.fail(err)
		return
	}
	r.applied = data
	r.logger.Info("Config file changed, applying", "path", r.path)
	r.apply(cfg)
}

func (r *Reloader[T]) fail(err error) {
	r.logger.Warn("Failed to reload config", "path", r.path, "error", err)
	if r.onError != nil {
		r.onError(err)
	}
}
