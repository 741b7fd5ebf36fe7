// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reports debounced changes to a fixed set of files.
//
// Editors often save by writing a temporary file and renaming it over the
// original, which drops a plain watch on the file itself. The watcher
// therefore watches each file's directory and filters events by path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNoFiles is returned by New when there is nothing to watch.
var ErrNoFiles = errors.New("watch: no files")

// Handler receives the paths that changed during one debounce window, each
// once, in first-seen order. It runs on the watcher goroutine.
type Handler func(ctx context.Context, paths []string)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is delivered.
	// Default: 100ms
	Debounce time.Duration

	// Logger receives watch errors. Nil uses slog.Default.
	Logger *slog.Logger
}

// Watcher watches files for writes and creates.
//
// # Thread Safety
//
// Run may be called once. Close is safe to call from any goroutine.
type Watcher struct {
	files    map[string]bool
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	fsw       *fsnotify.Watcher
	closeOnce sync.Once
}

// New creates a watcher for paths. Paths are made absolute; their
// directories must exist.
func New(paths []string, handler Handler, opts Options) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	if handler == nil {
		return nil, errors.New("watch: nil handler")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		files:    make(map[string]bool, len(paths)),
		handler:  handler,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		fsw:      fsw,
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch: %s: %w", p, err)
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch: %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	return w, nil
}

// Run delivers batches to the handler until ctx is canceled or Close is
// called. A pending batch is dropped on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	var (
		batch  []string
		queued = make(map[string]bool)
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if !w.relevant(name, event.Op) {
				continue
			}
			if !queued[name] {
				queued[name] = true
				batch = append(batch, name)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			paths := batch
			batch = nil
			clear(queued)
			timer, timerC = nil, nil
			w.handler(ctx, paths)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// relevant keeps writes and creates of watched files. A create covers the
// rename-over-original save.
func (w *Watcher) relevant(name string, op fsnotify.Op) bool {
	return w.files[name] && (op.Has(fsnotify.Write) || op.Has(fsnotify.Create))
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}
