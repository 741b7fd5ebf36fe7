// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/frost/pkg/freeze"
)

// Config holds configuration for a snapshot store.
type Config struct {
	// Dir is the directory for database files. Required unless InMemory
	// is set.
	Dir string

	// InMemory keeps everything in RAM. Data is lost on Close.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal messages. Nil silences them.
	Logger *slog.Logger

	// Registry resolves frozen type names on Get. Nil means the default
	// registry.
	Registry *freeze.Registry

	// GCInterval is how often value log garbage collection runs. Zero
	// disables it. Never runs for in-memory stores.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns a durable on-disk configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// slogAdapter routes badger's logger interface to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// openDB opens badger according to cfg.
func openDB(cfg Config) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("snapshot: dir is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("snapshot: create store directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open badger: %w", err)
	}
	return db, nil
}

// gcLoop runs value log GC until stop is closed.
type gcLoop struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
}

func startGC(db *badger.DB, cfg Config) (*gcLoop, error) {
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
		return nil, fmt.Errorf("snapshot: gc discard ratio %v must be in (0, 1)", cfg.GCDiscardRatio)
	}
	g := &gcLoop{
		db:       db,
		interval: cfg.GCInterval,
		ratio:    cfg.GCDiscardRatio,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go g.run()
	return g, nil
}

func (g *gcLoop) run() {
	defer close(g.done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			err := g.db.RunValueLogGC(g.ratio)
			// ErrNoRewrite only means there was nothing to collect.
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && g.logger != nil {
				g.logger.Warn("snapshot value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (g *gcLoop) halt() {
	close(g.stop)
	<-g.done
}
