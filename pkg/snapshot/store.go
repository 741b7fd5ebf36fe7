// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot persists frozen value graphs in an embedded BadgerDB.
//
// Values are stored in the codec's CBOR form under a caller-chosen key.
// A value read back is a new frozen graph; identity with the graph that was
// stored is not preserved, structure and sharing are.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/freeze/codec"
	"github.com/AleutianAI/frost/pkg/validation"
)

var (
	// ErrNotFound is returned by Get and Delete for unknown keys.
	ErrNotFound = errors.New("snapshot not found")

	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("snapshot key is empty")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("snapshot store is closed")
)

// keyPrefix namespaces snapshot entries inside the database.
const keyPrefix = "frost/snapshot/"

// Store is a keyed collection of frozen snapshots.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db    *badger.DB
	codec codec.Codec
	gc    *gcLoop

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates a store.
//
// Outputs:
//
//	*Store - The open store. Caller must Close it.
//	error - Non-nil if the directory or database cannot be opened.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, codec: codec.Codec{Registry: cfg.Registry}}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		g, err := startGC(db, cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.gc = g
	}
	return s, nil
}

func storageKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// acquire holds the read lock for one operation and fails once closed.
func (s *Store) acquire(ctx context.Context, key string, needKey bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if needKey {
		if key == "" {
			return ErrEmptyKey
		}
		if err := validation.ValidateKey(key); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

// Put stores frozen under key, replacing any previous snapshot.
//
// Outputs:
//
//	error - freeze.ErrNotFrozen when frozen is a mutable value, or an
//	        encoding or storage error.
func (s *Store) Put(ctx context.Context, key string, frozen any) error {
	if !freeze.IsFrozen(frozen) {
		return fmt.Errorf("snapshot: put %q: %w", key, freeze.ErrNotFrozen)
	}
	data, err := s.codec.Marshal(frozen)
	if err != nil {
		return fmt.Errorf("snapshot: put %q: %w", key, err)
	}

	if err := s.acquire(ctx, key, true); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey(key), data)
	})
	if err != nil {
		return fmt.Errorf("snapshot: put %q: %w", key, err)
	}
	return nil
}

// Get loads the snapshot under key and freezes it again with opts.
func (s *Store) Get(ctx context.Context, key string, opts ...freeze.Option) (any, error) {
	data, err := s.Raw(ctx, key)
	if err != nil {
		return nil, err
	}
	v, err := s.codec.Unmarshal(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: get %q: %w", key, err)
	}
	return v, nil
}

// Raw returns the encoded bytes stored under key.
func (s *Store) Raw(ctx context.Context, key string) ([]byte, error) {
	if err := s.acquire(ctx, key, true); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("snapshot: get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: get %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the snapshot under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.acquire(ctx, key, true); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(storageKey(key)); err != nil {
			return err
		}
		return txn.Delete(storageKey(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("snapshot: delete %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("snapshot: delete %q: %w", key, err)
	}
	return nil
}

// Keys returns every stored key in ascending byte order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := s.acquire(ctx, "", false); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: list keys: %w", err)
	}
	return keys, nil
}

// Close stops background GC and closes the database. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.gc != nil {
		s.gc.halt()
	}
	return s.db.Close()
}
