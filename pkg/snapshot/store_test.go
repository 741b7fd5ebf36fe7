// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/validation"
)

type Settings struct {
	Name  string
	Ports []int
	Owner *Settings
}

func openMemory(t *testing.T, reg *freeze.Registry) *Store {
	t.Helper()
	cfg := InMemoryConfig()
	cfg.Registry = reg
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	reg := freeze.NewRegistry()
	s := openMemory(t, reg)

	src := &Settings{Name: "api", Ports: []int{80, 443}}
	src.Owner = src
	frozen, err := freeze.Freeze(src, freeze.WithRegistry(reg))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "api", frozen))

	got, err := s.Get(ctx, "api")
	require.NoError(t, err)
	obj := got.(*freeze.Object)
	assert.Equal(t, "api", obj.Attr("Name"))
	assert.Same(t, obj, obj.Attr("Owner").(*freeze.Object))
	assert.True(t, freeze.Equal(frozen.(*freeze.Object).Attr("Ports"), obj.Attr("Ports")))
}

func TestStore_GetAppliesOptions(t *testing.T) {
	ctx := context.Background()
	reg := freeze.NewRegistry()
	s := openMemory(t, reg)

	frozen, err := freeze.Freeze(map[string]int{"a": 1}, freeze.WithRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "m", frozen))

	got, err := s.Get(ctx, "m", freeze.OnUpdate("ignore"))
	require.NoError(t, err)
	assert.NoError(t, got.(*freeze.Map).Set("a", 2))
}

func TestStore_PutRejectsMutable(t *testing.T) {
	s := openMemory(t, freeze.NewRegistry())
	err := s.Put(context.Background(), "k", &Settings{})
	assert.ErrorIs(t, err, freeze.ErrNotFrozen)
}

func TestStore_KeysAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, freeze.NewRegistry())

	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, s.Put(ctx, k, k))
	}
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.ErrorIs(t, s.Delete(ctx, "b"), ErrNotFound)
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, keys)
}

func TestStore_Errors(t *testing.T) {
	s := openMemory(t, freeze.NewRegistry())

	assert.ErrorIs(t, s.Put(context.Background(), "", 1), ErrEmptyKey)
	assert.ErrorIs(t, s.Put(context.Background(), "../escape", 1), validation.ErrInvalidKey)
	_, err := s.Get(context.Background(), "a//b")
	assert.ErrorIs(t, err, validation.ErrInvalidKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Keys(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	reg := freeze.NewRegistry()
	cfg := DefaultConfig(t.TempDir())
	cfg.Registry = reg
	cfg.GCInterval = 0

	s, err := Open(cfg)
	require.NoError(t, err)
	frozen, err := freeze.Freeze(&Settings{Name: "db", Ports: []int{5432}}, freeze.WithRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "db", frozen))
	require.NoError(t, s.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "db")
	require.NoError(t, err)
	back, err := freeze.UnfreezeAs[*Settings](got)
	require.NoError(t, err)
	assert.Equal(t, &Settings{Name: "db", Ports: []int{5432}}, back)
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	cfg := DefaultConfig(t.TempDir())
	cfg.GCDiscardRatio = 2
	_, err = Open(cfg)
	assert.Error(t, err)
}
