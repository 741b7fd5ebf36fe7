// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Document struct {
	Title    string
	Tags     []string
	Meta     map[string]int
	Labels   map[string]struct{}
	Raw      []byte
	Created  time.Time
	Child    *Document
	Position Point
	Extra    any
	revision int
}

func sampleDocument() *Document {
	return &Document{
		Title:    "root",
		Tags:     []string{"a", "b"},
		Meta:     map[string]int{"views": 3},
		Labels:   map[string]struct{}{"draft": {}},
		Raw:      []byte("raw"),
		Created:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Child:    &Document{Title: "child"},
		Position: Point{X: 1, Y: 2},
		Extra:    []any{"x", 1.5},
		revision: 7,
	}
}

func TestUnfreeze_RoundTrip(t *testing.T) {
	for _, mode := range []string{StrategyCopy, StrategyInPlace} {
		t.Run(mode, func(t *testing.T) {
			doc := sampleDocument()
			frozen := mustFreeze(t, doc, OnFreeze(mode))

			back, err := Unfreeze(frozen)
			require.NoError(t, err)
			got, ok := back.(*Document)
			require.True(t, ok)

			assert.Equal(t, doc, got)
			assert.NotSame(t, doc, got)
			assert.Equal(t, 7, got.revision)
		})
	}
}

func TestUnfreeze_Primitives(t *testing.T) {
	got, err := Unfreeze(5)
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	got, err = Unfreeze(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnfreeze_ReproducesCyclesAndSharing(t *testing.T) {
	n := &Node{Name: "n"}
	n.Ref = n
	back, err := Unfreeze(mustFreeze(t, n))
	require.NoError(t, err)
	node := back.(*Node)
	assert.Same(t, node, node.Ref)

	shared := &Point{X: 1}
	back, err = Unfreeze(mustFreeze(t, &Pair2{A: shared, B: shared}))
	require.NoError(t, err)
	pair := back.(*Pair2)
	assert.Same(t, pair.A, pair.B)
	assert.NotSame(t, shared, pair.A)
}

func TestUnfreeze_NilContainers(t *testing.T) {
	doc := &Document{Title: "empty"}
	back, err := Unfreeze(mustFreeze(t, doc))
	require.NoError(t, err)

	got := back.(*Document)
	assert.Nil(t, got.Tags)
	assert.Nil(t, got.Meta)
	assert.Nil(t, got.Child)
}

func TestUnfreezeAs(t *testing.T) {
	frozen := mustFreeze(t, []int{1, 2, 3})

	arr, err := UnfreezeAs[[3]int64](frozen)
	require.NoError(t, err)
	assert.Equal(t, [3]int64{1, 2, 3}, arr)

	s, err := UnfreezeAs[[]int](frozen)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, s)

	_, err = UnfreezeAs[string](frozen)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = UnfreezeAs[[]string](frozen)
	assert.ErrorIs(t, err, ErrTypeMismatch, "numbers never convert to strings")

	p, err := UnfreezeAs[Point](mustFreeze(t, &Point{X: 4}))
	require.NoError(t, err)
	assert.Equal(t, Point{X: 4}, p)
}

func TestUnfreezeInto(t *testing.T) {
	var dst map[string][]int
	err := UnfreezeInto(mustFreeze(t, map[string][]int{"a": {1}}), &dst)
	require.NoError(t, err)
	assert.Equal(t, map[string][]int{"a": {1}}, dst)

	err = UnfreezeInto(mustFreeze(t, 1), dst)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUnfreeze_StandaloneAdapters(t *testing.T) {
	m, err := NewMap(Pair{"a", []int{1}})
	require.NoError(t, err)

	back, err := Unfreeze(m)
	require.NoError(t, err)
	assert.Equal(t, map[any]any{"a": []int{1}}, back)
}
