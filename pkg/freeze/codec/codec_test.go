// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/frost/pkg/freeze"
)

type Item struct {
	Name    string
	Tags    []string
	Meta    map[string]int
	Labels  map[string]struct{}
	Child   *Item
	When    time.Time
	Extra   any
	Score   *float64
	Weights [2]int
	note    string
}

type Ring struct {
	Name string
	Next *Ring
}

type Callback struct {
	Fn func()
}

func freezeWith(t *testing.T, reg *freeze.Registry, v any, opts ...freeze.Option) any {
	t.Helper()
	frozen, err := freeze.Freeze(v, append([]freeze.Option{freeze.WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	return frozen
}

func sampleItem() *Item {
	score := 0.5
	return &Item{
		Name:    "root",
		Tags:    []string{"a", "b"},
		Meta:    map[string]int{"views": 3, "likes": -1},
		Labels:  map[string]struct{}{"draft": {}},
		Child:   &Item{Name: "child"},
		When:    time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC),
		Extra:   []any{"x", 1.5, true},
		Score:   &score,
		Weights: [2]int{7, 8},
		note:    "private",
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	reg := freeze.NewRegistry()
	c := Codec{Registry: reg}
	src := sampleItem()

	data, err := c.Marshal(freezeWith(t, reg, src))
	require.NoError(t, err)

	decoded, err := c.Unmarshal(data)
	require.NoError(t, err)
	require.True(t, freeze.IsFrozen(decoded))

	back, err := freeze.UnfreezeAs[*Item](decoded)
	require.NoError(t, err)

	want := sampleItem()
	want.note = ""
	assert.Equal(t, want, back)
}

func TestCodec_PreservesCyclesAndSharing(t *testing.T) {
	reg := freeze.NewRegistry()
	c := Codec{Registry: reg}

	a := &Ring{Name: "a"}
	b := &Ring{Name: "b", Next: a}
	a.Next = b

	data, err := c.Marshal(freezeWith(t, reg, []any{a, b, a}))
	require.NoError(t, err)
	decoded, err := c.Unmarshal(data)
	require.NoError(t, err)

	seq := decoded.(*freeze.Sequence)
	first, _ := seq.Get(0)
	second, _ := seq.Get(1)
	third, _ := seq.Get(2)

	objA := first.(*freeze.Object)
	objB := second.(*freeze.Object)
	assert.Same(t, objA, third.(*freeze.Object))
	assert.Same(t, objB, objA.Attr("Next").(*freeze.Object))
	assert.Same(t, objA, objB.Attr("Next").(*freeze.Object))
}

func TestCodec_UntypedGraph(t *testing.T) {
	reg := freeze.NewRegistry()
	src := map[string]any{"a": 1, "items": []any{1, map[string]any{"x": 2}}}

	data, err := Codec{Registry: reg}.Marshal(freezeWith(t, reg, src))
	require.NoError(t, err)
	decoded, err := Codec{Registry: reg}.Unmarshal(data)
	require.NoError(t, err)

	out, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"items":[1,{"x":2}]}`, string(out))

	m := decoded.(*freeze.Map)
	a, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, a)
}

func TestCodec_Deterministic(t *testing.T) {
	reg := freeze.NewRegistry()
	c := Codec{Registry: reg}

	first, err := c.Marshal(freezeWith(t, reg, sampleItem()))
	require.NoError(t, err)
	second, err := c.Marshal(freezeWith(t, reg, sampleItem()))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCodec_NumericBuffers(t *testing.T) {
	reg := freeze.NewRegistry()
	frozen := freezeWith(t, reg, []float64{1, 2.5}, freeze.WithNumericBuffers(true))

	data, err := Codec{Registry: reg}.Marshal(frozen)
	require.NoError(t, err)
	decoded, err := Codec{Registry: reg}.Unmarshal(data)
	require.NoError(t, err)

	buf, ok := decoded.(*freeze.Buffer)
	require.True(t, ok)
	values, err := freeze.BufferValues[float64](buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5}, values)
}

func TestCodec_UnmarshalAppliesOptions(t *testing.T) {
	reg := freeze.NewRegistry()
	c := Codec{Registry: reg}
	data, err := c.Marshal(freezeWith(t, reg, &Ring{Name: "r"}))
	require.NoError(t, err)

	decoded, err := c.Unmarshal(data, freeze.OnUpdate("ignore"))
	require.NoError(t, err)

	obj := decoded.(*freeze.Object)
	assert.Equal(t, freeze.ModeIgnore, obj.Policy().Mode())
	assert.NoError(t, obj.Set("Name", "changed"))
	assert.Equal(t, "r", obj.Attr("Name"))

	_, err = c.Unmarshal(data, freeze.OnUpdate("loud"))
	assert.ErrorIs(t, err, freeze.ErrInvalidConfig)
}

func TestCodec_Errors(t *testing.T) {
	reg := freeze.NewRegistry()

	t.Run("not frozen", func(t *testing.T) {
		_, err := Marshal(&Ring{})
		assert.ErrorIs(t, err, freeze.ErrNotFrozen)
	})

	t.Run("func attribute", func(t *testing.T) {
		_, err := Codec{Registry: reg}.Marshal(freezeWith(t, reg, &Callback{Fn: func() {}}))
		assert.ErrorIs(t, err, freeze.ErrUnsupported)
	})

	t.Run("unknown type", func(t *testing.T) {
		data, err := Codec{Registry: reg}.Marshal(freezeWith(t, reg, &Ring{Name: "r"}))
		require.NoError(t, err)

		_, err = Codec{Registry: freeze.NewRegistry()}.Unmarshal(data)
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Unmarshal([]byte{0xff, 0x00})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("version", func(t *testing.T) {
		data, err := encMode.Marshal(document{Version: 99, Root: &node{Kind: kindNil}})
		require.NoError(t, err)
		_, err = Unmarshal(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("dangling reference", func(t *testing.T) {
		data, err := encMode.Marshal(document{Version: formatVersion, Root: &node{Kind: kindRef, Ref: 4}})
		require.NoError(t, err)
		_, err = Unmarshal(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestCodec_NilRoot(t *testing.T) {
	data, err := Marshal(nil)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}
