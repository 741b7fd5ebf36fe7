// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Tagged struct {
	ID     int    `json:"id" yaml:"ident"`
	Secret string `json:"-"`
	Hidden string `freeze:"-"`
	Plain  string
}

func TestRegistry_GetOrCreate(t *testing.T) {
	reg := NewRegistry()

	ft, created := reg.GetOrCreate(reflect.TypeFor[Point]())
	require.True(t, created)
	assert.Equal(t, "FrozenPointFromGithubComAleutianAIFrostPkgFreeze", ft.Name())
	assert.Equal(t, "github.com/AleutianAI/frost/pkg/freeze.Point", ft.QualifiedName())
	assert.Equal(t, "Point", ft.HotName())
	assert.Equal(t, "github.com/AleutianAI/frost/pkg/freeze", ft.HotModule())
	assert.Equal(t, []string{"X", "Y"}, ft.Attributes())
	assert.Equal(t, ft.Name(), ft.String())

	again, created := reg.GetOrCreate(reflect.TypeFor[Point]())
	assert.False(t, created)
	assert.Same(t, ft, again)
}

func TestRegistry_CachesByType(t *testing.T) {
	type Point struct{ Z int }

	reg := NewRegistry()
	local, _ := reg.GetOrCreate(reflect.TypeFor[Point]())
	again, created := reg.GetOrCreate(reflect.TypeFor[Point]())
	assert.False(t, created)
	assert.Same(t, local, again)
	assert.Equal(t, []string{"Z"}, local.Attributes())
}

func TestRegistry_SuffixOnClash(t *testing.T) {
	type Point struct{ Z int }

	reg := NewRegistry()
	first, _ := reg.GetOrCreate(reflect.TypeFor[Point]())
	second, created := reg.GetOrCreate(reflect.TypeFor[packagePoint]())
	require.True(t, created)

	assert.Equal(t, "FrozenPointFromGithubComAleutianAIFrostPkgFreeze", first.Name())
	assert.True(t, strings.HasPrefix(second.Name(), first.Name()+"_"))
	assert.Len(t, second.Name(), len(first.Name())+9)

	byName, ok := reg.LookupName(second.Name())
	require.True(t, ok)
	assert.Same(t, second, byName)
	assert.Equal(t, 2, reg.Len())

	// The qualified name resolves to whichever type registered it first.
	byKey, ok := reg.Lookup(second.QualifiedName())
	require.True(t, ok)
	assert.Same(t, first, byKey)
}

type packagePoint = Point

type Box[T any] struct{ V T }

// Boxint camel-cases to the same bare name as Box[int].
type Boxint struct{ V int }

func TestRegistry_AmbiguousNamesIgnoreOrder(t *testing.T) {
	const bare = "FrozenBoxintFromGithubComAleutianAIFrostPkgFreeze"
	generic, plain := reflect.TypeFor[Box[int]](), reflect.TypeFor[Boxint]()

	register := func(first, second reflect.Type) (*FrozenType, *FrozenType) {
		reg := NewRegistry()
		a, _ := reg.GetOrCreate(first)
		b, _ := reg.GetOrCreate(second)
		return a, b
	}
	g1, p1 := register(generic, plain)
	p2, g2 := register(plain, generic)

	assert.Equal(t, g1.Name(), g2.Name())
	assert.Equal(t, p1.Name(), p2.Name())
	assert.NotEqual(t, g1.Name(), p1.Name())
	assert.True(t, strings.HasPrefix(g1.Name(), bare+"_"))
	assert.True(t, strings.HasPrefix(p1.Name(), bare+"_"))

	reg := NewRegistry()
	only, _ := reg.GetOrCreate(plain)
	assert.Equal(t, bare, only.Name())

	// Data written where the names clashed still decodes here.
	byAlias, ok := reg.LookupName(p1.Name())
	require.True(t, ok)
	assert.Same(t, only, byAlias)

	// Registering the other type renames the earlier entry.
	_, _ = reg.GetOrCreate(generic)
	assert.Equal(t, p1.Name(), only.Name())
	_, ok = reg.LookupName(bare)
	assert.False(t, ok)
	renamed, ok := reg.LookupName(p1.Name())
	require.True(t, ok)
	assert.Same(t, only, renamed)
}

func TestRegistry_AttributeTags(t *testing.T) {
	reg := NewRegistry()
	ft, _ := reg.GetOrCreate(reflect.TypeFor[Tagged]())

	assert.Equal(t, []string{"ID", "Secret", "Plain"}, ft.Attributes())

	obj := mustFreeze(t, &Tagged{ID: 1, Secret: "s", Hidden: "h", Plain: "p"}, WithRegistry(reg)).(*Object)
	out, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"Plain":"p"}`, string(out))

	y, err := obj.MarshalYAML()
	require.NoError(t, err)
	assert.NotNil(t, y)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	ft, err := reg.Register(reflect.TypeFor[*Point]())
	require.NoError(t, err)
	assert.Equal(t, "Point", ft.HotName())

	found, ok := reg.Lookup("github.com/AleutianAI/frost/pkg/freeze.Point")
	require.True(t, ok)
	assert.Same(t, ft, found)

	_, err = reg.Register(reflect.TypeFor[int]())
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = reg.Register(nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestRegistry_TypesSortedAndClear(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Register(reflect.TypeFor[Point]())
	_, _ = reg.Register(reflect.TypeFor[Node]())
	_, _ = reg.Register(reflect.TypeFor[Account]())

	types := reg.Types()
	require.Len(t, types, 3)
	assert.Equal(t, "Account", types[0].HotName())
	assert.Equal(t, "Node", types[1].HotName())
	assert.Equal(t, "Point", types[2].HotName())

	reg.Clear()
	assert.Equal(t, 0, reg.Len())
	_, ok := reg.Lookup("github.com/AleutianAI/frost/pkg/freeze.Point")
	assert.False(t, ok)
}

func TestDefaultRegistry_Introspection(t *testing.T) {
	ClearRegistry()
	t.Cleanup(ClearRegistry)

	_, err := Register[Point]()
	require.NoError(t, err)
	mustFreeze(t, &Node{})

	var names []string
	for _, ft := range ListRegisteredTypes() {
		names = append(names, ft.HotName())
	}
	assert.Equal(t, []string{"Node", "Point"}, names)

	ClearRegistry()
	assert.Empty(t, ListRegisteredTypes())
	assert.Same(t, defaultRegistry, DefaultRegistry())
}

func TestIsFrozen(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"int", 1, true},
		{"string", "s", true},
		{"func", func() {}, true},
		{"slice", []int{1}, false},
		{"map", map[string]int{}, false},
		{"pointer", &Point{}, false},
		{"struct", Point{}, false},
		{"frozen sequence", mustFreeze(t, []int{1}), true},
		{"frozen object", mustFreeze(t, &Point{}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFrozen(tt.in))
		})
	}
}
