// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"io"
	"reflect"
	"time"
)

// identity keys a reference value by address and type. Slices also key on
// length so that two windows onto one backing array stay distinct.
type identity struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

// DeepCopy returns a deep copy of v.
//
// Description:
//
//	Pointers, maps and slices reached more than once are copied once, so
//	the copy has the same sharing and cycle topology as v. Frozen values,
//	funcs, channels and io.Closer values are shared rather than copied.
//	Unexported struct fields are copied shallowly.
//
// Inputs:
//
//	v - Any value.
//
// Outputs:
//
//	any - The copy. Same dynamic type as v.
//	error - Always nil; present to satisfy DuplicateFunc.
func DeepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	c := &copier{seen: make(map[identity]reflect.Value)}
	return c.copy(reflect.ValueOf(v)).Interface(), nil
}

type copier struct {
	seen map[identity]reflect.Value

	// origin, when set, maps every copy back to its source and makes the
	// copier return its own copies unchanged.
	origin map[identity]identity
}

func (c *copier) remember(key identity, out reflect.Value, n int) {
	c.seen[key] = out
	if c.origin != nil {
		own := identity{ptr: out.Pointer(), typ: key.typ, n: n}
		c.seen[own] = out
		c.origin[own] = key
	}
}

var (
	closerType = reflect.TypeFor[io.Closer]()
	timeType   = reflect.TypeFor[time.Time]()
)

func (c *copier) copy(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	if v.CanInterface() {
		if _, ok := v.Interface().(frozenValue); ok {
			return v
		}
	}
	if v.Type().Implements(closerType) {
		return v
	}

	t := v.Type()
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		key := identity{ptr: v.Pointer(), typ: t}
		if seen, ok := c.seen[key]; ok {
			return seen
		}
		out := reflect.New(t.Elem())
		c.remember(key, out, 0)
		out.Elem().Set(c.copy(v.Elem()))
		return out

	case reflect.Struct:
		if t == timeType {
			return v
		}
		out := reflect.New(t).Elem()
		out.Set(v)
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(c.copy(v.Field(i)))
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		if v.Len() == 0 {
			return reflect.MakeSlice(t, 0, 0)
		}
		key := identity{ptr: v.Pointer(), typ: t, n: v.Len()}
		if seen, ok := c.seen[key]; ok {
			return seen
		}
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		c.remember(key, out, v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.copy(v.Index(i)))
		}
		return out

	case reflect.Array:
		out := reflect.New(t).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.copy(v.Index(i)))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		key := identity{ptr: v.Pointer(), typ: t}
		if seen, ok := c.seen[key]; ok {
			return seen
		}
		out := reflect.MakeMapWithSize(t, v.Len())
		c.remember(key, out, 0)
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(c.copy(iter.Key()), c.copy(iter.Value()))
		}
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(t).Elem()
		out.Set(c.copy(v.Elem()))
		return out

	default:
		return v
	}
}
