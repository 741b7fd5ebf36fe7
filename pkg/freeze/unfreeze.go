// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"fmt"
	"reflect"
)

// Unfreeze rebuilds a mutable value from a frozen one.
//
// Description:
//
//	Objects become new instances of their recorded hot type: a *T for
//	Objects frozen from a pointer, a T for those frozen from a value.
//	Unexported fields are restored from the frozen snapshot. Containers
//	become their recorded Go type again. Shared frozen values unfreeze to
//	one shared mutable value, and cycles are reproduced.
//
// Outputs:
//
//	any - The mutable value. Primitives are returned as-is.
//	error - Wraps ErrTypeMismatch if an element no longer fits its slot.
func Unfreeze(v any) (any, error) {
	u := newThawer()
	out, err := u.natural(v)
	if err != nil {
		return nil, err
	}
	if !out.IsValid() {
		return nil, nil
	}
	return out.Interface(), nil
}

// UnfreezeAs rebuilds v as a T. T may differ from the recorded hot type when
// the values convert, e.g. a frozen []int unfreezes into a [3]int64.
func UnfreezeAs[T any](v any) (T, error) {
	var zero T
	out, err := newThawer().thaw(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	res, _ := out.Interface().(T)
	return res, nil
}

// UnfreezeInto rebuilds v into the value dst points to.
func UnfreezeInto(v any, dst any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer, got %T", ErrTypeMismatch, dst)
	}
	out, err := newThawer().thaw(v, dv.Type().Elem())
	if err != nil {
		return err
	}
	dv.Elem().Set(out)
	return nil
}

type thawKey struct {
	frozen any
	typ    reflect.Type
}

// thawer carries the memo of one Unfreeze call.
type thawer struct {
	memo map[thawKey]reflect.Value
}

func newThawer() *thawer {
	return &thawer{memo: make(map[thawKey]reflect.Value)}
}

func mismatch(v any, t reflect.Type) error {
	return fmt.Errorf("%w: cannot unfreeze %T into %s", ErrTypeMismatch, v, t)
}

// natural rebuilds v as its recorded hot type.
func (u *thawer) natural(v any) (reflect.Value, error) {
	switch x := v.(type) {
	case nil:
		return reflect.Value{}, nil
	case *Object:
		if x.byValue {
			return u.thaw(x, x.ftype.hot)
		}
		return u.thaw(x, reflect.PointerTo(x.ftype.hot))
	case *Sequence:
		return u.thaw(x, x.hot)
	case *Map:
		return u.thaw(x, x.hot)
	case *Set:
		return u.thaw(x, x.hot)
	case *Buffer:
		return u.thaw(x, x.HotType())
	default:
		return reflect.ValueOf(v), nil
	}
}

// thaw rebuilds v as a value of type t.
func (u *thawer) thaw(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Interface {
		out, err := u.natural(v)
		if err != nil {
			return reflect.Value{}, err
		}
		if !out.Type().Implements(t) {
			return reflect.Value{}, mismatch(v, t)
		}
		r := reflect.New(t).Elem()
		r.Set(out)
		return r, nil
	}

	if obj, ok := v.(*Object); ok {
		return u.object(obj, t)
	}
	if t.Kind() == reflect.Pointer {
		elem, err := u.thaw(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	}

	switch x := v.(type) {
	case *Sequence:
		return u.sequence(x, t)
	case *Map:
		return u.mapping(x, t)
	case *Set:
		return u.set(x, t)
	case *Buffer:
		return u.buffer(x, t)
	}
	return u.primitive(v, t)
}

func (u *thawer) object(obj *Object, t reflect.Type) (reflect.Value, error) {
	hot := obj.ftype.hot
	switch t {
	case reflect.PointerTo(hot):
		key := thawKey{frozen: obj, typ: t}
		if out, ok := u.memo[key]; ok {
			return out, nil
		}
		p := reflect.New(hot)
		u.memo[key] = p
		if err := u.fill(obj, p.Elem()); err != nil {
			return reflect.Value{}, err
		}
		return p, nil
	case hot:
		p := reflect.New(hot)
		if err := u.fill(obj, p.Elem()); err != nil {
			return reflect.Value{}, err
		}
		return p.Elem(), nil
	default:
		return reflect.Value{}, mismatch(obj, t)
	}
}

// fill restores the snapshot into dst, then replaces every attribute with
// its unfrozen value.
func (u *thawer) fill(obj *Object, dst reflect.Value) error {
	dst.Set(obj.source.Elem())
	for i, f := range obj.ftype.fields {
		fv, err := u.thaw(obj.values[i], f.typ)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", obj.ftype.HotName(), f.name, err)
		}
		dst.Field(f.index).Set(fv)
	}
	return nil
}

func (u *thawer) sequence(seq *Sequence, t reflect.Type) (reflect.Value, error) {
	n := len(seq.items)
	var out reflect.Value
	switch t.Kind() {
	case reflect.Slice:
		if seq.isNil && t == seq.hot {
			return reflect.Zero(t), nil
		}
		key := thawKey{frozen: seq, typ: t}
		if got, ok := u.memo[key]; ok {
			return got, nil
		}
		out = reflect.MakeSlice(t, n, n)
		u.memo[key] = out
	case reflect.Array:
		if t.Len() != n {
			return reflect.Value{}, fmt.Errorf("%w: %d items do not fit %s", ErrTypeMismatch, n, t)
		}
		out = reflect.New(t).Elem()
	default:
		return reflect.Value{}, mismatch(seq, t)
	}

	for i, item := range seq.items {
		v, err := u.thaw(item, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

func (u *thawer) mapping(m *Map, t reflect.Type) (reflect.Value, error) {
	if t.Kind() != reflect.Map {
		return reflect.Value{}, mismatch(m, t)
	}
	if m.isNil && t == m.hot {
		return reflect.Zero(t), nil
	}
	key := thawKey{frozen: m, typ: t}
	if got, ok := u.memo[key]; ok {
		return got, nil
	}
	out := reflect.MakeMapWithSize(t, len(m.keys))
	u.memo[key] = out

	for i, k := range m.keys {
		kv, err := u.thaw(k, t.Key())
		if err != nil {
			return reflect.Value{}, err
		}
		vv, err := u.thaw(m.values[i], t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("[%v]: %w", k, err)
		}
		out.SetMapIndex(kv, vv)
	}
	return out, nil
}

func (u *thawer) set(s *Set, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.Map:
		if s.isNil && t == s.hot {
			return reflect.Zero(t), nil
		}
		out := reflect.MakeMapWithSize(t, len(s.items))
		for _, item := range s.items {
			kv, err := u.thaw(item, t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(kv, reflect.Zero(t.Elem()))
		}
		return out, nil
	case reflect.Slice:
		out := reflect.MakeSlice(t, len(s.items), len(s.items))
		for i, item := range s.items {
			v, err := u.thaw(item, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(v)
		}
		return out, nil
	default:
		return reflect.Value{}, mismatch(s, t)
	}
}

func (u *thawer) buffer(b *Buffer, t reflect.Type) (reflect.Value, error) {
	if t.Kind() != reflect.Slice || !b.data.Type().ConvertibleTo(t) {
		return reflect.Value{}, mismatch(b, t)
	}
	out := reflect.MakeSlice(t, b.data.Len(), b.data.Len())
	reflect.Copy(out, b.data.Convert(t))
	return out, nil
}

func (u *thawer) primitive(v any, t reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if s, ok := v.(string); ok && t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		// Freezing does not distinguish a nil []byte from an empty one.
		if s == "" {
			return reflect.Zero(t), nil
		}
		return reflect.ValueOf([]byte(s)).Convert(t), nil
	}
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}
	if sameFamily(rv.Kind(), t.Kind()) && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, mismatch(v, t)
}

// sameFamily reports whether a value of kind a may be converted to kind b
// without changing its meaning, e.g. int to int64 but not int to string.
func sameFamily(a, b reflect.Kind) bool {
	return kindFamily(a) != 0 && kindFamily(a) == kindFamily(b)
}

func kindFamily(k reflect.Kind) int {
	switch k {
	case reflect.Bool:
		return 1
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return 2
	case reflect.Complex64, reflect.Complex128:
		return 3
	case reflect.String:
		return 4
	case reflect.Func:
		return 5
	default:
		return 0
	}
}
