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

	"github.com/mitchellh/hashstructure/v2"
)

// Hash returns a hash of v consistent with Equal.
//
// Description:
//
//	Frozen containers hash by content. Objects and pointers to structs hash
//	by identity unless the pointer type implements hashstructure.Hashable,
//	in which case that value hash is used. Maps, slices and funcs are
//	mutable or opaque and fail with ErrUnhashable. Everything else is
//	hashed structurally with hashstructure.
//
// Outputs:
//
//	uint64 - The hash.
//	error - Wraps ErrUnhashable when v cannot be hashed.
func Hash(v any) (uint64, error) {
	if h, ok := v.(hashstructure.Hashable); ok {
		return h.Hash()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
			return hashIdentity(rv.Pointer())
		}
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return 0, fmt.Errorf("%w: %s", ErrUnhashable, rv.Type())
	}
	h, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnhashable, err)
	}
	return h, nil
}

// hashIdentity hashes an address.
func hashIdentity(ptr uintptr) (uint64, error) {
	return hashstructure.Hash(uint64(ptr), hashstructure.FormatV2, nil)
}

// combineOrdered mixes h into acc so that element order matters.
func combineOrdered(acc, h uint64) uint64 {
	return acc*1099511628211 ^ h
}

// equaler is implemented by frozen values with their own equality.
type equaler interface {
	Equal(other any) bool
}

// Equal reports whether a and b are equal as frozen values.
//
// Frozen containers compare by content, Objects and pointers by identity,
// comparable values with ==, and anything else with reflect.DeepEqual.
func Equal(a, b any) bool {
	if e, ok := a.(equaler); ok {
		return e.Equal(b)
	}
	if e, ok := b.(equaler); ok {
		return e.Equal(a)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Kind() == reflect.Pointer {
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// SameObject reports whether a and b are the same object.
//
// An Object counts as its underlying source pointer, so an in-place freeze
// result is the same object as the value that was frozen. Values without
// identity (numbers, strings, struct values) are never the same object.
func SameObject(a, b any) bool {
	pa, ta, ok := identityOf(a)
	if !ok {
		return false
	}
	pb, tb, ok := identityOf(b)
	return ok && pa == pb && ta == tb
}

func identityOf(v any) (uintptr, reflect.Type, bool) {
	if obj, ok := v.(*Object); ok && obj != nil {
		if obj.byValue {
			return 0, nil, false
		}
		return obj.source.Pointer(), obj.source.Type(), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, nil, false
		}
		return rv.Pointer(), rv.Type(), true
	default:
		return 0, nil, false
	}
}
