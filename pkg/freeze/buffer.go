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

// Buffer is the frozen form of a numeric slice, produced when
// WithNumericBuffers(true) is set.
//
// With the copy strategy the backing array is copied first. With the
// in-place strategy the Buffer wraps the caller's array, and the caller
// must stop writing through its own slice.
type Buffer struct {
	frozenBase
	data reflect.Value
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

// Len returns the number of elements.
func (b *Buffer) Len() int { return b.data.Len() }

// At returns the element at index i.
func (b *Buffer) At(i int) (any, error) {
	if i < 0 || i >= b.data.Len() {
		return nil, indexError(adapterBuffer, i, b.data.Len())
	}
	return b.data.Index(i).Interface(), nil
}

// Kind returns the element kind, e.g. reflect.Float64.
func (b *Buffer) Kind() reflect.Kind { return b.data.Type().Elem().Kind() }

// HotType returns the slice type this buffer was frozen from.
func (b *Buffer) HotType() reflect.Type { return b.data.Type() }

// Copy returns b.
func (b *Buffer) Copy() *Buffer { return b }

// BufferValues returns a copy of the buffer contents as a []T.
func BufferValues[T any](b *Buffer) ([]T, error) {
	want := reflect.TypeFor[[]T]()
	if !b.data.Type().ConvertibleTo(want) {
		return nil, fmt.Errorf("%w: %s buffer of %s, not %s", ErrTypeMismatch, adapterBuffer, b.data.Type(), want)
	}
	out := reflect.MakeSlice(want, b.data.Len(), b.data.Len())
	reflect.Copy(out, b.data.Convert(want))
	return out.Interface().([]T), nil
}

// SetItem reports an item assignment to the policy.
func (b *Buffer) SetItem(i int, v any) error {
	return b.violate(Violation{
		Frozen:  b,
		Op:      OpSetItem,
		Message: fmt.Sprintf("Can't set key '%d' on immutable instance", i),
		Key:     i,
		Value:   v,
	})
}

// Hash implements hashstructure.Hashable.
func (b *Buffer) Hash() (uint64, error) {
	acc := uint64(b.data.Len())
	for i := 0; i < b.data.Len(); i++ {
		h, err := Hash(b.data.Index(i).Interface())
		if err != nil {
			return 0, err
		}
		acc = combineOrdered(acc, h)
	}
	return acc, nil
}

// Equal reports whether other is a *Buffer of the same type and contents.
func (b *Buffer) Equal(other any) bool {
	o, ok := other.(*Buffer)
	if !ok || o == nil {
		return false
	}
	if b.data.Type() != o.data.Type() || b.data.Len() != o.data.Len() {
		return false
	}
	for i := 0; i < b.data.Len(); i++ {
		if !b.data.Index(i).Equal(o.data.Index(i)) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (b *Buffer) MarshalJSON() ([]byte, error) { return marshalJSON(b) }

// MarshalYAML implements yaml.Marshaler.
func (b *Buffer) MarshalYAML() (any, error) { return yamlNode(b, renderStack{}) }

// String implements fmt.Stringer.
func (b *Buffer) String() string { return formatString(b) }
