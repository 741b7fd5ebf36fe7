// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
)

var anySliceType = reflect.TypeFor[[]any]()

// Sequence is the frozen form of a slice or array.
//
// Thread Safety: Safe for concurrent use.
type Sequence struct {
	frozenBase
	items []any
	hot   reflect.Type
	isNil bool
}

// NewSequence builds a frozen sequence from items, freezing each one with
// the default configuration.
func NewSequence(items ...any) (*Sequence, error) {
	s := &Sequence{frozenBase: standaloneBase(), hot: anySliceType}
	frozen, err := s.freezeItems(items)
	if err != nil {
		return nil, err
	}
	s.items = frozen
	return s, nil
}

func (s *Sequence) freezeItems(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		v, err := s.refreeze(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// derived builds a sequence from already frozen items.
func (s *Sequence) derived(items []any) *Sequence {
	return &Sequence{frozenBase: s.derive(), items: items, hot: s.hot}
}

// Get returns the item at index i.
func (s *Sequence) Get(i int) (any, error) {
	if i < 0 || i >= len(s.items) {
		return nil, indexError(adapterSequence, i, len(s.items))
	}
	return s.items[i], nil
}

// Len returns the number of items.
func (s *Sequence) Len() int { return len(s.items) }

// All iterates over index/item pairs.
func (s *Sequence) All() iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		for i, item := range s.items {
			if !yield(i, item) {
				return
			}
		}
	}
}

// Values returns a copy of the items.
func (s *Sequence) Values() []any { return slices.Clone(s.items) }

// HotType returns the slice or array type this sequence was frozen from.
func (s *Sequence) HotType() reflect.Type { return s.hot }

// IsNil reports whether the Sequence was frozen from a nil slice.
func (s *Sequence) IsNil() bool { return s.isNil }

// Copy returns s.
func (s *Sequence) Copy() *Sequence { return s }

// Index returns the position of the first item equal to v, or -1.
func (s *Sequence) Index(v any) int {
	v = s.lookupKey(v)
	for i, item := range s.items {
		if Equal(item, v) {
			return i
		}
	}
	return -1
}

// Contains reports whether an item equals v.
func (s *Sequence) Contains(v any) bool {
	return s.Index(v) >= 0
}

// Count returns the number of items equal to v.
func (s *Sequence) Count(v any) int {
	v = s.lookupKey(v)
	n := 0
	for _, item := range s.items {
		if Equal(item, v) {
			n++
		}
	}
	return n
}

// Concat returns a new sequence with the items of s followed by those of
// other. other may be a *Sequence or anything that freezes to one.
func (s *Sequence) Concat(other any) (*Sequence, error) {
	o, ok := other.(*Sequence)
	if !ok {
		frozen, err := s.refreeze(other)
		if err != nil {
			return nil, err
		}
		if o, ok = frozen.(*Sequence); !ok {
			return nil, fmt.Errorf("%w: cannot concatenate %T to %s", ErrTypeMismatch, other, adapterSequence)
		}
	}
	items := make([]any, 0, len(s.items)+len(o.items))
	items = append(items, s.items...)
	items = append(items, o.items...)
	return s.derived(items), nil
}

// Slice returns the items in [i, j) as a new sequence.
func (s *Sequence) Slice(i, j int) (*Sequence, error) {
	if i < 0 || i > len(s.items) {
		return nil, indexError(adapterSequence, i, len(s.items))
	}
	if j < i || j > len(s.items) {
		return nil, indexError(adapterSequence, j, len(s.items))
	}
	return s.derived(slices.Clone(s.items[i:j])), nil
}

// Repeat returns s concatenated with itself n times. n <= 0 yields an empty
// sequence.
func (s *Sequence) Repeat(n int) *Sequence {
	if n <= 0 {
		return s.derived([]any{})
	}
	return s.derived(slices.Repeat(s.items, n))
}

// Append reports a mutation to the policy.
func (s *Sequence) Append(v any) error { return s.mutate("Append", nil, v) }

// Extend reports a mutation to the policy.
func (s *Sequence) Extend(items any) error { return s.mutate("Extend", nil, items) }

// Insert reports a mutation to the policy.
func (s *Sequence) Insert(i int, v any) error { return s.mutate("Insert", i, v) }

// Pop reports a mutation to the policy. When the policy lets the call
// through, it returns the item at i without removing it.
func (s *Sequence) Pop(i int) (any, error) {
	if err := s.mutate("Pop", i, nil); err != nil {
		return nil, err
	}
	return s.Get(i)
}

// Remove reports a mutation to the policy.
func (s *Sequence) Remove(v any) error { return s.mutate("Remove", nil, v) }

// Clear reports a mutation to the policy.
func (s *Sequence) Clear() error { return s.mutate("Clear", nil, nil) }

// Reverse reports a mutation to the policy.
func (s *Sequence) Reverse() error { return s.mutate("Reverse", nil, nil) }

// Sort reports a mutation to the policy.
func (s *Sequence) Sort(less func(a, b any) bool) error { return s.mutate("Sort", nil, nil) }

// SetItem reports an item assignment to the policy.
func (s *Sequence) SetItem(i int, v any) error {
	return s.violate(Violation{
		Frozen:  s,
		Op:      OpSetItem,
		Message: fmt.Sprintf("Can't set key '%d' on immutable instance", i),
		Key:     i,
		Value:   v,
	})
}

// DeleteItem reports an item deletion to the policy.
func (s *Sequence) DeleteItem(i int) error {
	return s.violate(Violation{
		Frozen:  s,
		Op:      OpDelItem,
		Message: fmt.Sprintf("Can't delete key '%d' on immutable instance", i),
		Key:     i,
	})
}

func (s *Sequence) mutate(method string, key, value any) error {
	return s.violate(Violation{
		Frozen:  s,
		Op:      OpMutate,
		Message: immutableMessage(adapterSequence),
		Name:    method,
		Key:     key,
		Value:   value,
	})
}

// Hash implements hashstructure.Hashable. Order matters.
func (s *Sequence) Hash() (uint64, error) {
	acc := uint64(len(s.items))
	for _, item := range s.items {
		h, err := Hash(item)
		if err != nil {
			return 0, err
		}
		acc = combineOrdered(acc, h)
	}
	return acc, nil
}

// Equal reports whether other is a *Sequence with equal items in the same
// order.
func (s *Sequence) Equal(other any) bool {
	o, ok := other.(*Sequence)
	if !ok || o == nil {
		return false
	}
	if s == o {
		return true
	}
	return slices.EqualFunc(s.items, o.items, Equal)
}

// MarshalJSON implements json.Marshaler.
func (s *Sequence) MarshalJSON() ([]byte, error) { return marshalJSON(s) }

// MarshalYAML implements yaml.Marshaler.
func (s *Sequence) MarshalYAML() (any, error) { return yamlNode(s, renderStack{}) }

// String implements fmt.Stringer.
func (s *Sequence) String() string { return formatString(s) }
