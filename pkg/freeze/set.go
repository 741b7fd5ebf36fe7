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

var anySetType = reflect.TypeFor[map[any]struct{}]()

// Set is the frozen form of a map[K]struct{}.
//
// Elements keep insertion order and are deduplicated by Hash and Equal.
//
// Thread Safety: Safe for concurrent use.
type Set struct {
	frozenBase
	items []any
	index map[uint64][]int
	hot   reflect.Type
	isNil bool
}

func newSet(base frozenBase, hot reflect.Type, size int) *Set {
	return &Set{
		frozenBase: base,
		items:      make([]any, 0, size),
		index:      make(map[uint64][]int, size),
		hot:        hot,
	}
}

// NewSet builds a frozen set from items, freezing each one with the default
// configuration. It fails with ErrUnhashable if an item cannot be hashed.
func NewSet(items ...any) (*Set, error) {
	s := newSet(standaloneBase(), anySetType, len(items))
	for _, item := range items {
		v, err := s.refreeze(item)
		if err != nil {
			return nil, err
		}
		if err := s.add(v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// add inserts v unless an equal element exists. Only used during
// construction.
func (s *Set) add(v any) error {
	h, err := Hash(v)
	if err != nil {
		return fmt.Errorf("%s element: %w", adapterSet, err)
	}
	for _, i := range s.index[h] {
		if Equal(s.items[i], v) {
			return nil
		}
	}
	s.index[h] = append(s.index[h], len(s.items))
	s.items = append(s.items, v)
	return nil
}

// Contains reports whether an element equals v.
func (s *Set) Contains(v any) bool {
	v = s.lookupKey(v)
	h, err := Hash(v)
	if err != nil {
		return false
	}
	for _, i := range s.index[h] {
		if Equal(s.items[i], v) {
			return true
		}
	}
	return false
}

// Len returns the number of elements.
func (s *Set) Len() int { return len(s.items) }

// All iterates over the elements in order.
func (s *Set) All() iter.Seq[any] {
	return slices.Values(s.items)
}

// Values returns a copy of the elements.
func (s *Set) Values() []any { return slices.Clone(s.items) }

// HotType returns the map type this set was frozen from.
func (s *Set) HotType() reflect.Type { return s.hot }

// IsNil reports whether the Set was frozen from a nil map.
func (s *Set) IsNil() bool { return s.isNil }

// Copy returns s.
func (s *Set) Copy() *Set { return s }

// operand turns the right-hand side of a set operator into a *Set. Frozen
// sequences and raw slices contribute their elements.
func (s *Set) operand(other any) (*Set, error) {
	if o, ok := other.(*Set); ok {
		return o, nil
	}
	frozen := other
	if !IsFrozen(other) {
		var err error
		if frozen, err = s.refreeze(other); err != nil {
			return nil, err
		}
	}
	switch f := frozen.(type) {
	case *Set:
		return f, nil
	case *Sequence:
		o := newSet(s.derive(), s.hot, len(f.items))
		for _, item := range f.items {
			if err := o.add(item); err != nil {
				return nil, err
			}
		}
		return o, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a set", ErrTypeMismatch, other)
	}
}

func (s *Set) filter(keep func(any) bool, extra ...*Set) *Set {
	out := newSet(s.derive(), s.hot, len(s.items))
	for _, item := range s.items {
		if keep(item) {
			out.add(item)
		}
	}
	for _, e := range extra {
		for _, item := range e.items {
			out.add(item)
		}
	}
	return out
}

// Union returns the elements in s or other.
func (s *Set) Union(other any) (*Set, error) {
	o, err := s.operand(other)
	if err != nil {
		return nil, err
	}
	return s.filter(func(any) bool { return true }, o), nil
}

// Intersection returns the elements in both s and other.
func (s *Set) Intersection(other any) (*Set, error) {
	o, err := s.operand(other)
	if err != nil {
		return nil, err
	}
	return s.filter(o.Contains), nil
}

// Difference returns the elements of s not in other.
func (s *Set) Difference(other any) (*Set, error) {
	o, err := s.operand(other)
	if err != nil {
		return nil, err
	}
	return s.filter(func(v any) bool { return !o.Contains(v) }), nil
}

// SymmetricDifference returns the elements in exactly one of s and other.
func (s *Set) SymmetricDifference(other any) (*Set, error) {
	o, err := s.operand(other)
	if err != nil {
		return nil, err
	}
	rest := o.filter(func(v any) bool { return !s.Contains(v) })
	return s.filter(func(v any) bool { return !o.Contains(v) }, rest), nil
}

// IsSubset reports whether every element of s is in other.
func (s *Set) IsSubset(other *Set) bool {
	for _, item := range s.items {
		if !other.Contains(item) {
			return false
		}
	}
	return true
}

// IsSuperset reports whether every element of other is in s.
func (s *Set) IsSuperset(other *Set) bool {
	return other.IsSubset(s)
}

// IsDisjoint reports whether s and other share no element.
func (s *Set) IsDisjoint(other *Set) bool {
	for _, item := range s.items {
		if other.Contains(item) {
			return false
		}
	}
	return true
}

// Add reports a mutation to the policy.
func (s *Set) Add(v any) error { return s.mutate("Add", v) }

// Remove reports a mutation to the policy.
func (s *Set) Remove(v any) error { return s.mutate("Remove", v) }

// Discard reports a mutation to the policy.
func (s *Set) Discard(v any) error { return s.mutate("Discard", v) }

// Pop reports a mutation to the policy. When the policy lets the call
// through, it returns the first element without removing it.
func (s *Set) Pop() (any, error) {
	if err := s.mutate("Pop", nil); err != nil {
		return nil, err
	}
	if len(s.items) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrKeyNotFound, adapterSet)
	}
	return s.items[0], nil
}

// Clear reports a mutation to the policy.
func (s *Set) Clear() error { return s.mutate("Clear", nil) }

// Update reports a mutation to the policy.
func (s *Set) Update(other any) error { return s.mutate("Update", other) }

// IntersectionUpdate reports a mutation to the policy.
func (s *Set) IntersectionUpdate(other any) error { return s.mutate("IntersectionUpdate", other) }

// DifferenceUpdate reports a mutation to the policy.
func (s *Set) DifferenceUpdate(other any) error { return s.mutate("DifferenceUpdate", other) }

// SymmetricDifferenceUpdate reports a mutation to the policy.
func (s *Set) SymmetricDifferenceUpdate(other any) error {
	return s.mutate("SymmetricDifferenceUpdate", other)
}

func (s *Set) mutate(method string, value any) error {
	return s.violate(Violation{
		Frozen:  s,
		Op:      OpMutate,
		Message: immutableMessage(adapterSet),
		Name:    method,
		Value:   value,
	})
}

// Hash implements hashstructure.Hashable. Element order does not matter.
func (s *Set) Hash() (uint64, error) {
	var sum uint64
	for _, item := range s.items {
		h, err := Hash(item)
		if err != nil {
			return 0, err
		}
		sum += h
	}
	return combineOrdered(uint64(len(s.items)), sum), nil
}

// Equal reports whether other is a *Set with the same elements.
func (s *Set) Equal(other any) bool {
	o, ok := other.(*Set)
	if !ok || o == nil {
		return false
	}
	return s == o || (len(s.items) == len(o.items) && s.IsSubset(o))
}

// MarshalJSON implements json.Marshaler. Sets encode as arrays.
func (s *Set) MarshalJSON() ([]byte, error) { return marshalJSON(s) }

// MarshalYAML implements yaml.Marshaler.
func (s *Set) MarshalYAML() (any, error) { return yamlNode(s, renderStack{}) }

// String implements fmt.Stringer.
func (s *Set) String() string { return formatString(s) }
