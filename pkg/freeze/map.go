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

// Adapter names used in error messages and String output.
const (
	adapterMap      = "frozenmap"
	adapterSequence = "frozensequence"
	adapterSet      = "frozenset"
	adapterBuffer   = "frozenbuffer"
)

var anyMapType = reflect.TypeFor[map[any]any]()

// Pair is one key/value entry handed to NewMap.
type Pair struct {
	Key   any
	Value any
}

// Map is the frozen form of a Go map.
//
// Description:
//
//	Entries keep insertion order. Maps produced by Freeze are ordered by key
//	(numbers, then strings, then everything else by its printed form),
//	since Go map iteration order carries no meaning. Keys are looked up by
//	Hash and Equal, so any frozen value that hashes can be a key.
//
// Thread Safety: Safe for concurrent use. A Map never changes after
// construction.
type Map struct {
	frozenBase
	keys   []any
	values []any
	index  map[uint64][]int
	hot    reflect.Type
	isNil  bool
}

func newMap(base frozenBase, hot reflect.Type, size int) *Map {
	return &Map{
		frozenBase: base,
		keys:       make([]any, 0, size),
		values:     make([]any, 0, size),
		index:      make(map[uint64][]int, size),
		hot:        hot,
	}
}

// NewMap builds a frozen map from pairs, freezing every key and value with
// the default configuration. A later pair replaces an earlier one with an
// equal key but keeps the earlier position.
func NewMap(pairs ...Pair) (*Map, error) {
	m := newMap(standaloneBase(), anyMapType, len(pairs))
	for _, p := range pairs {
		k, err := m.refreeze(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := m.refreeze(p.Value)
		if err != nil {
			return nil, err
		}
		if err := m.put(k, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// put inserts or replaces an entry. Only used while the map is being built.
func (m *Map) put(k, v any) error {
	h, err := Hash(k)
	if err != nil {
		return fmt.Errorf("%s key: %w", adapterMap, err)
	}
	for _, i := range m.index[h] {
		if Equal(m.keys[i], k) {
			m.values[i] = v
			return nil
		}
	}
	m.index[h] = append(m.index[h], len(m.keys))
	m.keys = append(m.keys, k)
	m.values = append(m.values, v)
	return nil
}

func (m *Map) find(k any) (int, bool) {
	k = m.lookupKey(k)
	h, err := Hash(k)
	if err != nil {
		return 0, false
	}
	for _, i := range m.index[h] {
		if Equal(m.keys[i], k) {
			return i, true
		}
	}
	return 0, false
}

// Get returns the value stored under key.
func (m *Map) Get(key any) (any, error) {
	i, ok := m.find(key)
	if !ok {
		return nil, keyError(adapterMap, key, len(m.keys))
	}
	return m.values[i], nil
}

// Lookup returns the value stored under key and whether it was present.
func (m *Map) Lookup(key any) (any, bool) {
	i, ok := m.find(key)
	if !ok {
		return nil, false
	}
	return m.values[i], true
}

// Has reports whether key is present.
func (m *Map) Has(key any) bool {
	_, ok := m.find(key)
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }

// Keys returns the keys in order.
func (m *Map) Keys() []any { return slices.Clone(m.keys) }

// Values returns the values in key order.
func (m *Map) Values() []any { return slices.Clone(m.values) }

// All iterates over entries in order.
func (m *Map) All() iter.Seq2[any, any] {
	return func(yield func(any, any) bool) {
		for i, k := range m.keys {
			if !yield(k, m.values[i]) {
				return
			}
		}
	}
}

// HotType returns the Go map type this map was frozen from.
func (m *Map) HotType() reflect.Type { return m.hot }

// IsNil reports whether the Map was frozen from a nil map.
func (m *Map) IsNil() bool { return m.isNil }

// Copy returns m. Frozen maps never need copying.
func (m *Map) Copy() *Map { return m }

// operand turns the right-hand side of an operator into a frozen map.
func (m *Map) operand(other any) (*Map, error) {
	if o, ok := other.(*Map); ok {
		return o, nil
	}
	frozen, err := m.refreeze(other)
	if err != nil {
		return nil, err
	}
	o, ok := frozen.(*Map)
	if !ok {
		return nil, fmt.Errorf("%w: cannot merge %T into %s", ErrTypeMismatch, other, adapterMap)
	}
	return o, nil
}

// Merge returns a new map with the entries of m followed by those of other.
// Entries of other win on equal keys. other may be a *Map or a raw Go map,
// which is frozen first.
func (m *Map) Merge(other any) (*Map, error) {
	o, err := m.operand(other)
	if err != nil {
		return nil, err
	}
	out := newMap(m.derive(), m.hot, len(m.keys)+len(o.keys))
	for i, k := range m.keys {
		out.put(k, m.values[i])
	}
	for i, k := range o.keys {
		out.put(k, o.values[i])
	}
	return out, nil
}

// Union is Merge.
func (m *Map) Union(other any) (*Map, error) {
	return m.Merge(other)
}

// Difference returns a new map without the keys present in other. other may
// be a *Map, a *Set, or anything that freezes to one of them.
func (m *Map) Difference(other any) (*Map, error) {
	var has func(any) bool
	switch o := other.(type) {
	case *Map:
		has = o.Has
	case *Set:
		has = o.Contains
	default:
		frozen, err := m.refreeze(other)
		if err != nil {
			return nil, err
		}
		switch f := frozen.(type) {
		case *Map:
			has = f.Has
		case *Set:
			has = f.Contains
		case *Sequence:
			has = f.Contains
		default:
			return nil, fmt.Errorf("%w: cannot subtract %T from %s", ErrTypeMismatch, other, adapterMap)
		}
	}
	out := newMap(m.derive(), m.hot, len(m.keys))
	for i, k := range m.keys {
		if !has(k) {
			out.put(k, m.values[i])
		}
	}
	return out, nil
}

// Set reports an item assignment to the policy.
func (m *Map) Set(key, value any) error {
	return m.violate(Violation{
		Frozen:  m,
		Op:      OpSetItem,
		Message: fmt.Sprintf("Can't set key '%v' on immutable instance", key),
		Key:     key,
		Value:   value,
	})
}

// Delete reports an item deletion to the policy.
func (m *Map) Delete(key any) error {
	return m.violate(Violation{
		Frozen:  m,
		Op:      OpDelItem,
		Message: fmt.Sprintf("Can't delete key '%v' on immutable instance", key),
		Key:     key,
	})
}

// Pop reports a mutation to the policy. When the policy lets the call
// through, it behaves like Get without removing anything.
func (m *Map) Pop(key any) (any, error) {
	if err := m.mutate("Pop", key, nil); err != nil {
		return nil, err
	}
	return m.Get(key)
}

// PopItem reports a mutation to the policy. When the policy lets the call
// through, it returns the last entry without removing it.
func (m *Map) PopItem() (any, any, error) {
	if err := m.mutate("PopItem", nil, nil); err != nil {
		return nil, nil, err
	}
	if len(m.keys) == 0 {
		return nil, nil, fmt.Errorf("%w: %s is empty", ErrKeyNotFound, adapterMap)
	}
	last := len(m.keys) - 1
	return m.keys[last], m.values[last], nil
}

// Clear reports a mutation to the policy.
func (m *Map) Clear() error {
	return m.mutate("Clear", nil, nil)
}

// Update reports a mutation to the policy.
func (m *Map) Update(other any) error {
	return m.mutate("Update", nil, other)
}

// SetDefault returns the value under key when present. Otherwise it would
// insert, so it reports a mutation to the policy.
func (m *Map) SetDefault(key, def any) (any, error) {
	if v, ok := m.Lookup(key); ok {
		return v, nil
	}
	if err := m.mutate("SetDefault", key, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (m *Map) mutate(method string, key, value any) error {
	return m.violate(Violation{
		Frozen:  m,
		Op:      OpMutate,
		Message: immutableMessage(adapterMap),
		Name:    method,
		Key:     key,
		Value:   value,
	})
}

// Hash implements hashstructure.Hashable. Entry order does not matter.
func (m *Map) Hash() (uint64, error) {
	var sum uint64
	for i, k := range m.keys {
		hk, err := Hash(k)
		if err != nil {
			return 0, err
		}
		hv, err := Hash(m.values[i])
		if err != nil {
			return 0, err
		}
		sum += combineOrdered(hk, hv)
	}
	return combineOrdered(uint64(len(m.keys)), sum), nil
}

// Equal reports whether other is a *Map with equal entries, in any order.
func (m *Map) Equal(other any) bool {
	o, ok := other.(*Map)
	if !ok || o == nil {
		return false
	}
	if m == o {
		return true
	}
	if len(m.keys) != len(o.keys) {
		return false
	}
	for i, k := range m.keys {
		v, ok := o.Lookup(k)
		if !ok || !Equal(m.values[i], v) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler. Non-string keys are printed.
func (m *Map) MarshalJSON() ([]byte, error) { return marshalJSON(m) }

// MarshalYAML implements yaml.Marshaler.
func (m *Map) MarshalYAML() (any, error) { return yamlNode(m, renderStack{}) }

// String implements fmt.Stringer.
func (m *Map) String() string { return formatString(m) }
