// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"reflect"
	"sync"
)

// Strategy names.
const (
	StrategyCopy    = "copy"
	StrategyInPlace = "in-place"
	StrategyCustom  = "custom"
)

// DuplicateFunc produces the value that will be turned into frozen form.
// It must return a value of the same type as src.
type DuplicateFunc func(src any) (any, error)

// Strategy decides whether composites are copied before freezing or frozen
// in place. It is resolved once per Freeze call.
type Strategy struct {
	name string
	dup  DuplicateFunc

	// session, when set, binds the strategy to one Freeze call.
	session func() session
}

// session is a strategy bound to one Freeze call.
type session struct {
	dup DuplicateFunc

	// copies is the memo of the built-in copy strategy; nil otherwise.
	copies *copier
}

var (
	copyStrategy    = &Strategy{name: StrategyCopy, dup: DeepCopy, session: copySession}
	inPlaceStrategy = &Strategy{name: StrategyInPlace, dup: func(src any) (any, error) { return src, nil }}
)

// ResolveStrategy resolves an on_freeze mode string.
//
// Description:
//
//	"copy" resolves to a deep copy that preserves sharing and cycles.
//	"in-place" (alias "inplace") resolves to the identity function.
//
// Outputs:
//
//	*Strategy - The resolved strategy.
//	error - Wraps ErrInvalidConfig for unrecognized strings.
func ResolveStrategy(mode string) (*Strategy, error) {
	switch mode {
	case StrategyCopy:
		return copyStrategy, nil
	case StrategyInPlace, "inplace":
		return inPlaceStrategy, nil
	default:
		return nil, invalidConfig(
			"invalid value for on_freeze parameter, '%s' found, only 'copy' and 'in-place' are valid options if passed a string",
			mode)
	}
}

// StrategyFunc wraps a caller-supplied duplicate function.
func StrategyFunc(fn DuplicateFunc) (*Strategy, error) {
	if fn == nil {
		return nil, invalidConfig(
			"invalid value for on_freeze parameter, 'nil' found, only 'copy', 'in-place' or a function are valid options")
	}
	return &Strategy{name: StrategyCustom, dup: fn}, nil
}

// Name returns "copy", "in-place" or "custom".
func (s *Strategy) Name() string {
	return s.name
}

// InPlace reports whether the strategy is the built-in identity strategy.
func (s *Strategy) InPlace() bool {
	return s.name == StrategyInPlace
}

// Duplicate returns the value that will become frozen.
func (s *Strategy) Duplicate(src any) (any, error) {
	return s.dup(src)
}

// forCall returns the duplicate function for a single Freeze call.
func (s *Strategy) forCall() session {
	if s.session != nil {
		return s.session()
	}
	return session{dup: s.dup}
}

// copySession deep-copies with one memo for the whole call. Values the
// session already produced are returned unchanged, so a struct nested in an
// earlier copy is not copied a second time.
func copySession() session {
	c := &copier{
		seen:   make(map[identity]reflect.Value),
		origin: make(map[identity]identity),
	}
	dup := func(src any) (any, error) {
		if src == nil {
			return nil, nil
		}
		return c.copy(reflect.ValueOf(src)).Interface(), nil
	}
	return session{dup: dup, copies: c}
}

// OriginalTracker is a copy strategy that remembers the first value it was
// asked to duplicate, which is the root "hot" value of a Freeze call.
//
// Thread Safety: Safe for concurrent use.
type OriginalTracker struct {
	mu       sync.Mutex
	original any
	seen     bool
}

// NewOriginalTracker creates an empty tracker.
func NewOriginalTracker() *OriginalTracker {
	return &OriginalTracker{}
}

// Duplicate records src if it is the first value seen and deep-copies it.
func (t *OriginalTracker) Duplicate(src any) (any, error) {
	t.mu.Lock()
	if !t.seen {
		t.original = src
		t.seen = true
	}
	t.mu.Unlock()
	return DeepCopy(src)
}

// Original returns the first value handed to Duplicate, or nil.
func (t *OriginalTracker) Original() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.original
}

// Strategy returns the tracker as a custom Strategy.
func (t *OriginalTracker) Strategy() *Strategy {
	return &Strategy{name: StrategyCustom, dup: t.Duplicate}
}
