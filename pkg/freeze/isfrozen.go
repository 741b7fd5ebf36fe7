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

	"github.com/google/uuid"
)

// frozenValue is implemented by every value Freeze produces that is not a
// primitive.
type frozenValue interface {
	isFrozen()
}

// frozenBase carries what every frozen composite shares with the Freeze call
// that produced it.
type frozenBase struct {
	policy   *ViolationPolicy
	freezer  *Freezer
	freezeID uuid.UUID
}

func (b *frozenBase) isFrozen() {}

// violate reports a mutation attempt through the captured policy.
func (b *frozenBase) violate(v Violation) error {
	v.FreezeID = b.freezeID
	return b.policy.Notify(v)
}

// refreeze freezes a raw operand with the same configuration that produced
// the receiver, so operators never smuggle mutable values into a result.
func (b *frozenBase) refreeze(v any) (any, error) {
	f := b.freezer
	if f == nil {
		f = defaultFreezer()
	}
	return f.freeze(v)
}

// lookupKey turns a raw lookup operand into the frozen form it would be
// stored under.
func (b *frozenBase) lookupKey(v any) any {
	f := b.freezer
	if f == nil {
		f = defaultFreezer()
	}
	return f.lookupKey(v)
}

// derive returns the base for a value derived from the receiver by an
// operator.
func (b *frozenBase) derive() frozenBase {
	return frozenBase{policy: b.policy, freezer: b.freezer, freezeID: b.freezeID}
}

// standaloneBase backs adapters created with NewMap/NewSequence/NewSet.
func standaloneBase() frozenBase {
	return frozenBase{policy: defaultPolicy}
}

// IsFrozen reports whether v is already frozen.
//
// True for nil, primitives, time.Time, funcs and everything Freeze returns.
// False for slices, maps, pointers, arrays and structs.
func IsFrozen(v any) bool {
	if v == nil {
		return true
	}
	if _, ok := v.(frozenValue); ok {
		return true
	}
	return isPrimitive(reflect.TypeOf(v))
}

// isPrimitive reports whether values of t are immutable by construction.
func isPrimitive(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.Func:
		return true
	case reflect.Struct:
		return t == timeType
	default:
		return false
	}
}

// LookupError is returned by frozen container accessors. It wraps
// ErrIndexOutOfRange or ErrKeyNotFound.
type LookupError struct {
	// Adapter is the container name, e.g. "frozensequence".
	Adapter string

	// Key is the index or key that was looked up.
	Key any

	// Len is the container length at the time of the lookup.
	Len int

	err error
}

// Error implements error.
func (e *LookupError) Error() string {
	if e.err == ErrIndexOutOfRange {
		return fmt.Sprintf("%s index %v out of range [0:%d]", e.Adapter, e.Key, e.Len)
	}
	return fmt.Sprintf("%s key '%v' not found", e.Adapter, e.Key)
}

// Unwrap returns the sentinel error.
func (e *LookupError) Unwrap() error {
	return e.err
}

func indexError(adapter string, i, n int) error {
	return &LookupError{Adapter: adapter, Key: i, Len: n, err: ErrIndexOutOfRange}
}

func keyError(adapter string, key any, n int) error {
	return &LookupError{Adapter: adapter, Key: key, Len: n, err: ErrKeyNotFound}
}

// immutableMessage is the message for container mutators.
func immutableMessage(adapter string) string {
	return fmt.Sprintf("'%s' object is immutable", adapter)
}
