// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for freeze operations.
var (
	// ErrImmutable is wrapped by every *ViolationError. It is returned when
	// a mutating operation targets a frozen value under the "raise" policy.
	ErrImmutable = errors.New("value is immutable")

	// ErrUnsupported is wrapped by every *UnsupportedError. Freeze returns it
	// for values that cannot be made safe to share (channels, open files).
	ErrUnsupported = errors.New("unsupported value")

	// ErrInvalidConfig is returned when on_update or on_freeze is given a
	// value outside the recognized set. It is reported before any traversal.
	ErrInvalidConfig = errors.New("invalid freeze configuration")

	// ErrIndexOutOfRange is returned by frozen sequence and buffer lookups.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrKeyNotFound is returned by frozen map lookups.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAttributeNotFound is returned by Object.Get for unknown attributes.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrUnhashable is returned when a set element or map key cannot be hashed.
	ErrUnhashable = errors.New("unhashable value")

	// ErrMaxDepth is returned when a value graph nests deeper than the
	// configured maximum depth.
	ErrMaxDepth = errors.New("maximum freeze depth exceeded")

	// ErrNotFrozen is returned when an operation requires a frozen value.
	ErrNotFrozen = errors.New("value is not frozen")

	// ErrTypeMismatch is returned by Unfreeze when a frozen value cannot be
	// rebuilt into the requested Go type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrCycle is returned when encoding a frozen value to JSON or YAML
	// reaches the same composite twice on one path, and by Freeze for a
	// chain of pointers that leads back to itself without a container.
	ErrCycle = errors.New("cycle in frozen value")
)

// ViolationError describes a rejected mutation on a frozen value.
type ViolationError struct {
	// Op is the attempted operation.
	Op Operation

	// Target names the attribute or key that was targeted, if any.
	Target string

	// Message is the human-readable description.
	Message string

	// Frozen is the frozen value that rejected the mutation.
	Frozen any
}

// Error implements error.
func (e *ViolationError) Error() string {
	return e.Message
}

// Unwrap returns ErrImmutable.
func (e *ViolationError) Unwrap() error {
	return ErrImmutable
}

// UnsupportedError reports a value Freeze refuses to convert.
type UnsupportedError struct {
	// Type is the Go type of the rejected value.
	Type reflect.Type

	// Path locates the value inside the graph, e.g. "$.Items[2].File".
	Path string

	// Reason is a short type-specific explanation.
	Reason string
}

// Error implements error.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("cannot freeze %s at %s: %s", e.Type, e.Path, e.Reason)
}

// Unwrap returns ErrUnsupported.
func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// invalidConfig wraps ErrInvalidConfig with a message.
func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
