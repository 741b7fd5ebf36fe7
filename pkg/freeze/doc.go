// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package freeze turns mutable Go value graphs into deeply immutable ones.
//
// Freeze walks a value and returns its frozen equivalent:
//
//   - primitives (bool, numbers, strings, nil, time.Time, funcs) are returned unchanged
//   - []byte becomes a string copy
//   - maps become *Map, slices and arrays become *Sequence
//   - map[K]struct{} becomes *Set
//   - numeric slices become *Buffer when WithNumericBuffers(true) is set
//   - structs and pointers to structs become *Object
//
// Channels, unsafe pointers and live resources (anything implementing
// io.Closer, such as *os.File or net.Conn) are rejected with an
// *UnsupportedError.
//
// # Identity and Sharing
//
// A single Freeze call keeps an identity-keyed visited map. A pointer, map or
// slice reached twice is frozen once, and every frozen reference to it is the
// same frozen value. Composite values are entered into the visited map before
// their fields are frozen, which is what lets self-referential graphs
// terminate:
//
//	type Node struct{ Ref *Node }
//	n := &Node{}
//	n.Ref = n
//	frozen, _ := freeze.Freeze(n)
//	obj := frozen.(*freeze.Object)
//	obj.Attr("Ref") == obj // true
//
// # Violation Policy
//
// Frozen values have no exported mutators that change state. The mutating
// methods that exist (Object.Set, Map.Delete, Sequence.Append, ...) report
// through the ViolationPolicy captured by the Freeze call that produced the
// value: "raise" returns a *ViolationError, "warn" logs and returns nil,
// "ignore" returns nil, or a caller-supplied ViolationHandler decides.
//
// # Strategy
//
// The Strategy decides what becomes frozen. "copy" (the default) deep-copies
// each composite before freezing, so the caller's value is untouched.
// "in-place" freezes the caller's pointer itself: the caller transfers
// ownership and must stop mutating the source.
//
// # Registry
//
// Every struct type that gets frozen is recorded in a Registry as a
// *FrozenType, keyed by its qualified name. Two instances of one struct type
// always share one *FrozenType, and the generated type name is stable so the
// codec package can resolve it when decoding.
//
// # Thread Safety
//
// Freeze is synchronous and safe for concurrent use. The Registry is guarded
// by a mutex. Frozen values may be shared across goroutines without further
// synchronization.
package freeze
