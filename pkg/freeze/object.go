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

	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
)

// Object is the frozen form of a struct or a pointer to a struct.
//
// Description:
//
//	An Object exposes the exported fields of its source struct as
//	attributes, each holding the frozen form of the field value. The
//	source itself (the caller's pointer with the in-place strategy, a
//	private copy otherwise) is kept as the snapshot Unfreeze rebuilds
//	from, including unexported fields that are never exposed.
//
//	Every mutating method reports through the ViolationPolicy captured by
//	the Freeze call that produced the Object. Nothing ever changes.
//
// Thread Safety: Safe for concurrent use.
type Object struct {
	frozenBase
	ftype  *FrozenType
	source reflect.Value // always a pointer to the struct snapshot
	values []any

	// byValue is set when the source was a struct value rather than a
	// pointer. Such Objects have no identity of their own.
	byValue bool
}

// Type returns the registry entry of the source struct type.
func (o *Object) Type() *FrozenType { return o.ftype }

// ByValue reports whether the Object was frozen from a struct value rather
// than a pointer.
func (o *Object) ByValue() bool { return o.byValue }

// Get returns the frozen value of attribute name.
func (o *Object) Get(name string) (any, error) {
	i, ok := o.ftype.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no attribute '%s'", ErrAttributeNotFound, o.ftype.HotName(), name)
	}
	return o.values[i], nil
}

// Attr returns the frozen value of attribute name, or nil when there is no
// such attribute.
func (o *Object) Attr(name string) any {
	v, _ := o.Get(name)
	return v
}

// Has reports whether name is an attribute.
func (o *Object) Has(name string) bool {
	_, ok := o.ftype.index[name]
	return ok
}

// Attributes iterates over attribute names and frozen values in field
// declaration order.
func (o *Object) Attributes() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for i, f := range o.ftype.fields {
			if !yield(f.name, o.values[i]) {
				return
			}
		}
	}
}

// Names returns the attribute names in declaration order.
func (o *Object) Names() []string { return o.ftype.Attributes() }

// Len returns the number of attributes.
func (o *Object) Len() int { return len(o.values) }

// Policy returns the policy captured when o was frozen.
func (o *Object) Policy() *ViolationPolicy { return o.policy }

// FreezeID identifies the Freeze call that produced o.
func (o *Object) FreezeID() uuid.UUID { return o.freezeID }

// HotType returns the source struct type.
func (o *Object) HotType() reflect.Type { return o.ftype.hot }

// InstanceOf reports whether o was frozen from a value of type t. t may be
// the struct type, a pointer to it, or an interface either one implements.
func (o *Object) InstanceOf(t reflect.Type) bool {
	if t == nil {
		return false
	}
	hot := o.ftype.hot
	switch {
	case t == hot, t == reflect.PointerTo(hot):
		return true
	case t.Kind() == reflect.Interface:
		return hot.Implements(t) || reflect.PointerTo(hot).Implements(t)
	default:
		return false
	}
}

// IsInstance reports whether v is a T, or an Object frozen from a T or a *T.
func IsInstance[T any](v any) bool {
	if _, ok := v.(T); ok {
		return true
	}
	obj, ok := v.(*Object)
	return ok && obj.InstanceOf(reflect.TypeFor[T]())
}

// Set reports an attribute assignment to the policy.
func (o *Object) Set(name string, value any) error {
	return o.violate(Violation{
		Frozen:  o,
		Op:      OpSetAttr,
		Message: fmt.Sprintf("Can't assign attribute '%s' on immutable instance", name),
		Name:    name,
		Value:   value,
	})
}

// Delete reports an attribute deletion to the policy.
func (o *Object) Delete(name string) error {
	return o.violate(Violation{
		Frozen:  o,
		Op:      OpDelAttr,
		Message: fmt.Sprintf("Can't delete attribute '%s' on immutable instance", name),
		Name:    name,
	})
}

// SetItem reports an item assignment to the policy.
func (o *Object) SetItem(key, value any) error {
	return o.violate(Violation{
		Frozen:  o,
		Op:      OpSetItem,
		Message: fmt.Sprintf("Can't set key '%v' on immutable instance", key),
		Key:     key,
		Value:   value,
	})
}

// DeleteItem reports an item deletion to the policy.
func (o *Object) DeleteItem(key any) error {
	return o.violate(Violation{
		Frozen:  o,
		Op:      OpDelItem,
		Message: fmt.Sprintf("Can't delete key '%v' on immutable instance", key),
		Key:     key,
	})
}

// SetDescriptor reports a setter invocation to the policy.
func (o *Object) SetDescriptor(name string, value any) error {
	return o.violate(Violation{
		Frozen:  o,
		Op:      OpSetDescriptor,
		Message: "Can't assign setter on immutable instance",
		Name:    name,
		Value:   value,
	})
}

// Hash implements hashstructure.Hashable.
//
// Objects frozen from a pointer hash like that pointer: by the pointer's own
// Hash method when *T implements hashstructure.Hashable, by address
// otherwise. In-place freezing therefore keeps the source's hash. Objects
// frozen from a struct value hash by their attributes.
func (o *Object) Hash() (uint64, error) {
	if !o.byValue {
		if h, ok := o.source.Interface().(hashstructure.Hashable); ok {
			return h.Hash()
		}
		return hashIdentity(o.source.Pointer())
	}
	acc, err := hashstructure.Hash(o.ftype.qualified, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, err
	}
	for _, v := range o.values {
		h, err := Hash(v)
		if err != nil {
			return 0, err
		}
		acc = combineOrdered(acc, h)
	}
	return acc, nil
}

// Equal reports whether other is the same object. Objects frozen from struct
// values compare attribute by attribute instead.
func (o *Object) Equal(other any) bool {
	if SameObject(o, other) {
		return true
	}
	x, ok := other.(*Object)
	if !ok || x == nil || !o.byValue || !x.byValue || x.ftype.hot != o.ftype.hot {
		return false
	}
	for i, v := range o.values {
		if !Equal(v, x.values[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler. Attributes are encoded in
// declaration order under their json tag names.
func (o *Object) MarshalJSON() ([]byte, error) { return marshalJSON(o) }

// MarshalYAML implements yaml.Marshaler.
func (o *Object) MarshalYAML() (any, error) { return yamlNode(o, renderStack{}) }

// String implements fmt.Stringer.
func (o *Object) String() string { return formatString(o) }
