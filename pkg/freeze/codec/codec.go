// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package codec serializes frozen value graphs to CBOR and back.
//
// The encoding is a tree of nodes. Every frozen composite with an identity
// (pointer Objects and the container adapters) is written once under a
// numeric id; later occurrences are references to that id, so sharing and
// cycles survive a round trip. Objects carry the generated name of their
// frozen type, which Unmarshal resolves through a Registry.
//
// Only attributes are encoded. Unexported fields and fields tagged
// `freeze:"-"` are zero after decoding.
package codec

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/AleutianAI/frost/pkg/freeze"
)

const formatVersion = 1

// kind tags a node.
type kind uint8

const (
	kindNil kind = iota
	kindBool
	kindInt
	kindUint
	kindFloat
	kindComplex
	kindString
	kindTime
	kindObject
	kindMap
	kindSequence
	kindSet
	kindBuffer
	kindRef
)

// node is one value of the encoded tree.
type node struct {
	Kind    kind         `cbor:"1,keyasint"`
	ID      uint64       `cbor:"2,keyasint,omitempty"`
	Ref     uint64       `cbor:"3,keyasint,omitempty"`
	Type    string       `cbor:"4,keyasint,omitempty"`
	Names   []string     `cbor:"5,keyasint,omitempty"`
	Items   []*node      `cbor:"6,keyasint,omitempty"`
	Keys    []*node      `cbor:"7,keyasint,omitempty"`
	Value   any          `cbor:"8,keyasint"`
	GoKind  reflect.Kind `cbor:"9,keyasint,omitempty"`
	Nil     bool         `cbor:"10,keyasint,omitempty"`
	ByValue bool         `cbor:"11,keyasint,omitempty"`
}

// document is the top-level envelope.
type document struct {
	Version int   `cbor:"1,keyasint"`
	Root    *node `cbor:"2,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Codec encodes and decodes frozen graphs against one registry.
//
// The zero value uses freeze.DefaultRegistry().
type Codec struct {
	Registry *freeze.Registry
}

func (c Codec) registry() *freeze.Registry {
	if c.Registry != nil {
		return c.Registry
	}
	return freeze.DefaultRegistry()
}

// Marshal encodes a frozen value with the zero Codec.
func Marshal(v any) ([]byte, error) {
	return Codec{}.Marshal(v)
}

// Unmarshal decodes a frozen value with the zero Codec.
func Unmarshal(data []byte, opts ...freeze.Option) (any, error) {
	return Codec{}.Unmarshal(data, opts...)
}

// Marshal encodes v, which must satisfy freeze.IsFrozen.
//
// Outputs:
//
//	[]byte - Canonical CBOR. Equal graphs encode to equal bytes.
//	error - freeze.ErrNotFrozen for mutable input, freeze.ErrUnsupported
//	        for frozen values with no portable form such as funcs.
func (c Codec) Marshal(v any) ([]byte, error) {
	if !freeze.IsFrozen(v) {
		return nil, fmt.Errorf("codec: %w: %T", freeze.ErrNotFrozen, v)
	}
	e := &encoder{ids: make(map[any]uint64)}
	root, err := e.encode(v)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return encMode.Marshal(document{Version: formatVersion, Root: root})
}

// Unmarshal decodes data into a new frozen graph.
//
// Description:
//
//	The mutable graph is rebuilt first, with objects allocated as their hot
//	types, and then frozen in place. opts are applied after the codec's
//	defaults (in-place strategy, the codec's registry), so a caller can
//	still choose a policy or a different strategy.
//
// Outputs:
//
//	any - The frozen root.
//	error - ErrUnknownType, ErrMalformed, or a freeze error.
func (c Codec) Unmarshal(data []byte, opts ...freeze.Option) (any, error) {
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("codec: %w: %v", ErrMalformed, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("codec: %w: unsupported version %d", ErrMalformed, doc.Version)
	}
	if doc.Root == nil {
		return nil, fmt.Errorf("codec: %w: missing root", ErrMalformed)
	}

	reg := c.registry()
	d := newDecoder(reg)
	if err := d.index(doc.Root, 0); err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	mutable, err := d.root(doc.Root)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	all := []freeze.Option{
		freeze.OnFreeze(freeze.StrategyInPlace),
		freeze.WithRegistry(reg),
		freeze.WithNumericBuffers(d.buffers),
	}
	f, err := freeze.NewFreezer(append(all, opts...)...)
	if err != nil {
		return nil, err
	}
	return f.Freeze(context.Background(), mutable)
}

// encoder assigns ids to frozen composites on first visit.
type encoder struct {
	ids  map[any]uint64
	next uint64
}

// seen returns a reference node if v was already encoded, or the id to
// give v's own node.
func (e *encoder) seen(v any) (*node, uint64) {
	if id, ok := e.ids[v]; ok {
		return &node{Kind: kindRef, Ref: id}, 0
	}
	e.next++
	e.ids[v] = e.next
	return nil, e.next
}

func (e *encoder) encode(v any) (*node, error) {
	switch x := v.(type) {
	case nil:
		return &node{Kind: kindNil}, nil
	case *freeze.Object:
		return e.object(x)
	case *freeze.Map:
		ref, id := e.seen(x)
		if ref != nil {
			return ref, nil
		}
		n := &node{Kind: kindMap, ID: id, Nil: x.IsNil()}
		for k, val := range x.All() {
			kn, err := e.encode(k)
			if err != nil {
				return nil, err
			}
			vn, err := e.encode(val)
			if err != nil {
				return nil, err
			}
			n.Keys = append(n.Keys, kn)
			n.Items = append(n.Items, vn)
		}
		return n, nil
	case *freeze.Sequence:
		ref, id := e.seen(x)
		if ref != nil {
			return ref, nil
		}
		n := &node{Kind: kindSequence, ID: id, Nil: x.IsNil()}
		return n, e.items(n, x.Values())
	case *freeze.Set:
		ref, id := e.seen(x)
		if ref != nil {
			return ref, nil
		}
		n := &node{Kind: kindSet, ID: id, Nil: x.IsNil()}
		return n, e.items(n, x.Values())
	case *freeze.Buffer:
		ref, id := e.seen(x)
		if ref != nil {
			return ref, nil
		}
		n := &node{Kind: kindBuffer, ID: id, GoKind: x.Kind()}
		for i := range x.Len() {
			el, _ := x.At(i)
			sn, err := scalar(el)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, sn)
		}
		return n, nil
	default:
		return scalar(v)
	}
}

func (e *encoder) object(o *freeze.Object) (*node, error) {
	var id uint64
	if !o.ByValue() {
		var ref *node
		if ref, id = e.seen(o); ref != nil {
			return ref, nil
		}
	}
	n := &node{
		Kind:    kindObject,
		ID:      id,
		Type:    o.Type().Name(),
		Names:   o.Names(),
		ByValue: o.ByValue(),
	}
	for _, name := range n.Names {
		child, err := e.encode(o.Attr(name))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", o.Type().HotName(), name, err)
		}
		n.Items = append(n.Items, child)
	}
	return n, nil
}

func (e *encoder) items(n *node, values []any) error {
	n.Items = make([]*node, 0, len(values))
	for i, v := range values {
		child, err := e.encode(v)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		n.Items = append(n.Items, child)
	}
	return nil
}

// scalar encodes a primitive. The Go kind is kept so untyped positions
// decode to the same basic type.
func scalar(v any) (*node, error) {
	if t, ok := v.(time.Time); ok {
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return &node{Kind: kindTime, Value: b}, nil
	}

	rv := reflect.ValueOf(v)
	n := &node{GoKind: rv.Kind()}
	switch rv.Kind() {
	case reflect.Bool:
		n.Kind, n.Value = kindBool, rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n.Kind, n.Value = kindInt, rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n.Kind, n.Value = kindUint, rv.Uint()
	case reflect.Float32, reflect.Float64:
		n.Kind, n.Value = kindFloat, rv.Float()
	case reflect.Complex64, reflect.Complex128:
		c := rv.Complex()
		n.Kind, n.Value = kindComplex, []float64{real(c), imag(c)}
	case reflect.String:
		n.Kind, n.Value = kindString, rv.String()
	default:
		return nil, fmt.Errorf("%w: %T has no portable encoding", freeze.ErrUnsupported, v)
	}
	return n, nil
}
