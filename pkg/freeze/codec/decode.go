// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codec

import (
	"fmt"
	"reflect"
	"time"

	"github.com/AleutianAI/frost/pkg/freeze"
)

// maxNesting bounds the node tree depth accepted from untrusted input.
const maxNesting = freeze.DefaultMaxDepth

var (
	anyType      = reflect.TypeFor[any]()
	anyMapType   = reflect.TypeFor[map[any]any]()
	anySliceType = reflect.TypeFor[[]any]()
	anySetType   = reflect.TypeFor[map[any]struct{}]()
	timeType     = reflect.TypeFor[time.Time]()
)

// basicTypes maps an encoded Go kind to the type untyped positions decode to.
var basicTypes = map[reflect.Kind]reflect.Type{
	reflect.Bool:       reflect.TypeFor[bool](),
	reflect.Int:        reflect.TypeFor[int](),
	reflect.Int8:       reflect.TypeFor[int8](),
	reflect.Int16:      reflect.TypeFor[int16](),
	reflect.Int32:      reflect.TypeFor[int32](),
	reflect.Int64:      reflect.TypeFor[int64](),
	reflect.Uint:       reflect.TypeFor[uint](),
	reflect.Uint8:      reflect.TypeFor[uint8](),
	reflect.Uint16:     reflect.TypeFor[uint16](),
	reflect.Uint32:     reflect.TypeFor[uint32](),
	reflect.Uint64:     reflect.TypeFor[uint64](),
	reflect.Uintptr:    reflect.TypeFor[uintptr](),
	reflect.Float32:    reflect.TypeFor[float32](),
	reflect.Float64:    reflect.TypeFor[float64](),
	reflect.Complex64:  reflect.TypeFor[complex64](),
	reflect.Complex128: reflect.TypeFor[complex128](),
	reflect.String:     reflect.TypeFor[string](),
}

type memoKey struct {
	id  uint64
	typ reflect.Type
}

// decoder rebuilds a mutable graph from a node tree, directed by the Go
// type of each destination.
type decoder struct {
	reg     *freeze.Registry
	nodes   map[uint64]*node
	memo    map[memoKey]reflect.Value
	buffers bool
}

func newDecoder(reg *freeze.Registry) *decoder {
	return &decoder{
		reg:   reg,
		nodes: make(map[uint64]*node),
		memo:  make(map[memoKey]reflect.Value),
	}
}

// index records every node that carries an id.
func (d *decoder) index(n *node, depth int) error {
	if n == nil {
		return fmt.Errorf("%w: null node", ErrMalformed)
	}
	if depth > maxNesting {
		return fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxNesting)
	}
	if n.ID != 0 {
		if _, dup := d.nodes[n.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d", ErrMalformed, n.ID)
		}
		d.nodes[n.ID] = n
	}
	if n.Kind == kindBuffer {
		d.buffers = true
	}
	if len(n.Keys) > 0 && len(n.Keys) != len(n.Items) {
		return fmt.Errorf("%w: %d keys for %d values", ErrMalformed, len(n.Keys), len(n.Items))
	}
	for _, children := range [][]*node{n.Keys, n.Items} {
		for _, c := range children {
			if err := d.index(c, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *decoder) resolve(n *node) (*node, error) {
	if n.Kind != kindRef {
		return n, nil
	}
	target, ok := d.nodes[n.Ref]
	if !ok {
		return nil, fmt.Errorf("%w: dangling reference %d", ErrMalformed, n.Ref)
	}
	return target, nil
}

// root decodes the top-level node into its natural type.
func (d *decoder) root(n *node) (any, error) {
	if n.Kind == kindNil {
		return nil, nil
	}
	t, err := d.natural(n)
	if err != nil {
		return nil, err
	}
	v, err := d.decode(n, t)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// natural picks the Go type for a node decoded into an interface.
func (d *decoder) natural(n *node) (reflect.Type, error) {
	n, err := d.resolve(n)
	if err != nil {
		return nil, err
	}
	switch n.Kind {
	case kindObject:
		ft, err := d.frozenType(n)
		if err != nil {
			return nil, err
		}
		if n.ByValue {
			return ft.HotType(), nil
		}
		return reflect.PointerTo(ft.HotType()), nil
	case kindMap:
		return anyMapType, nil
	case kindSequence:
		return anySliceType, nil
	case kindSet:
		return anySetType, nil
	case kindBuffer:
		el, ok := basicTypes[n.GoKind]
		if !ok {
			return nil, fmt.Errorf("%w: buffer of kind %s", ErrMalformed, n.GoKind)
		}
		return reflect.SliceOf(el), nil
	case kindTime:
		return timeType, nil
	case kindNil:
		return anyType, nil
	default:
		t, ok := basicTypes[n.GoKind]
		if !ok {
			return nil, fmt.Errorf("%w: scalar of kind %s", ErrMalformed, n.GoKind)
		}
		return t, nil
	}
}

func (d *decoder) frozenType(n *node) (*freeze.FrozenType, error) {
	ft, ok := d.reg.LookupName(n.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, n.Type)
	}
	return ft, nil
}

func mismatch(n *node, t reflect.Type) error {
	return fmt.Errorf("%w: cannot decode node of kind %d into %s", freeze.ErrTypeMismatch, n.Kind, t)
}

// decode rebuilds n as a value of type t.
func (d *decoder) decode(n *node, t reflect.Type) (reflect.Value, error) {
	n, err := d.resolve(n)
	if err != nil {
		return reflect.Value{}, err
	}
	if n.Kind == kindNil {
		return reflect.Zero(t), nil
	}

	if t.Kind() == reflect.Interface {
		nt, err := d.natural(n)
		if err != nil {
			return reflect.Value{}, err
		}
		if !nt.AssignableTo(t) {
			return reflect.Value{}, mismatch(n, t)
		}
		v, err := d.decode(n, nt)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}

	if n.ID != 0 {
		if v, ok := d.memo[memoKey{n.ID, t}]; ok {
			return v, nil
		}
	}

	if n.Kind == kindObject {
		return d.object(n, t)
	}

	// Freezing follows pointers to non-structs, so the pointer is restored
	// around the decoded value.
	if t.Kind() == reflect.Pointer {
		v, err := d.decode(n, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, nil
	}

	switch n.Kind {
	case kindMap:
		return d.mapping(n, t)
	case kindSequence, kindBuffer:
		return d.sequence(n, t)
	case kindSet:
		return d.set(n, t)
	default:
		return d.scalar(n, t)
	}
}

func (d *decoder) remember(n *node, t reflect.Type, v reflect.Value) {
	if n.ID != 0 {
		d.memo[memoKey{n.ID, t}] = v
	}
}

func (d *decoder) object(n *node, t reflect.Type) (reflect.Value, error) {
	ft, err := d.frozenType(n)
	if err != nil {
		return reflect.Value{}, err
	}
	hot := ft.HotType()
	if len(n.Items) != len(n.Names) {
		return reflect.Value{}, fmt.Errorf("%w: %s has %d names for %d values", ErrMalformed, n.Type, len(n.Names), len(n.Items))
	}

	switch {
	case t == hot:
		dst := reflect.New(hot).Elem()
		return dst, d.fill(n, dst)
	case t.Kind() == reflect.Pointer && t.Elem() == hot:
		dst := reflect.New(hot)
		d.remember(n, t, dst)
		return dst, d.fill(n, dst.Elem())
	default:
		return reflect.Value{}, mismatch(n, t)
	}
}

// fill sets the attributes of dst. Names the hot type no longer declares
// are skipped.
func (d *decoder) fill(n *node, dst reflect.Value) error {
	for i, name := range n.Names {
		f := dst.FieldByName(name)
		if !f.IsValid() || !f.CanSet() {
			continue
		}
		v, err := d.decode(n.Items[i], f.Type())
		if err != nil {
			return fmt.Errorf("%s.%s: %w", dst.Type().Name(), name, err)
		}
		f.Set(v)
	}
	return nil
}

func (d *decoder) mapping(n *node, t reflect.Type) (reflect.Value, error) {
	if t.Kind() != reflect.Map {
		return reflect.Value{}, mismatch(n, t)
	}
	if n.Nil {
		return reflect.Zero(t), nil
	}
	m := reflect.MakeMapWithSize(t, len(n.Items))
	d.remember(n, t, m)
	for i := range n.Items {
		k, err := d.key(n.Keys[i], t.Key())
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := d.decode(n.Items[i], t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		m.SetMapIndex(k, v)
	}
	return m, nil
}

func (d *decoder) key(n *node, t reflect.Type) (reflect.Value, error) {
	k, err := d.decode(n, t)
	if err != nil {
		return reflect.Value{}, err
	}
	if !k.Comparable() {
		return reflect.Value{}, fmt.Errorf("%w: map key of type %s", freeze.ErrUnhashable, k.Type())
	}
	return k, nil
}

func (d *decoder) sequence(n *node, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.Slice:
		if n.Nil {
			return reflect.Zero(t), nil
		}
		s := reflect.MakeSlice(t, len(n.Items), len(n.Items))
		d.remember(n, t, s)
		return s, d.elements(n, s)
	case reflect.Array:
		if t.Len() != len(n.Items) {
			return reflect.Value{}, mismatch(n, t)
		}
		a := reflect.New(t).Elem()
		return a, d.elements(n, a)
	default:
		return reflect.Value{}, mismatch(n, t)
	}
}

func (d *decoder) elements(n *node, dst reflect.Value) error {
	el := dst.Type().Elem()
	for i, item := range n.Items {
		v, err := d.decode(item, el)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		dst.Index(i).Set(v)
	}
	return nil
}

func (d *decoder) set(n *node, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.Map:
		if n.Nil {
			return reflect.Zero(t), nil
		}
		m := reflect.MakeMapWithSize(t, len(n.Items))
		d.remember(n, t, m)
		member := reflect.Zero(t.Elem())
		if t.Elem().Kind() == reflect.Bool {
			member = reflect.ValueOf(true).Convert(t.Elem())
		}
		for _, item := range n.Items {
			k, err := d.key(item, t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			m.SetMapIndex(k, member)
		}
		return m, nil
	case reflect.Slice, reflect.Array:
		return d.sequence(n, t)
	default:
		return reflect.Value{}, mismatch(n, t)
	}
}

func (d *decoder) scalar(n *node, t reflect.Type) (reflect.Value, error) {
	src, err := scalarValue(n)
	if err != nil {
		return reflect.Value{}, err
	}

	if s, ok := src.Interface().(string); ok && t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		if s == "" {
			return reflect.Zero(t), nil
		}
		return reflect.ValueOf([]byte(s)).Convert(t), nil
	}
	if src.Type() == t {
		return src, nil
	}
	if family(src.Kind()) == family(t.Kind()) && src.Type().ConvertibleTo(t) {
		return src.Convert(t), nil
	}
	return reflect.Value{}, mismatch(n, t)
}

// scalarValue reads the node payload as its basic Go type. CBOR decodes
// non-negative integers as uint64 and floats as float64 regardless of how
// they were written.
func scalarValue(n *node) (reflect.Value, error) {
	if n.Kind == kindTime {
		b, ok := n.Value.([]byte)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: time payload %T", ErrMalformed, n.Value)
		}
		var tm time.Time
		if err := tm.UnmarshalBinary(b); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return reflect.ValueOf(tm), nil
	}

	base, ok := basicTypes[n.GoKind]
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: scalar of kind %s", ErrMalformed, n.GoKind)
	}

	var v any
	switch n.Kind {
	case kindBool, kindInt, kindUint, kindFloat, kindString:
		v = n.Value
	case kindComplex:
		parts, ok := n.Value.([]any)
		if !ok || len(parts) != 2 {
			return reflect.Value{}, fmt.Errorf("%w: complex payload %T", ErrMalformed, n.Value)
		}
		re, ok1 := parts[0].(float64)
		im, ok2 := parts[1].(float64)
		if !ok1 || !ok2 {
			return reflect.Value{}, fmt.Errorf("%w: complex parts %T, %T", ErrMalformed, parts[0], parts[1])
		}
		v = complex(re, im)
	default:
		return reflect.Value{}, fmt.Errorf("%w: node kind %d", ErrMalformed, n.Kind)
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || family(rv.Kind()) != family(base.Kind()) {
		return reflect.Value{}, fmt.Errorf("%w: payload %T for kind %s", ErrMalformed, v, n.GoKind)
	}
	return rv.Convert(base), nil
}

// family groups kinds that convert into each other without changing
// meaning. Numbers never become strings.
func family(k reflect.Kind) int {
	switch k {
	case reflect.Bool:
		return 1
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return 2
	case reflect.Complex64, reflect.Complex128:
		return 3
	case reflect.String:
		return 4
	default:
		return 0
	}
}
