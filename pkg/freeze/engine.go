// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package freeze

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var byteType = reflect.TypeFor[byte]()

// Freezer holds a resolved freeze configuration.
//
// Description:
//
//	NewFreezer resolves the violation policy and the strategy once, so an
//	invalid mode string is reported before any value is touched. The same
//	Freezer can run any number of Freeze calls; each call gets its own
//	visited map and freeze ID.
//
// Thread Safety: Safe for concurrent use. A Freezer is never mutated after
// construction.
type Freezer struct {
	registry *Registry
	policy   *ViolationPolicy
	strategy *Strategy
	logger   *slog.Logger
	numeric  bool
	maxDepth int
}

// NewFreezer creates a Freezer.
//
// Example:
//
//	f, err := freeze.NewFreezer(
//	    freeze.OnUpdate("warn"),
//	    freeze.OnFreeze("in-place"),
//	)
//
// Outputs:
//
//	*Freezer - The configured freezer.
//	error - Wraps ErrInvalidConfig if a mode string or callback is invalid.
func NewFreezer(opts ...Option) (*Freezer, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	policy, err := options.policy()
	if err != nil {
		return nil, err
	}
	strategy, err := options.strategy()
	if err != nil {
		return nil, err
	}
	if options.MaxDepth <= 0 {
		return nil, invalidConfig("max depth must be positive, got %d", options.MaxDepth)
	}

	registry := options.Registry
	if registry == nil {
		registry = defaultRegistry
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Mode() == ModeWarn && policy.logger == nil {
		policy = policy.withLogger(logger)
	}

	return &Freezer{
		registry: registry,
		policy:   policy,
		strategy: strategy,
		logger:   logger,
		numeric:  options.NumericBuffers,
		maxDepth: options.MaxDepth,
	}, nil
}

var defaultFreezer = sync.OnceValue(func() *Freezer {
	f, _ := NewFreezer()
	return f
})

// Freeze returns the deeply immutable equivalent of v.
//
// Description:
//
//	Freeze is the package entry point. It resolves opts, then walks v
//	depth-first. Primitives and already frozen values are returned as-is.
//	A pointer, map or slice reached more than once is frozen once. See the
//	package documentation for the kind mapping.
//
// Inputs:
//
//	v - The value to freeze. May be nil.
//	opts - Policy, strategy and registry options.
//
// Outputs:
//
//	any - The frozen value. Never a partial result.
//	error - ErrInvalidConfig, *UnsupportedError, ErrMaxDepth, or an error
//	        from a custom strategy.
func Freeze(v any, opts ...Option) (any, error) {
	f, err := NewFreezer(opts...)
	if err != nil {
		return nil, err
	}
	return f.Freeze(context.Background(), v)
}

// Freeze runs one freeze walk over v.
//
// The walk is synchronous. ctx carries the trace span and is checked for
// cancellation before each struct is frozen.
func (f *Freezer) Freeze(ctx context.Context, v any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id := uuid.New()
	ctx, span := startFreezeSpan(ctx, f, id.String())
	start := time.Now()

	sess := f.strategy.forCall()
	w := &walk{
		ctx:     ctx,
		f:       f,
		dup:     sess.dup,
		copies:  sess.copies,
		base:    frozenBase{policy: f.policy, freezer: f, freezeID: id},
		visited: make(map[identity]any),
	}
	out, err := w.value(reflect.ValueOf(v), 0, nil)

	endFreezeSpan(span, w.objects, err)
	recordFreeze(ctx, f.strategy.Name(), w.objects, time.Since(start), err)
	if err != nil {
		f.logger.Debug("freeze failed",
			slog.String("freeze_id", id.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return out, nil
}

// freeze freezes an operand for an adapter operator.
func (f *Freezer) freeze(v any) (any, error) {
	if IsFrozen(v) {
		return v, nil
	}
	return f.Freeze(context.Background(), v)
}

// lookupKey returns the frozen form a raw key or element would be stored
// under, so Map.Get(Point{1, 2}) finds the Object key frozen from a struct
// value. The walk runs in place and records no telemetry; its result is
// only hashed and compared. A value that cannot be frozen is returned as-is.
func (f *Freezer) lookupKey(v any) any {
	if IsFrozen(v) {
		return v
	}
	w := &walk{
		ctx:     context.Background(),
		f:       f,
		dup:     inPlaceStrategy.dup,
		base:    frozenBase{policy: f.policy, freezer: f},
		visited: make(map[identity]any),
	}
	out, err := w.value(reflect.ValueOf(v), 0, nil)
	if err != nil {
		return v
	}
	return out
}

// Policy returns the resolved violation policy.
func (f *Freezer) Policy() *ViolationPolicy { return f.policy }

// Strategy returns the resolved strategy.
func (f *Freezer) Strategy() *Strategy { return f.strategy }

// Registry returns the registry frozen types are recorded in.
func (f *Freezer) Registry() *Registry { return f.registry }

// walk is the state of one Freeze call.
type walk struct {
	ctx     context.Context
	f       *Freezer
	dup     DuplicateFunc
	copies  *copier
	base    frozenBase
	visited map[identity]any
	objects int
}

// canonical maps a value produced by the copy session back to the identity
// of its source. A source and its copy then share one visited entry, so an
// object reached through an original pointer and through a copied parent
// is frozen once.
func (w *walk) canonical(key identity) identity {
	if w.copies != nil {
		if src, ok := w.copies.origin[key]; ok {
			return src
		}
	}
	return key
}

func (w *walk) value(v reflect.Value, depth int, path *pathElem) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	if depth > w.f.maxDepth {
		return nil, fmt.Errorf("%w: limit %d reached at %s", ErrMaxDepth, w.f.maxDepth, path)
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	t := v.Type()
	if fv, ok := v.Interface().(frozenValue); ok {
		return fv, nil
	}
	if isPrimitive(t) {
		return v.Interface(), nil
	}
	if t.Implements(closerType) {
		return nil, &UnsupportedError{Type: t, Path: path.String(), Reason: "live resources such as files and connections cannot be frozen"}
	}

	switch t.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		if t.Elem().Kind() == reflect.Struct && t.Elem() != timeType {
			return w.object(v, depth, path)
		}
		return w.pointee(v, depth, path)
	case reflect.Struct:
		return w.structValue(v, depth, path)
	case reflect.Slice:
		if t.Elem() == byteType {
			return string(v.Bytes()), nil
		}
		if w.f.numeric && isNumericKind(t.Elem().Kind()) {
			return w.buffer(v, path)
		}
		return w.sequence(v, depth, path)
	case reflect.Array:
		return w.sequence(v, depth, path)
	case reflect.Map:
		if isEmptyStruct(t.Elem()) {
			return w.set(v, depth, path)
		}
		return w.mapping(v, depth, path)
	case reflect.Chan:
		return nil, &UnsupportedError{Type: t, Path: path.String(), Reason: "channels cannot be frozen"}
	case reflect.UnsafePointer:
		return nil, &UnsupportedError{Type: t, Path: path.String(), Reason: "unsafe pointers cannot be frozen"}
	default:
		return nil, &UnsupportedError{Type: t, Path: path.String(), Reason: t.Kind().String() + " values cannot be frozen"}
	}
}

// object freezes a non-nil pointer to a struct.
//
// The source and its duplicate are both entered in the visited map before
// any field is frozen. A field that points back at the struct resolves to
// this Object instead of recursing.
func (w *walk) object(v reflect.Value, depth int, path *pathElem) (any, error) {
	t := v.Type()
	key := w.canonical(identity{ptr: v.Pointer(), typ: t})
	if frozen, ok := w.visited[key]; ok {
		return frozen, nil
	}
	if err := w.ctx.Err(); err != nil {
		return nil, err
	}

	dup, err := w.duplicate(v, path)
	if err != nil {
		return nil, err
	}
	dupKey := w.canonical(identity{ptr: dup.Pointer(), typ: t})
	if frozen, ok := w.visited[dupKey]; ok {
		w.visited[key] = frozen
		return frozen, nil
	}
	obj := &Object{frozenBase: w.base, source: dup}
	w.visited[key] = obj
	w.visited[dupKey] = obj

	if err := w.attributes(obj, depth, path); err != nil {
		return nil, err
	}
	return obj, nil
}

// pointee freezes what a pointer to a non-struct value points at. The
// frozen form of such a pointer is the frozen form of its target, so every
// pointer on the chain is recorded against the result. A chain that comes
// back to one of its own pointers before reaching a container has no
// finite frozen form and fails with ErrCycle.
func (w *walk) pointee(v reflect.Value, depth int, path *pathElem) (any, error) {
	var chain []identity
	remember := func(out any) any {
		for _, key := range chain {
			w.visited[key] = out
		}
		return out
	}
	for !v.IsNil() {
		if v.Kind() == reflect.Pointer {
			t := v.Type()
			if t.Elem().Kind() == reflect.Struct && t.Elem() != timeType {
				break
			}
			key := w.canonical(identity{ptr: v.Pointer(), typ: t})
			if frozen, ok := w.visited[key]; ok {
				return remember(frozen), nil
			}
			if slices.Contains(chain, key) {
				return nil, fmt.Errorf("%w: pointer %s at %s leads back to itself", ErrCycle, t, path)
			}
			chain = append(chain, key)
		}
		v = v.Elem()
		depth++
		if k := v.Kind(); k != reflect.Pointer && k != reflect.Interface {
			break
		}
	}
	out, err := w.value(v, depth, path)
	if err != nil {
		return nil, err
	}
	return remember(out), nil
}

// structValue freezes a struct held by value. It has no identity, so it is
// never memoized.
func (w *walk) structValue(v reflect.Value, depth int, path *pathElem) (any, error) {
	if err := w.ctx.Err(); err != nil {
		return nil, err
	}
	dup, err := w.duplicate(v, path)
	if err != nil {
		return nil, err
	}
	src := reflect.New(v.Type())
	src.Elem().Set(dup)
	obj := &Object{frozenBase: w.base, source: src, byValue: true}

	if err := w.attributes(obj, depth, path); err != nil {
		return nil, err
	}
	return obj, nil
}

// attributes binds obj to its registry type and freezes every attribute.
func (w *walk) attributes(obj *Object, depth int, path *pathElem) error {
	ft, created := w.f.registry.GetOrCreate(obj.source.Type().Elem())
	if created {
		recordTypeCreated(w.ctx, ft.Name())
		w.f.logger.Debug("frozen type created",
			slog.String("type", ft.Name()),
			slog.String("hot", ft.QualifiedName()),
		)
	}
	obj.ftype = ft
	obj.values = make([]any, len(ft.fields))

	elem := obj.source.Elem()
	for i, f := range ft.fields {
		frozen, err := w.value(elem.Field(f.index), depth+1, path.field(f.name))
		if err != nil {
			return err
		}
		obj.values[i] = frozen
	}
	w.objects++
	return nil
}

// duplicate applies the strategy and checks that it kept the type.
func (w *walk) duplicate(v reflect.Value, path *pathElem) (reflect.Value, error) {
	out, err := w.dup(v.Interface())
	if err != nil {
		return reflect.Value{}, fmt.Errorf("duplicate %s at %s: %w", v.Type(), path, err)
	}
	dv := reflect.ValueOf(out)
	if !dv.IsValid() || dv.Type() != v.Type() || (dv.Kind() == reflect.Pointer && dv.IsNil()) {
		return reflect.Value{}, invalidConfig("on_freeze function returned %T for %s at %s", out, v.Type(), path)
	}
	return dv, nil
}

func (w *walk) sequence(v reflect.Value, depth int, path *pathElem) (any, error) {
	t := v.Type()
	seq := &Sequence{frozenBase: w.base, hot: t}
	if t.Kind() == reflect.Slice {
		if v.IsNil() {
			seq.isNil = true
			seq.items = []any{}
			return seq, nil
		}
		if v.Len() > 0 {
			key := w.canonical(identity{ptr: v.Pointer(), typ: t, n: v.Len()})
			if frozen, ok := w.visited[key]; ok {
				return frozen, nil
			}
			w.visited[key] = seq
		}
	}

	seq.items = make([]any, v.Len())
	for i := range v.Len() {
		frozen, err := w.value(v.Index(i), depth+1, path.index(i))
		if err != nil {
			return nil, err
		}
		seq.items[i] = frozen
	}
	return seq, nil
}

func (w *walk) buffer(v reflect.Value, path *pathElem) (any, error) {
	t := v.Type()
	if v.Len() == 0 {
		return &Buffer{frozenBase: w.base, data: reflect.MakeSlice(t, 0, 0)}, nil
	}
	key := w.canonical(identity{ptr: v.Pointer(), typ: t, n: v.Len()})
	if frozen, ok := w.visited[key]; ok {
		return frozen, nil
	}
	data, err := w.duplicate(v, path)
	if err != nil {
		return nil, err
	}
	buf := &Buffer{frozenBase: w.base, data: data}
	w.visited[key] = buf
	return buf, nil
}

func (w *walk) mapping(v reflect.Value, depth int, path *pathElem) (any, error) {
	t := v.Type()
	m := newMap(w.base, t, v.Len())
	if v.IsNil() {
		m.isNil = true
		return m, nil
	}
	key := w.canonical(identity{ptr: v.Pointer(), typ: t})
	if frozen, ok := w.visited[key]; ok {
		return frozen, nil
	}
	w.visited[key] = m

	for _, k := range sortedKeys(v) {
		p := path.mapKey(k)
		fk, err := w.value(k, depth+1, p)
		if err != nil {
			return nil, err
		}
		fv, err := w.value(v.MapIndex(k), depth+1, p)
		if err != nil {
			return nil, err
		}
		if err := m.put(fk, fv); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return m, nil
}

func (w *walk) set(v reflect.Value, depth int, path *pathElem) (any, error) {
	t := v.Type()
	s := newSet(w.base, t, v.Len())
	if v.IsNil() {
		s.isNil = true
		return s, nil
	}
	key := w.canonical(identity{ptr: v.Pointer(), typ: t})
	if frozen, ok := w.visited[key]; ok {
		return frozen, nil
	}
	w.visited[key] = s

	for _, k := range sortedKeys(v) {
		p := path.mapKey(k)
		fk, err := w.value(k, depth+1, p)
		if err != nil {
			return nil, err
		}
		if err := s.add(fk); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return s, nil
}

func isEmptyStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.NumField() == 0
}

// sortedKeys returns the keys of map v ordered numbers first, then strings,
// then everything else by printed form.
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		return compareKeys(keys[i], keys[j]) < 0
	})
	return keys
}

func compareKeys(a, b reflect.Value) int {
	a, b = unwrapInterface(a), unwrapInterface(b)
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 0:
		return compareNumbers(a, b)
	case 1:
		return cmp.Compare(a.String(), b.String())
	default:
		return cmp.Compare(printed(a), printed(b))
	}
}

func unwrapInterface(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		return v.Elem()
	}
	return v
}

func keyRank(v reflect.Value) int {
	if !v.IsValid() {
		return 2
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return 0
	case reflect.String:
		return 1
	default:
		return 2
	}
}

func compareNumbers(a, b reflect.Value) int {
	switch {
	case a.CanInt() && b.CanInt():
		return cmp.Compare(a.Int(), b.Int())
	case a.CanUint() && b.CanUint():
		return cmp.Compare(a.Uint(), b.Uint())
	default:
		return cmp.Compare(asFloat(a), asFloat(b))
	}
}

func asFloat(v reflect.Value) float64 {
	switch {
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func printed(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	return fmt.Sprint(v.Interface())
}

// pathElem locates a value inside the graph being frozen. Paths are only
// rendered when an error is reported.
type pathElem struct {
	parent *pathElem
	name   string
	key    any
	isKey  bool
}

func (p *pathElem) field(name string) *pathElem {
	return &pathElem{parent: p, name: name}
}

func (p *pathElem) index(i int) *pathElem {
	return &pathElem{parent: p, key: i, isKey: true}
}

func (p *pathElem) mapKey(k reflect.Value) *pathElem {
	var key any
	if k.CanInterface() {
		key = k.Interface()
	}
	return &pathElem{parent: p, key: key, isKey: true}
}

// String renders the path as "$.Items[2].File".
func (p *pathElem) String() string {
	var parts []*pathElem
	for e := p; e != nil; e = e.parent {
		parts = append(parts, e)
	}
	var b strings.Builder
	b.WriteByte('$')
	for i := len(parts) - 1; i >= 0; i-- {
		e := parts[i]
		switch {
		case !e.isKey:
			b.WriteByte('.')
			b.WriteString(e.name)
		case isString(e.key):
			fmt.Fprintf(&b, "[%q]", e.key)
		default:
			fmt.Fprintf(&b, "[%v]", e.key)
		}
	}
	return b.String()
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
