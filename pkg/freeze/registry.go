// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// FrozenType describes the frozen form of one struct type.
//
// The hot type is the original mutable struct type. Objects of a FrozenType
// still answer InstanceOf(hot) with true.
type FrozenType struct {
	name      atomic.Pointer[string]
	qualified string
	hot       reflect.Type
	fields    []fieldInfo
	index     map[string]int
}

// fieldInfo is one attribute slot of a struct type.
type fieldInfo struct {
	name     string
	index    int
	jsonName string // "" when tagged json:"-"
	yamlName string // "" when tagged yaml:"-"
	typ      reflect.Type
}

// Name returns the generated frozen type name, e.g.
// "FrozenPointFromGithubComAcmeShapes". A type whose bare name is shared
// with a different type is named with its hash suffix instead; see
// Registry.GetOrCreate.
func (ft *FrozenType) Name() string { return *ft.name.Load() }

// QualifiedName returns the hot type's qualified name, "pkgpath.Name".
func (ft *FrozenType) QualifiedName() string { return ft.qualified }

// HotName returns the original type's name.
func (ft *FrozenType) HotName() string { return ft.hot.Name() }

// HotModule returns the original type's package path.
func (ft *FrozenType) HotModule() string { return ft.hot.PkgPath() }

// HotType returns the original struct type.
func (ft *FrozenType) HotType() reflect.Type { return ft.hot }

// Attributes returns the attribute names in declaration order.
func (ft *FrozenType) Attributes() []string {
	names := make([]string, len(ft.fields))
	for i, f := range ft.fields {
		names[i] = f.name
	}
	return names
}

// String implements fmt.Stringer.
func (ft *FrozenType) String() string { return ft.Name() }

// Registry caches one FrozenType per struct type.
//
// Description:
//
//	Entries are created lazily on the first freeze of an instance and never
//	evicted. Clear exists for test isolation. Each entry is also indexed by
//	the hot type's qualified name and by its generated name, which is what
//	decoders resolve.
//
// Thread Safety: Safe for concurrent use. A single mutex makes lookup and
// insertion one atomic step, so concurrent first use of a type creates
// exactly one FrozenType.
type Registry struct {
	mu     sync.Mutex
	byType map[reflect.Type]*FrozenType
	byKey  map[string]*FrozenType
	byName map[string]*FrozenType

	// aliases maps every entry's suffixed name to it, so data written by a
	// process that saw a name clash decodes in one that did not.
	aliases map[string]*FrozenType

	// ambiguous holds bare names claimed by more than one qualified name.
	ambiguous map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*FrozenType),
		byKey:  make(map[string]*FrozenType),
		byName: make(map[string]*FrozenType),

		aliases:   make(map[string]*FrozenType),
		ambiguous: make(map[string]bool),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used unless WithRegistry
// injects another one.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// ClearRegistry empties the default registry.
func ClearRegistry() {
	defaultRegistry.Clear()
}

// ListRegisteredTypes returns the default registry's types sorted by name.
func ListRegisteredTypes() []*FrozenType {
	return defaultRegistry.Types()
}

// GetOrCreate returns the FrozenType for struct type t, creating it on first
// use.
//
// Description:
//
//	The generated name is "Frozen<Name>From<CamelPkgPath>". Camel-casing
//	drops separators, so two qualified names can produce the same bare
//	name. Once that happens the bare name is ambiguous: every type with it,
//	including one registered earlier, is renamed to the bare name plus the
//	8-hex-digit FNV-32a hash of its own qualified name. The result does not
//	depend on registration order.
//
//	Types declared inside functions share a qualified name with the package
//	type of the same name. Nothing in reflect tells them apart, so the
//	second one takes the suffixed name and any further clash a counter.
//
// Outputs:
//
//	*FrozenType - The cached or new entry.
//	bool - True if this call created the entry.
func (r *Registry) GetOrCreate(t reflect.Type) (*FrozenType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ft, ok := r.byType[t]; ok {
		return ft, false
	}

	key := qualifiedName(t)
	bare := generatedName(t)
	suffixed := suffixedName(bare, key)
	name := bare
	if other, taken := r.byName[bare]; taken || r.ambiguous[bare] {
		name = suffixed
		if taken && other.qualified != key {
			r.ambiguous[bare] = true
			delete(r.byName, bare)
			renamed := r.freeName(suffixedName(bare, other.qualified))
			other.name.Store(&renamed)
			r.byName[renamed] = other
		}
	}
	name = r.freeName(name)

	fields := attributeFields(t)
	ft := &FrozenType{
		qualified: key,
		hot:       t,
		fields:    fields,
		index:     make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		ft.index[f.name] = i
	}
	ft.name.Store(&name)
	r.byType[t] = ft
	r.byName[name] = ft
	if _, taken := r.aliases[suffixed]; !taken {
		r.aliases[suffixed] = ft
	}
	if _, ok := r.byKey[key]; !ok {
		r.byKey[key] = ft
	}
	return ft, true
}

// Register pre-registers a struct type, or the struct a pointer type points
// to. Decoders in a fresh process need this before resolving names.
func (r *Registry) Register(t reflect.Type) (*FrozenType, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrTypeMismatch)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct type", ErrTypeMismatch, t)
	}
	ft, _ := r.GetOrCreate(t)
	return ft, nil
}

// Register pre-registers T in the default registry.
func Register[T any]() (*FrozenType, error) {
	return defaultRegistry.Register(reflect.TypeFor[T]())
}

// Lookup finds an entry by qualified name ("pkgpath.Name").
func (r *Registry) Lookup(qualified string) (*FrozenType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ft, ok := r.byKey[qualified]
	return ft, ok
}

// LookupName finds an entry by generated frozen type name. The suffixed
// form of an unambiguous name resolves too.
func (r *Registry) LookupName(name string) (*FrozenType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ft, ok := r.byName[name]; ok {
		return ft, true
	}
	ft, ok := r.aliases[name]
	return ft, ok
}

// Types returns a snapshot of all entries sorted by generated name.
func (r *Registry) Types() []*FrozenType {
	r.mu.Lock()
	result := make([]*FrozenType, 0, len(r.byType))
	for _, ft := range r.byType {
		result = append(result, ft)
	}
	r.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byType)
}

// Clear removes every entry. Objects frozen earlier keep their FrozenType;
// later freezes of the same type get a new one.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byType)
	clear(r.byKey)
	clear(r.byName)
	clear(r.aliases)
	clear(r.ambiguous)
}

// freeName returns name, or name with the first free counter appended.
// Callers hold r.mu.
func (r *Registry) freeName(name string) string {
	candidate := name
	for n := 2; ; n++ {
		if _, taken := r.byName[candidate]; !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
}

// suffixedName appends the FNV-32a hash of the qualified name.
func suffixedName(bare, qualified string) string {
	h := fnv.New32a()
	h.Write([]byte(qualified))
	return fmt.Sprintf("%s_%08x", bare, h.Sum32())
}

// qualifiedName returns "pkgpath.Name" for named types and the type string
// for unnamed ones.
func qualifiedName(t reflect.Type) string {
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// generatedName builds "Frozen<Name>From<CamelPkgPath>".
func generatedName(t reflect.Type) string {
	name := identifierPart(t.Name())
	if name == "" {
		name = "Anonymous"
	}
	module := camelCase(t.PkgPath())
	if module == "" {
		return "Frozen" + name
	}
	return "Frozen" + name + "From" + module
}

// camelCase turns "github.com/acme/my_pkg" into "GithubComAcmeMyPkg".
func camelCase(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, p := range parts {
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// identifierPart strips characters that cannot appear in an identifier,
// e.g. the brackets of an instantiated generic type name.
func identifierPart(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, s)
}

// attributeFields lists the exported fields of t that are not tagged
// `freeze:"-"`.
func attributeFields(t reflect.Type) []fieldInfo {
	fields := make([]fieldInfo, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("freeze") == "-" {
			continue
		}
		fields = append(fields, fieldInfo{
			name:     f.Name,
			index:    i,
			jsonName: tagName(f.Tag.Get("json"), f.Name),
			yamlName: tagName(f.Tag.Get("yaml"), strings.ToLower(f.Name)),
			typ:      f.Type,
		})
	}
	return fields
}

// tagName returns the name part of a struct tag, def when the tag has no
// name, or "" when the field is excluded with "-".
func tagName(tag, def string) string {
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return def
}
