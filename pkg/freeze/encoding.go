// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package freeze

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// renderStack tracks the frozen composites on the current encoding path.
// Shared values may appear more than once in the output; a value that
// contains itself cannot be encoded as a tree and fails with ErrCycle.
type renderStack map[any]bool

func (s renderStack) enter(v any, name string) error {
	if s[v] {
		return fmt.Errorf("%w: %s contains itself", ErrCycle, name)
	}
	s[v] = true
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, renderStack{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any, stack renderStack) error {
	switch x := v.(type) {
	case *Object:
		if err := stack.enter(x, x.ftype.Name()); err != nil {
			return err
		}
		defer delete(stack, x)
		buf.WriteByte('{')
		first := true
		for i, f := range x.ftype.fields {
			if f.jsonName == "" {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeJSONKey(buf, f.jsonName)
			if err := writeJSON(buf, x.values[i], stack); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case *Map:
		if err := stack.enter(x, adapterMap); err != nil {
			return err
		}
		defer delete(stack, x)
		buf.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			writeJSONKey(buf, key)
			if err := writeJSON(buf, x.values[i], stack); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case *Sequence:
		if err := stack.enter(x, adapterSequence); err != nil {
			return err
		}
		defer delete(stack, x)
		return writeJSONArray(buf, x.items, stack)

	case *Set:
		if err := stack.enter(x, adapterSet); err != nil {
			return err
		}
		defer delete(stack, x)
		return writeJSONArray(buf, x.items, stack)

	case *Buffer:
		b, err := json.Marshal(x.data.Interface())
		if err != nil {
			return err
		}
		buf.Write(b)

	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func writeJSONArray(buf *bytes.Buffer, items []any, stack renderStack) error {
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(buf, item, stack); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeJSONKey(buf *bytes.Buffer, key string) {
	b, _ := json.Marshal(key)
	buf.Write(b)
	buf.WriteByte(':')
}

// yamlNode builds the YAML representation of v.
func yamlNode(v any, stack renderStack) (*yaml.Node, error) {
	switch x := v.(type) {
	case *Object:
		if err := stack.enter(x, x.ftype.Name()); err != nil {
			return nil, err
		}
		defer delete(stack, x)
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i, f := range x.ftype.fields {
			if f.yamlName == "" {
				continue
			}
			val, err := yamlNode(x.values[i], stack)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.yamlName}, val)
		}
		return node, nil

	case *Map:
		if err := stack.enter(x, adapterMap); err != nil {
			return nil, err
		}
		defer delete(stack, x)
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i, k := range x.keys {
			key, err := yamlNode(k, stack)
			if err != nil {
				return nil, err
			}
			val, err := yamlNode(x.values[i], stack)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, key, val)
		}
		return node, nil

	case *Sequence:
		if err := stack.enter(x, adapterSequence); err != nil {
			return nil, err
		}
		defer delete(stack, x)
		return yamlSequence(x.items, stack)

	case *Set:
		if err := stack.enter(x, adapterSet); err != nil {
			return nil, err
		}
		defer delete(stack, x)
		return yamlSequence(x.items, stack)

	case *Buffer:
		node := &yaml.Node{}
		if err := node.Encode(x.data.Interface()); err != nil {
			return nil, err
		}
		return node, nil

	default:
		node := &yaml.Node{}
		if err := node.Encode(v); err != nil {
			return nil, err
		}
		return node, nil
	}
}

func yamlSequence(items []any, stack renderStack) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, item := range items {
		child, err := yamlNode(item, stack)
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content, child)
	}
	return node, nil
}

// format renders v for String methods. Values already on the stack print
// as "<cycle>".
func format(b *strings.Builder, v any, stack renderStack) {
	switch x := v.(type) {
	case *Object:
		if stack[x] {
			b.WriteString("<cycle>")
			return
		}
		stack[x] = true
		defer delete(stack, x)
		b.WriteString(x.ftype.HotName())
		b.WriteByte('{')
		for i, f := range x.ftype.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.name)
			b.WriteString(": ")
			format(b, x.values[i], stack)
		}
		b.WriteByte('}')

	case *Map:
		if stack[x] {
			b.WriteString("<cycle>")
			return
		}
		stack[x] = true
		defer delete(stack, x)
		b.WriteString(adapterMap)
		b.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, k, stack)
			b.WriteString(": ")
			format(b, x.values[i], stack)
		}
		b.WriteByte('}')

	case *Sequence:
		if stack[x] {
			b.WriteString("<cycle>")
			return
		}
		stack[x] = true
		defer delete(stack, x)
		b.WriteString(adapterSequence)
		formatItems(b, "[", "]", x.items, stack)

	case *Set:
		if stack[x] {
			b.WriteString("<cycle>")
			return
		}
		stack[x] = true
		defer delete(stack, x)
		b.WriteString(adapterSet)
		formatItems(b, "{", "}", x.items, stack)

	case *Buffer:
		fmt.Fprintf(b, "%s%v", adapterBuffer, x.data.Interface())

	case string:
		fmt.Fprintf(b, "%q", x)

	default:
		fmt.Fprint(b, v)
	}
}

func formatItems(b *strings.Builder, opening, closing string, items []any, stack renderStack) {
	b.WriteString(opening)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, item, stack)
	}
	b.WriteString(closing)
}

func formatString(v any) string {
	var b strings.Builder
	format(&b, v, renderStack{})
	return b.String()
}
