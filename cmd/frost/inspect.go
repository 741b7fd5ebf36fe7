// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/frost/pkg/freeze"
)

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file]",
		Short: "Freeze a document and print its frozen structure as a tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := a.freezeInputs(cmd.Context(), cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			t := &tree{w: out, p: paletteFor(out), open: map[any]bool{}}
			t.node("", "", "", docs[0].value)
			return t.err
		},
	}
}

// tree prints a frozen graph one node per line. A composite already open
// on the current path prints as a cycle marker instead of recursing.
type tree struct {
	w    io.Writer
	p    palette
	open map[any]bool
	err  error
}

func (t *tree) line(prefix, label, desc string) {
	if t.err != nil {
		return
	}
	if label != "" {
		label = t.p.paint(t.p.key, label) + ": "
	}
	_, t.err = fmt.Fprintln(t.w, prefix+label+desc)
}

// child prints v as a branch below a node whose children are indented by
// indent.
func (t *tree) child(indent, label string, v any, last bool) {
	glyph, pad := "├─ ", "│  "
	if last {
		glyph, pad = "└─ ", "   "
	}
	t.node(indent+t.p.paint(t.p.branch, glyph), indent+t.p.paint(t.p.branch, pad), label, v)
}

// node prints v on a line starting with prefix and its children indented
// by childIndent.
func (t *tree) node(prefix, childIndent, label string, v any) {
	switch v.(type) {
	case *freeze.Object, *freeze.Map, *freeze.Sequence, *freeze.Set:
		if t.open[v] {
			t.line(prefix, label, t.p.paint(t.p.cycle, "<cycle>"))
			return
		}
		t.open[v] = true
		defer delete(t.open, v)
	}

	switch x := v.(type) {
	case *freeze.Object:
		t.line(prefix, label, t.p.paint(t.p.object, x.Type().Name())+t.p.paint(t.p.adapter, fmt.Sprintf(" (%d)", x.Len())))
		names := x.Names()
		for i, name := range names {
			t.child(childIndent, name, x.Attr(name), i == len(names)-1)
		}

	case *freeze.Map:
		t.line(prefix, label, t.p.paint(t.p.adapter, fmt.Sprintf("frozenmap (%d)", x.Len())))
		keys, values := x.Keys(), x.Values()
		for i := range keys {
			t.child(childIndent, describeKey(keys[i]), values[i], i == len(keys)-1)
		}

	case *freeze.Sequence:
		t.line(prefix, label, t.p.paint(t.p.adapter, fmt.Sprintf("frozensequence (%d)", x.Len())))
		items := x.Values()
		for i, item := range items {
			t.child(childIndent, fmt.Sprintf("[%d]", i), item, i == len(items)-1)
		}

	case *freeze.Set:
		t.line(prefix, label, t.p.paint(t.p.adapter, fmt.Sprintf("frozenset (%d)", x.Len())))
		items := x.Values()
		for i, item := range items {
			t.child(childIndent, "", item, i == len(items)-1)
		}

	case *freeze.Buffer:
		t.line(prefix, label, t.p.paint(t.p.adapter, fmt.Sprintf("frozenbuffer %s (%d)", x.Kind(), x.Len())))

	default:
		t.line(prefix, label, t.p.paint(t.p.scalar, describeScalar(v)))
	}
}

func describeKey(k any) string {
	if s, ok := k.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return describeScalar(k)
}

func describeScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "string " + fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%T %v", v, v)
	}
}
