// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/telemetry"
)

func (a *app) thawCmd() *cobra.Command {
	var (
		format   string
		storeDir string
	)
	cmd := &cobra.Command{
		Use:   "thaw KEY",
		Short: "Load a snapshot, unfreeze it and print the mutable document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains([]string{formatJSON, formatYAML}, format) {
				return fmt.Errorf("unknown format %q", format)
			}
			ctx, span := telemetry.StartSpan(cmd.Context(), tracerName, "thaw",
				trace.WithAttributes(attribute.String("key", args[0])),
			)
			defer span.End()

			store, err := a.openStore(storeDir)
			if err != nil {
				return err
			}
			defer store.Close()

			frozen, err := store.Get(ctx, args[0], a.cfg.FreezeOptions(a.logger.Slog())...)
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}
			hot, err := freeze.Unfreeze(frozen)
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}

			out := cmd.OutOrStdout()
			if format == formatYAML {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(hot); err != nil {
					return err
				}
				return enc.Close()
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(plain(hot))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json, yaml")
	cmd.Flags().StringVar(&storeDir, "store", "", "snapshot store directory (default store.dir)")
	return cmd
}

func (a *app) keysCmd() *cobra.Command {
	var storeDir string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List snapshot keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(storeDir)
			if err != nil {
				return err
			}
			defer store.Close()

			keys, err := store.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storeDir, "store", "", "snapshot store directory (default store.dir)")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var storeDir string
	cmd := &cobra.Command{
		Use:     "delete KEY...",
		Aliases: []string{"rm"},
		Short:   "Delete snapshots",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(storeDir)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, k := range args {
				if err := store.Delete(cmd.Context(), k); err != nil {
					return err
				}
				a.logger.Info("snapshot deleted", "key", k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storeDir, "store", "", "snapshot store directory (default store.dir)")
	return cmd
}

// plain rewrites an unfrozen document so encoding/json accepts it: maps
// with non-string keys get their keys formatted, and sets become lists.
func plain(v any) any {
	return plainValue(reflect.ValueOf(v))
}

func plainValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return plainValue(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Elem().Kind() != reflect.Struct {
			return plainValue(v.Elem())
		}
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem() == reflect.TypeFor[struct{}]() {
			items := make([]any, 0, v.Len())
			for _, k := range sortedKeys(v) {
				items = append(items, plainValue(k))
			}
			return items
		}
		out := make(map[string]any, v.Len())
		for _, k := range sortedKeys(v) {
			out[fmt.Sprint(k.Interface())] = plainValue(v.MapIndex(k))
		}
		return out
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		items := make([]any, v.Len())
		for i := range items {
			items[i] = plainValue(v.Index(i))
		}
		return items
	}
	return v.Interface()
}

// sortedKeys orders map keys by their formatted form so output is stable.
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}
