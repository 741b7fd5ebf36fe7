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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/freeze/codec"
	"github.com/AleutianAI/frost/pkg/telemetry"
	"github.com/AleutianAI/frost/pkg/validation"
)

// Output formats accepted by --format.
const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatCBOR = "cbor"
)

const stdinName = "-"

// frozenDoc is one input document after freezing.
type frozenDoc struct {
	name  string
	value any
}

func (a *app) freezeCmd() *cobra.Command {
	var (
		format   string
		storeDir string
		key      string
	)
	cmd := &cobra.Command{
		Use:   "freeze [files...]",
		Short: "Freeze JSON or YAML documents and print the frozen form",
		Long: `Reads each file (or stdin when none is given, or for "-"), freezes the
document it holds and prints it as JSON, YAML or canonical CBOR.

With --store the frozen documents are also saved as snapshots. A single
document is saved under --key; several are saved as <key>/<file name>.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains([]string{formatJSON, formatYAML, formatCBOR}, format) {
				return fmt.Errorf("unknown format %q", format)
			}
			docs, err := a.freezeInputs(cmd.Context(), cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if storeDir != "" || key != "" {
				if err := a.persist(cmd.Context(), storeDir, key, docs); err != nil {
					return err
				}
			}
			return writeDocs(cmd.OutOrStdout(), docs, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json, yaml, cbor")
	cmd.Flags().StringVar(&storeDir, "store", "", "snapshot store directory (default store.dir)")
	cmd.Flags().StringVar(&key, "key", "", "snapshot key (default the file name)")
	return cmd
}

// freezeInputs freezes every named input concurrently. Results keep the
// argument order.
func (a *app) freezeInputs(ctx context.Context, stdin io.Reader, paths []string) ([]frozenDoc, error) {
	if len(paths) == 0 {
		paths = []string{stdinName}
	}
	stdinUses := 0
	for _, p := range paths {
		if p == stdinName {
			stdinUses++
		}
	}
	if stdinUses > 1 {
		return nil, errors.New("stdin can be read only once")
	}

	f, err := a.freezer()
	if err != nil {
		return nil, err
	}

	docs := make([]frozenDoc, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			v, err := a.freezeFile(ctx, f, stdin, path)
			if err != nil {
				return err
			}
			docs[i] = frozenDoc{name: path, value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (a *app) freezeFile(ctx context.Context, f *freeze.Freezer, stdin io.Reader, path string) (any, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "freeze.file",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, a.logger.Slog())

	start := time.Now()
	doc, err := readDocument(stdin, path)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	frozen, err := f.Freeze(ctx, doc)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("document frozen", "path", path, "duration", time.Since(start))
	return frozen, nil
}

// readDocument parses the first document in path. JSON is read through the
// YAML decoder, which keeps integers as int instead of float64.
func readDocument(stdin io.Reader, path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == stdinName {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func (a *app) persist(ctx context.Context, dir, key string, docs []frozenDoc) error {
	store, err := a.openStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, doc := range docs {
		k := snapshotKey(key, doc.name, len(docs))
		if err := store.Put(ctx, k, doc.value); err != nil {
			return err
		}
		a.logger.Info("snapshot stored", "key", k, "path", doc.name)
	}
	return nil
}

// snapshotKey names the snapshot for one input. File names are sanitized;
// an explicit key is used as given and validated by the store.
func snapshotKey(key, path string, total int) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if base == "" {
		base = filepath.Base(path)
	}
	if path == stdinName {
		base = "stdin"
	}
	if clean, err := validation.SanitizeKey(base); err == nil {
		base = clean
	}
	switch {
	case key == "":
		return base
	case total == 1:
		return key
	default:
		return key + "/" + base
	}
}

func writeDocs(w io.Writer, docs []frozenDoc, format string) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		for _, doc := range docs {
			if err := enc.Encode(doc.value); err != nil {
				return fmt.Errorf("%s: %w", doc.name, err)
			}
		}
		return enc.Close()

	case formatCBOR:
		for _, doc := range docs {
			data, err := codec.Marshal(doc.value)
			if err != nil {
				return fmt.Errorf("%s: %w", doc.name, err)
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
		return nil

	default:
		enc := json.NewEncoder(w)
		for _, doc := range docs {
			if err := enc.Encode(doc.value); err != nil {
				return fmt.Errorf("%s: %w", doc.name, err)
			}
		}
		return nil
	}
}
