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
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/snapshot"
	"github.com/AleutianAI/frost/pkg/watch"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		storeDir string
		key      string
	)
	cmd := &cobra.Command{
		Use:   "watch FILE...",
		Short: "Re-freeze documents into the snapshot store whenever they change",
		Long: `Freezes and stores every file once, then again after each change
until interrupted. Keys follow the freeze command: the file name, --key
for a single file, or <key>/<file name> for several.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if slices.Contains(args, stdinName) {
				return errors.New("watch needs files, not stdin")
			}
			store, err := a.openStore(storeDir)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := a.freezer()
			if err != nil {
				return err
			}

			s := &syncer{app: a, store: store, freezer: f, keys: make(map[string]string, len(args)), out: cmd.OutOrStdout()}

			// Watch before the first sync so an edit made meanwhile is not lost.
			w, err := watch.New(args, s.handle, watch.Options{Logger: a.logger.Slog()})
			if err != nil {
				return err
			}
			defer w.Close()

			for _, p := range args {
				abs, err := filepath.Abs(p)
				if err != nil {
					return err
				}
				s.keys[abs] = snapshotKey(key, p, len(args))
				if err := s.sync(cmd.Context(), abs); err != nil {
					return err
				}
			}

			a.logger.Info("watching", "files", len(args))
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&storeDir, "store", "", "snapshot store directory (default store.dir)")
	cmd.Flags().StringVar(&key, "key", "", "snapshot key (default the file name)")
	return cmd
}

// syncer freezes changed files into the store.
type syncer struct {
	app     *app
	store   *snapshot.Store
	freezer *freeze.Freezer
	keys    map[string]string
	out     io.Writer
}

func (s *syncer) sync(ctx context.Context, path string) error {
	frozen, err := s.app.freezeFile(ctx, s.freezer, nil, path)
	if err != nil {
		return err
	}
	key := s.keys[path]
	if err := s.store.Put(ctx, key, frozen); err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.out, "stored %s\n", key)
	return err
}

// handle keeps watching after a failed sync; a half-written document is
// picked up again on its next write.
func (s *syncer) handle(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.sync(ctx, p); err != nil {
			s.app.logger.Warn("sync failed", "path", p, "error", err)
		}
	}
}
