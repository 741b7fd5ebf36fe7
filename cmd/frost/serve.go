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
	"fmt"
	"net"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/frost/pkg/server"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		storeDir string
		addr     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			store, err := a.openStore(storeDir)
			if err != nil {
				return err
			}
			defer store.Close()

			if a.cfg.Logging.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv, err := server.New(server.Config{
				Store:         store,
				Logger:        a.logger.Slog(),
				FreezeOptions: a.cfg.FreezeOptions(a.logger.Slog()),
				RateLimit:     a.cfg.Server.RateLimit,
				Burst:         a.cfg.Server.Burst,
				MaxBodyBytes:  a.cfg.Server.MaxBodyBytes,
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context(), addr, func(bound net.Addr) {
				a.logger.Info("serving snapshots", "addr", bound.String())
				fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", bound)
			})
		},
	}
	cmd.Flags().StringVar(&storeDir, "store", "", "snapshot store directory (default store.dir)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}
