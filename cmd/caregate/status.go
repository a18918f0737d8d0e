// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caregate/caregate/internal/store"
)

const statusProbeTimeout = 10 * time.Second

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show resolved configuration and database connectivity",
		Long: `Print the resolved configuration as YAML and, when a database URL is
configured, probe connectivity and report the current migration version.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Never print credentials embedded in the URL.
	display := cfg
	if display.DatabaseURL != "" {
		display.DatabaseURL = "(configured)"
	}

	out, err := yaml.Marshal(display)
	if err != nil {
		return err //nolint:wrapcheck // direct CLI surface
	}
	cmd.Print(string(out))

	if cfg.DatabaseURL == "" {
		cmd.Println("database: not configured")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusProbeTimeout)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		cmd.Println("database: unreachable")
		return err
	}
	defer pool.Close()
	cmd.Println("database: reachable")

	migrator, err := store.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // best effort on shutdown

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	cmd.Printf("schema version: %d (dirty=%t)\n", version, dirty)
	return nil
}
