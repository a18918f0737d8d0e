// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/caregate/caregate/internal/config"
	"github.com/caregate/caregate/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the CareGate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caregate",
		Short: "CareGate - authentication core for the clinical reporting app",
		Long: `CareGate manages the user directory behind the clinical reporting
application: schema migrations, bootstrap of the initial admin account,
and configuration/connectivity checks.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.SetDefault("caregate", version, cfg.LogFormat)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	registerConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// registerConfigFlags declares the flags that override config file keys.
// Flag names map to keys by replacing '-' with '_'.
func registerConfigFlags(flags *pflag.FlagSet) {
	defaults := config.Default()
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.Int("session-timeout-minutes", defaults.SessionTimeoutMinutes, "sliding session expiration window")
	flags.Int("directory-timeout-seconds", defaults.DirectoryTimeoutSeconds, "bound on user directory calls")
	flags.Int("password-min-length", defaults.PasswordMinLength, "minimum password length")
	flags.String("log-format", defaults.LogFormat, "log format (json or text)")
	flags.String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
}

// loadConfig resolves configuration from defaults, the optional --config
// file, and any flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}
