// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package main

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/caregate/caregate/internal/auth"
	authpg "github.com/caregate/caregate/internal/auth/postgres"
	"github.com/caregate/caregate/internal/store"
)

// Bootstrap admin defaults. The password satisfies the default policy and
// should be rotated immediately after first login.
const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "Admin@123"
	defaultSeedTimeout   = 30 * time.Second
)

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	username string
	password string
	timeout  time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bootstrap the initial admin account",
		Long: `Creates the initial admin user in the directory.
This command is idempotent - it refuses to overwrite an existing account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.username, "username", defaultAdminUsername, "admin username")
	cmd.Flags().StringVar(&cfg.password, "password", defaultAdminPassword, "admin password")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, seedCfg *seedConfig) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required (config file or --database-url)")
	}

	record, err := buildAdminRecord(seedCfg.username, seedCfg.password, cfg.PasswordMinLength)
	if err != nil {
		return err
	}

	// Bound the whole run; cmd.Context() respects SIGINT/SIGTERM.
	ctx, cancel := context.WithTimeout(cmd.Context(), seedCfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := authpg.NewDirectoryRepo(pool)

	cmd.Println("Creating admin account...")
	if err := repo.Create(ctx, record); err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			cmd.Printf("User %q already exists, nothing to do\n", record.Username)
			return nil
		}
		return err
	}

	cmd.Printf("Admin account %q created\n", record.Username)
	return nil
}

// buildAdminRecord validates the bootstrap credentials and returns the
// record to insert. The password is policy-checked before hashing so a weak
// override fails fast.
func buildAdminRecord(username, password string, minLength int) (*auth.UserRecord, error) {
	if username == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("admin username cannot be empty")
	}
	if err := auth.ValidatePassword(password, minLength); err != nil {
		return nil, err
	}

	hash, err := auth.NewArgon2idHasher().Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &auth.UserRecord{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
