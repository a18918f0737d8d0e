// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

// Package config loads CareGate configuration from defaults, an optional
// YAML file, and command-line flags, in that order of precedence (later
// sources win).
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the resolved configuration for the CareGate core and its
// operational surfaces.
type Config struct {
	DatabaseURL             string   `koanf:"database_url" yaml:"database_url"`
	SessionTimeoutMinutes   int      `koanf:"session_timeout_minutes" yaml:"session_timeout_minutes"`
	DirectoryTimeoutSeconds int      `koanf:"directory_timeout_seconds" yaml:"directory_timeout_seconds"`
	PasswordMinLength       int      `koanf:"password_min_length" yaml:"password_min_length"`
	LogFormat               string   `koanf:"log_format" yaml:"log_format"`
	MetricsAddr             string   `koanf:"metrics_addr" yaml:"metrics_addr"`
	AuditSources            []string `koanf:"audit_sources" yaml:"audit_sources"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SessionTimeoutMinutes:   30,
		DirectoryTimeoutSeconds: 5,
		PasswordMinLength:       8,
		LogFormat:               "json",
		MetricsAddr:             "127.0.0.1:9100",
	}
}

// Load resolves the configuration. path may be empty (no file); flags may be
// nil (no flag overrides). Flag names map to config keys by replacing '-'
// with '_', so --session-timeout-minutes overrides session_timeout_minutes.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run with.
func (c Config) Validate() error {
	if c.SessionTimeoutMinutes <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("session_timeout_minutes", c.SessionTimeoutMinutes).
			Errorf("session_timeout_minutes must be positive")
	}
	if c.DirectoryTimeoutSeconds < 0 {
		return oops.Code("CONFIG_INVALID").
			With("directory_timeout_seconds", c.DirectoryTimeoutSeconds).
			Errorf("directory_timeout_seconds cannot be negative")
	}
	if c.PasswordMinLength < 1 {
		return oops.Code("CONFIG_INVALID").
			With("password_min_length", c.PasswordMinLength).
			Errorf("password_min_length must be at least 1")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	return nil
}

// SessionTimeout returns the sliding session window as a duration.
func (c Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// DirectoryTimeout returns the bound on user-directory calls. Zero disables
// the deadline (acceptable only for a single-user desktop deployment).
func (c Config) DirectoryTimeout() time.Duration {
	return time.Duration(c.DirectoryTimeoutSeconds) * time.Second
}
