// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/replicactl/pkg/logging"
)

// ClusterConfig is one cluster's connection settings.
type ClusterConfig struct {
	MVIP     string `yaml:"mvip" validate:"required"`
	Username string `yaml:"username" validate:"required"`
	// Password may be empty in the file; an empty password is prompted
	// for on a terminal and never logged.
	Password string `yaml:"password"`
}

// Config is the replicactl.yaml file layout.
type Config struct {
	Source      ClusterConfig `yaml:"source" validate:"required"`
	Destination ClusterConfig `yaml:"destination" validate:"required"`
	Log         LogConfig     `yaml:"log"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Environment overrides, applied after the file is read. They exist so
// passwords can stay out of the YAML file entirely.
const (
	envSrcMVIP     = "REPLICACTL_SRC_MVIP"
	envSrcUsername = "REPLICACTL_SRC_USERNAME"
	envSrcPassword = "REPLICACTL_SRC_PASSWORD"
	envDstMVIP     = "REPLICACTL_DST_MVIP"
	envDstUsername = "REPLICACTL_DST_USERNAME"
	envDstPassword = "REPLICACTL_DST_PASSWORD"
)

// LoadConfig reads, overrides, and validates the configuration. A
// missing file is an error only when no environment override supplies a
// complete pair of clusters.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env-only configuration.
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration is incomplete: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Source.MVIP, envSrcMVIP)
	override(&cfg.Source.Username, envSrcUsername)
	override(&cfg.Source.Password, envSrcPassword)
	override(&cfg.Destination.MVIP, envDstMVIP)
	override(&cfg.Destination.Username, envDstUsername)
	override(&cfg.Destination.Password, envDstPassword)
}

// PromptMissingPasswords fills in empty passwords from the terminal.
// Off a terminal there is nobody to ask, so an empty password is left
// empty and the cluster rejects it.
func PromptMissingPasswords(cfg *Config) error {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil
	}
	prompt := func(dst *string, label string) error {
		if *dst != "" {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Enter password for %s cluster (not logged): ", label)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading %s password: %w", label, err)
		}
		*dst = string(raw)
		return nil
	}
	if err := prompt(&cfg.Source.Password, "source"); err != nil {
		return err
	}
	return prompt(&cfg.Destination.Password, "destination")
}

// newLogger builds the process logger from config.
func newLogger(cfg LogConfig) *logging.Logger {
	level := logging.LevelInfo
	switch cfg.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "replicactl",
		JSON:    cfg.JSON,
	})
}
