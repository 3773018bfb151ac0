// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ttlprefls is a language server for Turtle documents that shows
// skos:prefLabel values as hovers, inlay hints and completions.
//
// Usage:
//
//	ttlprefls                      # serve LSP on stdin/stdout
//	ttlprefls --config ttlpref.yaml --debug-addr 127.0.0.1:6061
//	ttlprefls index onto.ttl       # print index statistics
//	ttlprefls resolve https://w3id.org/emmo#
//
// Configuration is read from --config, else $TTLPREF_CONFIG. A .env file in
// the working directory is loaded first when present.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ttlprefls/services/ttlpref"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/config"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/telemetry"
)

// --- Global flags and state ---
var (
	configPath string
	logLevel   string
	debugAddr  string

	cfg    config.Config
	logger *slog.Logger

	// exitCode is set by the serve command per the LSP exit rules.
	exitCode int
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ttlprefls",
		Short:         "Turtle language server with skos:prefLabel hovers, hints and completion",
		Version:       ttlpref.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		RunE: runServe,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to the YAML config file (default $"+config.EnvConfigPath+")")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.Flags().StringVar(&debugAddr, "debug-addr", "", "serve the admin HTTP API on this address (overrides config)")

	root.AddCommand(newIndexCmd(), newResolveCmd())
	return root
}

// setup loads .env and the configuration and builds the logger.
func setup() error {
	// A missing .env file is normal.
	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv(config.EnvConfigPath)
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if debugAddr != "" {
		cfg.Debug.Addr = debugAddr
	}

	level, err := telemetry.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger = telemetry.NewLogger(level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ttlprefls:", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
