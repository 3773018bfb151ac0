// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the language server configuration.
//
// Configuration is a YAML file validated with go-playground/validator.
// Every field has a default, so a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/telemetry"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

// EnvConfigPath names the environment variable consulted when no path is
// given explicitly.
const EnvConfigPath = "TTLPREF_CONFIG"

// Config is the full server configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Labels    LabelsConfig     `yaml:"labels"`
	Resolver  ResolverConfig   `yaml:"resolver"`
	Enrich    EnrichConfig     `yaml:"enrich"`
	Debug     DebugConfig      `yaml:"debug"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" validate:"oneof=auto text json"`
}

// LabelsConfig chooses which literal becomes a resource's display label.
type LabelsConfig struct {
	// Predicate is the label predicate IRI.
	Predicate string `yaml:"predicate" validate:"required,url"`

	// Language is the preferred language tag. Empty prefers untagged
	// literals.
	Language string `yaml:"language" validate:"omitempty,bcp47_language_tag"`
}

// ResolverConfig tunes remote namespace fetching.
type ResolverConfig struct {
	FetchTimeout   Duration `yaml:"fetch_timeout" validate:"gt=0"`
	CompletionWait Duration `yaml:"completion_wait" validate:"gte=0"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" validate:"gt=0"`
	RateLimit      float64  `yaml:"rate_limit" validate:"gte=0"`
	RateBurst      int      `yaml:"rate_burst" validate:"gte=0"`
	UserAgent      string   `yaml:"user_agent" validate:"required"`
}

// EnrichConfig is the allow-list of namespaces that may be fetched.
type EnrichConfig struct {
	// Namespaces are doublestar glob patterns matched against namespace
	// IRIs. Empty disables enrichment.
	Namespaces []string `yaml:"namespaces" validate:"dive,required"`
}

// DebugConfig controls the admin HTTP server.
type DebugConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:6061". Empty disables it.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Duration is a time.Duration that reads and writes as "500ms".
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: telemetry.FormatAuto},
		Labels: LabelsConfig{
			Predicate: vocab.SkosPrefLabel,
			Language:  "en",
		},
		Resolver: ResolverConfig{
			FetchTimeout:   Duration(2 * time.Second),
			CompletionWait: Duration(500 * time.Millisecond),
			MaxBodyBytes:   8 << 20,
			RateLimit:      4,
			RateBurst:      4,
			UserAgent:      "ttl-pref-ls",
		},
		Enrich: EnrichConfig{
			Namespaces: []string{"https://w3id.org/emmo*"},
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Fields, "; ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field of c.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return ve
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(data))) > 0 {
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the file at path. An empty path falls back to $TTLPREF_CONFIG;
// when neither is set the defaults are returned.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		cfg := DefaultConfig()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}
