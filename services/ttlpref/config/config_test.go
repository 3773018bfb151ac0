// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/vocab"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, vocab.SkosPrefLabel, cfg.Labels.Predicate)
	assert.Equal(t, "en", cfg.Labels.Language)
	assert.Equal(t, 2*time.Second, cfg.Resolver.FetchTimeout.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Resolver.CompletionWait.Std())
	assert.Equal(t, []string{"https://w3id.org/emmo*"}, cfg.Enrich.Namespaces)
	assert.Empty(t, cfg.Debug.Addr)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
labels:
  language: de
resolver:
  fetch_timeout: 5s
  completion_wait: 0s
enrich:
  namespaces:
    - "http://purl.org/**"
debug:
  addr: 127.0.0.1:6061
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "de", cfg.Labels.Language)
	assert.Equal(t, vocab.SkosPrefLabel, cfg.Labels.Predicate, "untouched keys keep their default")
	assert.Equal(t, 5*time.Second, cfg.Resolver.FetchTimeout.Std())
	assert.Zero(t, cfg.Resolver.CompletionWait.Std())
	assert.Equal(t, []string{"http://purl.org/**"}, cfg.Enrich.Namespaces)
	assert.Equal(t, "127.0.0.1:6061", cfg.Debug.Addr)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad level", "log:\n  level: chatty\n"},
		{"zero timeout", "resolver:\n  fetch_timeout: 0s\n"},
		{"bad predicate", "labels:\n  predicate: not a url\n"},
		{"bad exporter", "telemetry:\n  trace_exporter: pigeon\n"},
		{"bad addr", "debug:\n  addr: nope\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	_, err := Parse([]byte("resolver:\n  fetch_timeout: soon\n"))
	require.Error(t, err)

	_, err = Parse([]byte("surprise: true\n"))
	require.Error(t, err, "unknown keys are rejected")
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(DefaultConfig().Resolver)
	require.NoError(t, err)
	assert.Contains(t, string(out), "fetch_timeout: 2s")
	assert.Contains(t, string(out), "completion_wait: 500ms")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttlpref.yaml")
	require.NoError(t, os.WriteFile(path, []byte("labels:\n  language: fr\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fr", cfg.Labels.Language)

	t.Setenv(EnvConfigPath, path)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "fr", cfg.Labels.Language)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ttlpref.yaml")
	require.NoError(t, os.WriteFile(path, []byte("labels:\n  language: en\n"), 0o644))

	changes := make(chan Config, 4)
	w := NewWatcher(path, func(c Config) { changes <- c }, slog.New(slog.DiscardHandler))
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: chatty\n"), 0o644))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("labels:\n  language: it\n"), 0o644))

	// A reload may observe the truncated file mid-write; wait for the final
	// content.
	deadline := time.After(2 * time.Second)
	for seen := false; !seen; {
		select {
		case cfg := <-changes:
			seen = cfg.Labels.Language == "it"
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	assert.NoError(t, <-errc)
}
