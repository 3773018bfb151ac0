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
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ttlprefls/services/ttlpref/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	configPath, logLevel, debugAddr = "", "", ""

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onto.ttl")
	require.NoError(t, os.WriteFile(path, []byte(`@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix ex: <http://example.org/onto#> .
ex:Foo skos:prefLabel "Foo"@en .
ex:Bar skos:related ex:Foo .
`), 0o644))

	out, err := execute(t, "index", path)
	require.NoError(t, err)

	assert.Contains(t, out, "2 resources, 1 labeled, 1 unlabeled, 2 prefixes")
	assert.Contains(t, out, "4:1\tex:Bar")
}

func TestIndexCommand_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ttl")
	require.NoError(t, os.WriteFile(path, []byte("<http://a> <http://b>"), 0o644))

	_, err := execute(t, "index", path)
	assert.Error(t, err)
}

func TestResolveCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(`@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
<` + "http://" + r.Host + `/ns#B> skos:prefLabel "Bee"@en .
<` + "http://" + r.Host + `/ns#A> skos:prefLabel "Ay"@en .
`))
	}))
	defer srv.Close()

	out, err := execute(t, "resolve", srv.URL+"/ns#")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, srv.URL+"/ns#A\tAy", lines[0])
	assert.Equal(t, srv.URL+"/ns#B\tBee", lines[1])
}

func TestSetup_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttlpref.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: chatty\n"), 0o644))

	_, err := execute(t, "--config", path, "index", path)
	var ve *config.ValidationError
	assert.ErrorAs(t, err, &ve)
}
