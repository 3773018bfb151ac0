// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ttlprefls/services/ttlpref"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/index"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/resolver"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDocs struct{}

func (stubDocs) Documents() []ttlpref.DocumentInfo {
	return []ttlpref.DocumentInfo{{
		URI:         "file:///a.ttl",
		Version:     3,
		Indexed:     true,
		Diagnostics: 2,
		Index:       &index.Stats{URIs: 4, Labels: 2, Unlabeled: 2},
	}}
}

func (stubDocs) Stats() ttlpref.Stats {
	return ttlpref.Stats{Documents: 1, Awaiting: []string{"https://w3id.org/emmo#"}}
}

type stubResolver struct{}

func (stubResolver) Stats() resolver.Stats {
	return resolver.Stats{
		Resolved: 1,
		Labels:   10,
		Failed: map[string]resolver.Failure{
			"http://dead.example/": {Reason: resolver.FailureStatus, Error: "status 404"},
		},
		Fetches: 2,
	}
}

func setupTestRouter() *gin.Engine {
	return NewRouter(NewHandlers(stubDocs{}, stubResolver{}), slog.New(slog.DiscardHandler))
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	w := get(t, setupTestRouter(), "/v1/ttlpref/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ttlpref.Version, resp.Version)
	assert.Equal(t, telemetry.InstanceID, resp.InstanceID)
}

func TestHandleDocuments(t *testing.T) {
	w := get(t, setupTestRouter(), "/v1/ttlpref/documents")
	require.Equal(t, http.StatusOK, w.Code)

	var resp DocumentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "file:///a.ttl", resp.Documents[0].URI)
	assert.Equal(t, 2, resp.Documents[0].Index.Unlabeled)
	assert.Equal(t, []string{"https://w3id.org/emmo#"}, resp.Awaiting)
}

func TestHandleResolver(t *testing.T) {
	w := get(t, setupTestRouter(), "/v1/ttlpref/resolver")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Resolved int `json:"resolved"`
		Failed   map[string]struct {
			Reason string `json:"reason"`
		} `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Resolved)
	assert.Equal(t, "status", resp.Failed["http://dead.example/"].Reason)
}

func TestUnknownRoute(t *testing.T) {
	w := get(t, setupTestRouter(), "/v1/ttlpref/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ListenServeShutdown(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", setupTestRouter(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/v1/ttlpref/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errc)
}
