// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package admin serves a small read-only HTTP surface for inspecting a
// running language server.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/ttlprefls/services/ttlpref"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/resolver"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/telemetry"
)

// DocumentSource reports open documents.
type DocumentSource interface {
	Documents() []ttlpref.DocumentInfo
	Stats() ttlpref.Stats
}

// ResolverSource reports resolver state.
type ResolverSource interface {
	Stats() resolver.Stats
}

// HealthResponse is the body of GET /v1/ttlpref/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	InstanceID string `json:"instance_id"`
	Uptime     string `json:"uptime"`
}

// DocumentsResponse is the body of GET /v1/ttlpref/documents.
type DocumentsResponse struct {
	Documents []ttlpref.DocumentInfo `json:"documents"`
	Awaiting  []string               `json:"awaiting"`
}

// Handlers serves the admin routes.
type Handlers struct {
	docs     DocumentSource
	resolver ResolverSource
	started  time.Time
}

// NewHandlers creates Handlers.
func NewHandlers(docs DocumentSource, res ResolverSource) *Handlers {
	return &Handlers{docs: docs, resolver: res, started: time.Now()}
}

// RegisterRoutes registers the admin routes.
//
// Endpoints:
//
//	GET /v1/ttlpref/health - Liveness, version and instance id
//	GET /v1/ttlpref/documents - Open documents and their index stats
//	GET /v1/ttlpref/resolver - Resolver cache, in-flight and failed namespaces
//	GET /metrics - Prometheus scrape, when the exporter is enabled
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	v1 := router.Group("/v1/ttlpref")
	v1.GET("/health", h.HandleHealth)
	v1.GET("/documents", h.HandleDocuments)
	v1.GET("/resolver", h.HandleResolver)

	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}
}

// HandleHealth handles GET /v1/ttlpref/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    ttlpref.Version,
		InstanceID: telemetry.InstanceID,
		Uptime:     time.Since(h.started).Truncate(time.Second).String(),
	})
}

// HandleDocuments handles GET /v1/ttlpref/documents.
func (h *Handlers) HandleDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, DocumentsResponse{
		Documents: h.docs.Documents(),
		Awaiting:  h.docs.Stats().Awaiting,
	})
}

// HandleResolver handles GET /v1/ttlpref/resolver.
func (h *Handlers) HandleResolver(c *gin.Context) {
	c.JSON(http.StatusOK, h.resolver.Stats())
}

// NewRouter builds a gin engine with recovery, tracing and request logging.
func NewRouter(h *Handlers, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("ttl-pref-ls-admin"), requestLogger(logger))
	RegisterRoutes(router, h)
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("admin request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// Server runs the admin router on its own listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// Listen binds addr. Use "127.0.0.1:0" for an ephemeral port.
func Listen(addr string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	s.logger.Info("admin server listening", slog.String("addr", s.Addr()))
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
