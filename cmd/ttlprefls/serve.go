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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ttlprefls/services/ttlpref"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/admin"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/config"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/lsp"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/resolver"
	"github.com/AleutianAI/ttlprefls/services/ttlpref/telemetry"
)

const shutdownTimeout = 5 * time.Second

// newResolver builds the namespace resolver from cfg.
func newResolver(cfg config.Config, logger *slog.Logger) *resolver.Resolver {
	fetcher := resolver.NewHTTPFetcher(cfg.Resolver.FetchTimeout.Std(),
		resolver.WithUserAgent(cfg.Resolver.UserAgent+"/"+ttlpref.Version),
		resolver.WithMaxBodyBytes(cfg.Resolver.MaxBodyBytes),
	)
	return resolver.New(fetcher,
		resolver.WithLabelPredicate(cfg.Labels.Predicate),
		resolver.WithLanguage(cfg.Labels.Language),
		resolver.WithFetchTimeout(cfg.Resolver.FetchTimeout.Std()),
		resolver.WithRateLimit(cfg.Resolver.RateLimit, cfg.Resolver.RateBurst),
		resolver.WithLogger(logger),
	)
}

// runServe speaks LSP on stdin/stdout until the client exits.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, os.Stderr)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	policy, err := ttlpref.NewGlobPolicy(cfg.Enrich.Namespaces)
	if err != nil {
		return err
	}
	res := newResolver(cfg, logger)

	srv := lsp.NewServer(lsp.NewProtocol(os.Stdin, os.Stdout), lsp.WithLogger(logger))
	notifier := ttlpref.NewLSPNotifier(srv)
	svc := ttlpref.NewService(res, notifier,
		ttlpref.WithEnrichPolicy(policy),
		ttlpref.WithCompletionWait(cfg.Resolver.CompletionWait.Std()),
		ttlpref.WithLabels(cfg.Labels.Predicate, cfg.Labels.Language),
		ttlpref.WithLogger(logger),
	)
	ttlpref.RegisterHandlers(srv, svc, notifier, logger)

	if configPath != "" {
		w := config.NewWatcher(configPath, func(c config.Config) {
			p, err := ttlpref.NewGlobPolicy(c.Enrich.Namespaces)
			if err != nil {
				logger.Warn("keeping previous enrich policy", slog.String("error", err.Error()))
				return
			}
			svc.SetEnrichPolicy(p)
		}, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("config watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	if cfg.Debug.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		adminSrv, err := admin.Listen(cfg.Debug.Addr, admin.NewRouter(admin.NewHandlers(svc, res), logger), logger)
		if err != nil {
			return err
		}
		go func() {
			if err := adminSrv.Serve(); err != nil {
				logger.Error("admin server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = adminSrv.Shutdown(sctx)
		}()
	}

	// Unblock the read loop on a signal.
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	logger.Info("serving LSP on stdio",
		slog.String("version", ttlpref.Version),
		slog.Any("enrich", policy.Patterns()),
	)
	serveErr := srv.Serve(ctx)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(sctx); err != nil {
		logger.Warn("service shutdown timed out", slog.String("error", err.Error()))
	}

	exitCode = srv.ExitCode()
	if serveErr != nil && ctx.Err() == nil {
		return serveErr
	}
	return nil
}
