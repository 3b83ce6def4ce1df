// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point of the artifact server.
//
// The server exposes the artifact API over HTTP with gin, instrumented with
// OpenTelemetry. It turns a video id, a language and an artifact kind into a
// summary or a quiz by driving the media pipeline (YouTube metadata, Gemini
// Files upload, processing poll, Gemini generation, cleanup), serving
// repeats from an in-memory cache.
//
// Background work started here: the cache janitor, the pruning of idle
// caller rate windows, and the Pub/Sub prefetch listener when a prefetch
// subscription is configured. On SIGINT/SIGTERM the HTTP server stops
// accepting requests, the background loops stop, and running executions are
// given the shutdown grace period to finish and clean up their media.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Akash-916024/ai-note-taker/internal/api"
	"github.com/Akash-916024/ai-note-taker/internal/telemetry"
)

func main() {
	config, err := GetConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := telemetry.SetupLogging(config); err != nil {
		log.Fatal(err)
	}
	slog.Info("Logging initialized", "level", config.Application.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		os.Exit(1)
	}

	if err := InitState(ctx, config); err != nil {
		slog.Error("Failed to initialize state", "error", err)
		os.Exit(1)
	}
	defer state.cloud.Close()
	slog.Info("Initialized State")

	maintenance := state.artifacts.StartMaintenance(ctx, config.Cache.JanitorInterval, config.Admission.PruneInterval)
	listeners := SetupListeners(ctx, state.cloud, state.artifacts)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:        config.Application.HTTPAddress,
		Handler:     api.NewEngine(config.Application.Name, state.artifacts),
		ReadTimeout: 20 * time.Second,
		// Artifact requests wait for a whole pipeline execution.
		WriteTimeout: config.Pipeline.OverallDeadline + 10*time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			cancel()
		}
	}()
	slog.Info("Server ready", "address", config.Application.HTTPAddress)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Application.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	cancel()
	<-maintenance
	for _, listener := range listeners {
		select {
		case <-listener.Done():
		case <-shutdownCtx.Done():
		}
	}
	if err := state.artifacts.Shutdown(shutdownCtx); err != nil {
		slog.Warn("executions still running at exit", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
	slog.Info("Server exiting")
}
