// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package services contains the business logic exposed to the outer layers
// (HTTP handlers, the CLI, Pub/Sub listeners). This file, `artifacts.go`,
// defines the ArtifactService, the consumer-facing entry point that turns a
// (video, language, kind) request into a summary or quiz artifact.
//
// Logic Flow of Request:
//  1. The request is fingerprinted. Bad input fails before any external call.
//  2. The result cache is consulted. A hit is returned at once and does not
//     count against the caller's rate.
//  3. The caller's rolling rate window is checked by the admission
//     controller. The slot is reserved, not yet spent.
//  4. The coordinator joins the running execution for the fingerprint or
//     starts one. The reservation is committed when the submission is
//     accepted and refunded otherwise.
package services

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
	"github.com/Akash-916024/ai-note-taker/internal/core/admission"
	"github.com/Akash-916024/ai-note-taker/internal/core/cache"
	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/commands"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/pipeline"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
)

// AnonymousCaller is the admission identity of requests that name no caller.
const AnonymousCaller = "anonymous"

// ArtifactService is a struct that encapsulates the components needed to
// serve artifact requests. Every field is required.
type ArtifactService struct {
	Fingerprints *model.FingerprintBuilder // Validates and fingerprints requests.
	Cache        *cache.ResultCache        // Holds recent artifacts.
	Admission    *admission.Controller     // Per-caller rate and concurrency ceilings.
	Coordinator  *pipeline.Coordinator     // Single-flight execution registry.
	Logger       *slog.Logger

	tracer trace.Tracer
}

// Stats is the operational snapshot served by the stats endpoint.
type Stats struct {
	Cache            cache.Stats     `json:"cache"`
	Admission        admission.Stats `json:"admission"`
	ActiveExecutions int             `json:"active_executions"`
}

// ServiceOption tunes NewArtifactService.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock  clock.Clock
	logger *slog.Logger
}

// WithClock drives the cache, admission windows and stage waits from clk.
func WithClock(clk clock.Clock) ServiceOption {
	return func(o *serviceOptions) { o.clock = clk }
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// NewArtifactService assembles the service and the components behind it from
// the configuration.
//
// Inputs:
//   - config: The application configuration.
//   - gw: The metadata, media and generation gateways.
//   - opts: Optional clock and logger.
//
// Outputs:
//   - *ArtifactService: The ready to use service.
func NewArtifactService(config *cloud.Config, gw workflow.Gateways, opts ...ServiceOption) *ArtifactService {
	o := serviceOptions{clock: clock.Real{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	resultCache := cache.New(config.Cache.Capacity, config.Cache.TTL, cache.WithClock(o.clock))
	controller := admission.NewController(admission.Config{
		MaxPipelines:   config.Admission.MaxPipelines,
		MaxCalls:       config.Admission.MaxCalls,
		PerCallerLimit: config.Admission.PerCallerLimit,
		Window:         config.Admission.Window,
	}, admission.WithClock(o.clock))

	runner := workflow.NewArtifactWorkflow(gw, workflow.NewSettings(config), commands.Runtime{
		Clock:  o.clock,
		Calls:  controller,
		Logger: o.logger,
	})
	coordinator := pipeline.NewCoordinator(runner, resultCache, controller, pipeline.Config{
		Deadline: config.Pipeline.OverallDeadline,
		CacheTTL: config.Cache.TTL,
	}, pipeline.WithClock(o.clock), pipeline.WithLogger(o.logger))

	return &ArtifactService{
		Fingerprints: model.NewFingerprintBuilder(model.NewLanguageSet(config.Languages.Supported...)),
		Cache:        resultCache,
		Admission:    controller,
		Coordinator:  coordinator,
		Logger:       o.logger,
	}
}

func (s *ArtifactService) getTracer() trace.Tracer {
	if s.tracer == nil {
		s.tracer = otel.Tracer("artifact-service")
	}
	return s.tracer
}

// Request returns the artifact for (videoID, language, kind), generating it
// if it is not cached.
//
// Inputs:
//   - ctx: The context of the caller. When it ends the caller withdraws from
//     the execution it waits on.
//   - callerID: The admission identity; AnonymousCaller when empty.
//   - videoID, language, kind: The logical request.
//
// Outputs:
//   - *model.Artifact: The validated artifact.
//   - error: A *model.Error carrying one of the taxonomy's kinds.
func (s *ArtifactService) Request(ctx context.Context, callerID string, videoID string, language string, kind model.Kind) (*model.Artifact, error) {
	ctx, span := s.getTracer().Start(ctx, "artifact-request")
	defer span.End()

	artifact, err := s.request(ctx, callerID, videoID, language, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(model.KindOf(err)))
		return nil, err
	}
	span.SetStatus(codes.Ok, "artifact served")
	return artifact, nil
}

func (s *ArtifactService) request(ctx context.Context, callerID string, videoID string, language string, kind model.Kind) (*model.Artifact, error) {
	fp, err := s.Fingerprints.Build(videoID, language, kind)
	if err != nil {
		return nil, err
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("fingerprint", fp.String()),
		attribute.String("video_id", fp.VideoID()),
		attribute.String("kind", string(fp.Kind())),
	)

	if artifact, ok := s.Cache.Get(fp); ok {
		span.AddEvent("cache hit")
		return artifact, nil
	}

	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		callerID = AnonymousCaller
	}
	reservation, err := s.Admission.AdmitCaller(callerID)
	if err != nil {
		s.Logger.Info("caller rate limited", "caller_id", callerID, "fingerprint", fp.String())
		return nil, err
	}
	return s.Coordinator.Submit(ctx, fp, model.NewArtifactRequest(fp), reservation)
}

// Invalidate drops the cached artifact for the request, reporting whether
// one was cached.
func (s *ArtifactService) Invalidate(videoID string, language string, kind model.Kind) (bool, error) {
	fp, err := s.Fingerprints.Build(videoID, language, kind)
	if err != nil {
		return false, err
	}
	removed := s.Cache.Invalidate(fp)
	if removed {
		s.Logger.Info("cached artifact invalidated", "fingerprint", fp.String())
	}
	return removed, nil
}

// Executions returns the running pipeline executions.
func (s *ArtifactService) Executions() []pipeline.ExecutionSnapshot {
	return s.Coordinator.Active()
}

// Stats returns the cache, admission and execution counters.
func (s *ArtifactService) Stats() Stats {
	return Stats{
		Cache:            s.Cache.Stats(),
		Admission:        s.Admission.Stats(),
		ActiveExecutions: len(s.Coordinator.Active()),
	}
}
