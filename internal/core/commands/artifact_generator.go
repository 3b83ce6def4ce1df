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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that produces the artifact from the processed media.
//
// Logic Flow:
//  1. Ask the generation gateway for a structured (JSON) summary or quiz of
//     the media behind the handle, in the requested language. Each attempt
//     has its own timeout; transient and rate limited responses are retried
//     with backoff inside the attempt.
//  2. Strip markdown fences, decode and validate the result.
//  3. A result that fails to decode or validate is a MalformedResult. The
//     generation call is repeated once against the same handle; a second
//     malformed result fails the stage.
//  4. ContentBlocked is surfaced as is and never retried.
package commands

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// generationAttempts is the first call plus the single MalformedResult retry.
const generationAttempts = 2

// ArtifactGenerator generates and validates the requested artifact.
type ArtifactGenerator struct {
	cor.BaseCommand
	gateway          gateways.GenerationGateway
	timeout          time.Duration
	runtime          Runtime
	malformedCounter metric.Int64Counter
}

// NewArtifactGenerator is the constructor for the ArtifactGenerator command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - gateway: The generation model.
//   - timeout: Bound on each generation attempt.
//   - runtime: Clock, call slots and retry policy.
//
// Outputs:
//   - *ArtifactGenerator: A pointer to the newly instantiated command.
func NewArtifactGenerator(name string, gateway gateways.GenerationGateway, timeout time.Duration, runtime Runtime) *ArtifactGenerator {
	out := &ArtifactGenerator{BaseCommand: *cor.NewBaseCommand(name), gateway: gateway, timeout: timeout, runtime: runtime}
	out.InputParamName = GetMediaHandleParameterName()
	out.OutputParamName = GetArtifactParameterName()
	out.malformedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.malformed", name))
	return out
}

// GetArtifactParameterName is the context key of the generated *model.Artifact.
func GetArtifactParameterName() string {
	return "__ARTIFACT__"
}

func (g *ArtifactGenerator) State() model.PipelineState {
	return model.StateGenerating
}

func (g *ArtifactGenerator) IsExecutable(chCtx cor.Context) bool {
	return g.BaseCommand.IsExecutable(chCtx) && stageRequest(chCtx) != nil
}

func (g *ArtifactGenerator) Execute(chCtx cor.Context) {
	req := stageRequest(chCtx)
	handle := chCtx.Get(g.GetInputParam()).(model.MediaHandle)
	metadata, _ := chCtx.Get(GetVideoMetadataParameterName()).(model.VideoMetadata)

	genReq := gateways.GenerationRequest{
		Handle:     handle,
		Language:   req.Language,
		Kind:       req.Kind,
		Metadata:   metadata,
		Structured: true,
	}

	for attempt := 1; ; attempt++ {
		artifact, err := g.generate(chCtx.GetContext(), req, genReq)
		if err == nil {
			g.Succeed(chCtx, artifact)
			return
		}
		if model.KindOf(err) != model.KindMalformedResult || attempt >= generationAttempts {
			g.Fail(chCtx, err)
			return
		}
		g.malformedCounter.Add(chCtx.GetContext(), 1)
		g.runtime.logger().Warn("generation result malformed, retrying once",
			"fingerprint", req.Fingerprint.String(), "handle", handle.Name, "error", err)
	}
}

func (g *ArtifactGenerator) generate(parent context.Context, req *model.ArtifactRequest, genReq gateways.GenerationRequest) (*model.Artifact, error) {
	ctx, cancel := withStageTimeout(parent, g.timeout)
	defer cancel()

	out, err := retry(ctx, g.runtime, StageGeneration, retryableGeneration, func(ctx context.Context) gateways.Outcome[string] {
		return g.gateway.Generate(ctx, genReq)
	})
	if err != nil {
		return nil, err
	}

	switch out.Status {
	case gateways.StatusOK:
		return ParseArtifact(req, genReq.Metadata, out.Value, g.runtime.clock().Now())
	case gateways.StatusContentBlocked:
		return nil, model.NewError(model.KindContentBlocked, StageGeneration, out.Cause())
	case gateways.StatusRateLimited, gateways.StatusTransient:
		return nil, outcomeError(ctx, StageGeneration, out)
	default:
		return nil, model.NewError(model.KindFatal, StageGeneration, out.Cause())
	}
}

func retryableGeneration(status gateways.Status) bool {
	return status == gateways.StatusTransient || status == gateways.StatusRateLimited
}
