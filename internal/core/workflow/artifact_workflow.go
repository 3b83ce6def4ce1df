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

// Package workflow defines the high-level business logic orchestrations,
// combining various commands into coherent pipelines. This file implements the
// artifact workflow: one execution turns a video id, a language and an
// artifact kind into a validated summary or quiz.
//
// The workflow is split in two so the caller can put its own bookkeeping
// between them:
//   - RunStages runs metadata fetch, media upload, processing poll and
//     generation as a cor.Chain. The chain stops at the first error or when
//     the execution context is aborted.
//   - Cleanup deletes uploaded media. It is not part of the chain because it
//     must also run after a failure, an abort or an expired deadline.
package workflow

import (
	"context"
	"time"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
	"github.com/Akash-916024/ai-note-taker/internal/core/commands"
	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// Settings holds the per-stage timing of an execution.
type Settings struct {
	MetadataTimeout   time.Duration
	Upload            commands.UploadTimeout
	Poll              commands.PollPolicy
	GenerationTimeout time.Duration
	CleanupTimeout    time.Duration
	Retry             commands.RetryPolicy
}

// DefaultSettings returns the documented stage defaults.
func DefaultSettings() Settings {
	return NewSettings(cloud.NewConfig())
}

// NewSettings reads the stage timing from the configuration.
func NewSettings(config *cloud.Config) Settings {
	p := config.Pipeline
	return Settings{
		MetadataTimeout: p.MetadataTimeout,
		Upload: commands.UploadTimeout{
			Base:           p.UploadBaseTimeout,
			PerMediaMinute: p.UploadPerMinute,
			Max:            p.UploadMaxTimeout,
		},
		Poll: commands.PollPolicy{
			InitialInterval: p.PollInitialInterval,
			MaxInterval:     p.PollMaxInterval,
			Multiplier:      p.PollMultiplier,
			Deadline:        p.PollDeadline,
		},
		GenerationTimeout: p.GenerationTimeout,
		CleanupTimeout:    p.CleanupTimeout,
		Retry: commands.RetryPolicy{
			MaxAttempts:     p.RetryAttempts,
			InitialInterval: p.RetryInitialInterval,
			MaxInterval:     p.RetryMaxInterval,
			Multiplier:      p.RetryMultiplier,
		},
	}
}

// Gateways bundles the external services an execution talks to.
type Gateways struct {
	Metadata   gateways.MetadataGateway
	Media      gateways.MediaGateway
	Generation gateways.GenerationGateway
}

// ArtifactWorkflow assembles the pipeline stage commands.
type ArtifactWorkflow struct {
	cor.BaseCommand
	chain   cor.Chain
	stages  []commands.Stage
	cleanup *commands.MediaCleanup
}

// NewArtifactWorkflow builds the stage chain. The runtime's retry policy is
// replaced by the one in settings.
func NewArtifactWorkflow(gw Gateways, settings Settings, runtime commands.Runtime) *ArtifactWorkflow {
	runtime.Retry = settings.Retry
	w := &ArtifactWorkflow{
		BaseCommand: *cor.NewBaseCommand("artifact-workflow"),
		stages: []commands.Stage{
			commands.NewMetadataFetch("fetch-video-metadata", gw.Metadata, settings.MetadataTimeout, runtime),
			commands.NewMediaUpload("upload-media", gw.Media, settings.Upload, runtime),
			commands.NewMediaProcessingPoll("poll-media-processing", gw.Media, settings.Poll, runtime),
			commands.NewArtifactGenerator("generate-artifact", gw.Generation, settings.GenerationTimeout, runtime),
		},
		cleanup: commands.NewMediaCleanup("cleanup-media", gw.Media, settings.CleanupTimeout, runtime),
	}
	w.InputParamName = commands.GetArtifactRequestParameterName()
	w.OutputParamName = commands.GetArtifactParameterName()

	chain := cor.NewBaseChain("artifact-stages")
	for _, stage := range w.stages {
		chain.AddCommand(stage)
	}
	w.chain = chain
	return w
}

// Stages returns the chained stages in execution order.
func (w *ArtifactWorkflow) Stages() []commands.Stage {
	return w.stages
}

// CleanupStage returns the cleanup command.
func (w *ArtifactWorkflow) CleanupStage() commands.Stage {
	return w.cleanup
}

// Execute runs the stages and then the cleanup.
func (w *ArtifactWorkflow) Execute(chCtx cor.Context) {
	w.RunStages(chCtx)
	w.Cleanup(chCtx)
}

// RunStages runs every stage up to generation.
func (w *ArtifactWorkflow) RunStages(chCtx cor.Context) {
	w.chain.Execute(chCtx)
}

// Cleanup deletes the uploaded media, if any. It runs at most once per
// context, whatever happened to the stages.
func (w *ArtifactWorkflow) Cleanup(chCtx cor.Context) {
	if !w.cleanup.IsExecutable(chCtx) {
		return
	}
	chCtx.Notify(w.cleanup)
	w.cleanup.Execute(chCtx)
}

// NewExecutionContext creates the chain context of one execution of req.
func NewExecutionContext(ctx context.Context, req *model.ArtifactRequest) cor.Context {
	chCtx := cor.NewBaseContextWith(ctx)
	chCtx.Add(commands.GetArtifactRequestParameterName(), req)
	return chCtx
}

// ArtifactFrom returns the artifact an execution produced, or nil.
func ArtifactFrom(chCtx cor.Context) *model.Artifact {
	artifact, _ := chCtx.Get(commands.GetArtifactParameterName()).(*model.Artifact)
	return artifact
}

// HandleFrom returns the media uploaded by an execution.
func HandleFrom(chCtx cor.Context) (model.MediaHandle, bool) {
	handle, ok := chCtx.Get(commands.GetMediaHandleParameterName()).(model.MediaHandle)
	return handle, ok
}
