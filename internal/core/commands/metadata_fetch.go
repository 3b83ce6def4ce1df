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
// first stage of the artifact pipeline.
//
// Logic Flow:
//  1. Read the ArtifactRequest from the context.
//  2. Fetch the video's metadata under the stage timeout, retrying transient
//     failures.
//  3. Store the metadata for the upload and generation stages.
package commands

import (
	"context"
	"time"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// MetadataFetch looks up the title, channel and duration of the requested
// video.
type MetadataFetch struct {
	cor.BaseCommand
	gateway gateways.MetadataGateway
	timeout time.Duration
	runtime Runtime
}

// NewMetadataFetch is the constructor for the MetadataFetch command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - gateway: The metadata source.
//   - timeout: Bound on the whole stage, retries included.
//   - runtime: Clock, call slots and retry policy.
func NewMetadataFetch(name string, gateway gateways.MetadataGateway, timeout time.Duration, runtime Runtime) *MetadataFetch {
	out := &MetadataFetch{BaseCommand: *cor.NewBaseCommand(name), gateway: gateway, timeout: timeout, runtime: runtime}
	out.InputParamName = GetArtifactRequestParameterName()
	out.OutputParamName = GetVideoMetadataParameterName()
	return out
}

// GetVideoMetadataParameterName is the context key of the model.VideoMetadata.
func GetVideoMetadataParameterName() string {
	return "__VIDEO_METADATA__"
}

func (m *MetadataFetch) State() model.PipelineState {
	return model.StateMetadataFetching
}

func (m *MetadataFetch) Execute(chCtx cor.Context) {
	req := stageRequest(chCtx)

	ctx, cancel := withStageTimeout(chCtx.GetContext(), m.timeout)
	defer cancel()

	out, err := retry(ctx, m.runtime, StageMetadata, transientOnly, func(ctx context.Context) gateways.Outcome[model.VideoMetadata] {
		return m.gateway.Fetch(ctx, req.VideoID)
	})
	if err != nil {
		m.Fail(chCtx, err)
		return
	}

	switch out.Status {
	case gateways.StatusOK:
		m.Succeed(chCtx, out.Value)
	case gateways.StatusNotFound, gateways.StatusTransient:
		m.Fail(chCtx, outcomeError(ctx, StageMetadata, out))
	default:
		m.Fail(chCtx, model.NewError(model.KindFatal, StageMetadata, out.Cause()))
	}
}

// withStageTimeout bounds a stage; a non-positive timeout leaves only the
// parent's deadline.
func withStageTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
