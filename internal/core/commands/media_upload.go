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
// command that submits the video to the media service.
//
// Logic Flow:
// The generation model can only work on media that was uploaded to its file
// service. The upload yields a handle that is owned by this execution alone
// and must be deleted once the execution is over.
//
//  1. Read the request and the metadata fetched by the previous stage. The
//     ISO-8601 duration from the metadata sizes the upload timeout.
//  2. Upload under that timeout, retrying transient failures.
//  3. On success store the handle. From this point the cleanup command will
//     run no matter how the remaining stages end.
//  4. A rejected upload is not retryable and fails the execution as Fatal.
package commands

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// UploadTimeout sizes the upload stage timeout from the media duration.
type UploadTimeout struct {
	Base           time.Duration // Fixed allowance for every upload.
	PerMediaMinute time.Duration // Added per minute of media.
	Max            time.Duration // Hard cap, ignored when zero.
}

// For returns the timeout for media of the given duration.
func (u UploadTimeout) For(duration time.Duration) time.Duration {
	extra := duration.Minutes() * float64(u.PerMediaMinute)
	if u.Max > 0 && (extra >= float64(u.Max) || u.Base+time.Duration(extra) > u.Max) {
		return u.Max
	}
	switch {
	case extra < 0:
		return u.Base
	case extra >= float64(math.MaxInt64-u.Base):
		return math.MaxInt64
	}
	return u.Base + time.Duration(extra)
}

// MediaUpload uploads the requested video and stores the resulting handle.
type MediaUpload struct {
	cor.BaseCommand
	gateway gateways.MediaGateway
	timeout UploadTimeout
	runtime Runtime
}

// NewMediaUpload is the constructor for the MediaUpload command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - gateway: The media service.
//   - timeout: Sizing of the stage timeout.
//   - runtime: Clock, call slots and retry policy.
//
// Outputs:
//   - *MediaUpload: A pointer to the newly instantiated command.
func NewMediaUpload(name string, gateway gateways.MediaGateway, timeout UploadTimeout, runtime Runtime) *MediaUpload {
	out := &MediaUpload{BaseCommand: *cor.NewBaseCommand(name), gateway: gateway, timeout: timeout, runtime: runtime}
	out.InputParamName = GetVideoMetadataParameterName()
	out.OutputParamName = GetMediaHandleParameterName()
	return out
}

// GetMediaHandleParameterName is the context key of the model.MediaHandle
// issued by the upload.
func GetMediaHandleParameterName() string {
	return "__MEDIA_HANDLE__"
}

func (v *MediaUpload) State() model.PipelineState {
	return model.StateMediaUploading
}

func (v *MediaUpload) IsExecutable(chCtx cor.Context) bool {
	return v.BaseCommand.IsExecutable(chCtx) && stageRequest(chCtx) != nil
}

func (v *MediaUpload) Execute(chCtx cor.Context) {
	req := stageRequest(chCtx)
	metadata, _ := chCtx.Get(v.GetInputParam()).(model.VideoMetadata)

	ref := model.VideoReference{VideoID: req.VideoID}
	if metadata.Duration != "" {
		duration, err := model.ParseISODuration(metadata.Duration)
		if err != nil {
			v.runtime.logger().Warn("ignoring unparseable media duration", "video_id", req.VideoID, "duration", metadata.Duration, "error", err)
		} else {
			ref.Duration = duration
		}
	}

	timeout := v.timeout.For(ref.Duration)
	ctx, cancel := withStageTimeout(chCtx.GetContext(), timeout)
	defer cancel()

	out, err := retry(ctx, v.runtime, StageUpload, transientOnly, func(ctx context.Context) gateways.Outcome[model.MediaHandle] {
		return v.gateway.Upload(ctx, ref)
	})
	if err != nil {
		v.Fail(chCtx, err)
		return
	}

	switch out.Status {
	case gateways.StatusOK:
		v.runtime.logger().Info("media uploaded", "video_id", req.VideoID, "handle", out.Value.Name, "timeout", timeout)
		v.Succeed(chCtx, out.Value)
	case gateways.StatusRejected:
		v.Fail(chCtx, model.NewError(model.KindFatal, StageUpload, fmt.Errorf("upload rejected: %w", out.Cause())))
	case gateways.StatusTransient:
		v.Fail(chCtx, outcomeError(ctx, StageUpload, out))
	default:
		v.Fail(chCtx, model.NewError(model.KindFatal, StageUpload, out.Cause()))
	}
}
