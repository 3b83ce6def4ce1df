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
// command that deletes the uploaded media once an execution is over.
//
// Logic Flow:
// Uploaded media is private to the caller's request and counts against the
// media service's storage quota, so every handle an execution obtained is
// deleted whether the execution succeeded, failed, timed out or was
// cancelled.
//
//  1. The command only runs when the context holds a handle and no delete
//     was attempted for it yet, so each execution deletes at most once.
//  2. The delete runs on a Go context detached from the execution's
//     deadline and cancellation, bounded by the command's own timeout.
//  3. Transient failures are retried with backoff as part of the single
//     attempt. Ignorable (already gone) counts as done.
//  4. A failure is logged and counted but never recorded as an execution
//     error, so it cannot change what callers receive.
package commands

import (
	"context"
	"time"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// MediaCleanup deletes the execution's uploaded media.
type MediaCleanup struct {
	cor.BaseCommand
	gateway gateways.MediaGateway
	timeout time.Duration
	runtime Runtime
}

// NewMediaCleanup is the constructor for the MediaCleanup command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - gateway: The media service that issued the handle.
//   - timeout: Bound on the delete, retries included.
//   - runtime: Clock, call slots and retry policy.
//
// Outputs:
//   - *MediaCleanup: A pointer to the newly instantiated command.
func NewMediaCleanup(name string, gateway gateways.MediaGateway, timeout time.Duration, runtime Runtime) *MediaCleanup {
	out := &MediaCleanup{BaseCommand: *cor.NewBaseCommand(name), gateway: gateway, timeout: timeout, runtime: runtime}
	out.InputParamName = GetMediaHandleParameterName()
	out.OutputParamName = GetCleanupAttemptedParameterName()
	return out
}

// GetCleanupAttemptedParameterName is the context key set once the delete
// of the handle has been attempted.
func GetCleanupAttemptedParameterName() string {
	return "__CLEANUP_ATTEMPTED__"
}

func (v *MediaCleanup) State() model.PipelineState {
	return model.StateCleaningUp
}

// IsExecutable requires an uploaded handle that was not cleaned up yet.
func (v *MediaCleanup) IsExecutable(chCtx cor.Context) bool {
	if chCtx == nil || chCtx.GetContext() == nil {
		return false
	}
	if _, ok := chCtx.Get(v.GetInputParam()).(model.MediaHandle); !ok {
		return false
	}
	return chCtx.Get(v.GetOutputParam()) == nil
}

func (v *MediaCleanup) Execute(chCtx cor.Context) {
	handle := chCtx.Get(v.GetInputParam()).(model.MediaHandle)
	chCtx.Add(v.GetOutputParam(), true)

	ctx, cancel := withStageTimeout(context.WithoutCancel(chCtx.GetContext()), v.timeout)
	defer cancel()

	out, err := retry(ctx, v.runtime, StageCleanup, transientOnly, func(ctx context.Context) gateways.Outcome[gateways.Unit] {
		return v.gateway.Delete(ctx, handle)
	})
	if err == nil {
		switch out.Status {
		case gateways.StatusOK, gateways.StatusIgnorable:
			v.SuccessCounter.Add(ctx, 1)
			v.runtime.logger().Info("media deleted", "handle", handle.Name, "status", out.Status.String())
			return
		default:
			err = outcomeError(ctx, StageCleanup, out)
		}
	}

	v.ErrorCounter.Add(ctx, 1)
	v.runtime.logger().Error("media cleanup failed", "handle", handle.Name, "error", err)
}
