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
// Responsibility (COR) pattern's Command interface. This file holds what the
// pipeline stage commands share: the context keys they exchange values
// through, the Runtime (clock, external call slots and retry policy) and the
// stage-local retry loop.
//
// Logic Flow of a stage call:
//  1. A call slot is leased from the admission controller, waiting
//     cooperatively if all slots are busy. The slot is released when the
//     call returns.
//  2. The gateway is called and returns a tagged Outcome.
//  3. If the outcome status is retryable for the stage and attempts remain,
//     the stage suspends on the clock for the next backoff interval and
//     calls again.
//  4. The final outcome is translated into a classified *model.Error.
package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Akash-916024/ai-note-taker/internal/core/admission"
	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// Stage names used in classified errors.
const (
	StageMetadata   = "metadata"
	StageUpload     = "upload"
	StageProcessing = "processing"
	StageGeneration = "generation"
	StageCleanup    = "cleanup"
)

// Stage is a pipeline command that moves its execution into a state when it
// starts.
type Stage interface {
	cor.Command
	State() model.PipelineState
}

// GetArtifactRequestParameterName is the context key of the *model.ArtifactRequest
// that every pipeline command reads.
func GetArtifactRequestParameterName() string {
	return "__ARTIFACT_REQUEST__"
}

// CallAdmitter leases external call slots.
type CallAdmitter interface {
	Acquire(ctx context.Context, kind admission.TokenKind) (*admission.Token, error)
}

// RetryPolicy bounds stage-local retries of transient failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy is three attempts, 200ms apart and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// NewBackOff returns a fresh, jitter-free schedule for the policy so the
// waits are reproducible under a fake clock.
func (p RetryPolicy) NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Runtime carries the collaborators every stage command needs.
type Runtime struct {
	Clock  clock.Clock  // Drives backoff waits and poll deadlines.
	Calls  CallAdmitter // Optional; calls are not gated when nil.
	Retry  RetryPolicy  // Stage-local transient retry policy.
	Logger *slog.Logger // Optional; slog.Default() when nil.
}

func (r Runtime) clock() clock.Clock {
	if r.Clock == nil {
		return clock.Real{}
	}
	return r.Clock
}

func (r Runtime) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// invoke runs one gateway call while holding an external call slot.
func invoke[T any](ctx context.Context, rt Runtime, stage string, call func(context.Context) gateways.Outcome[T]) (gateways.Outcome[T], error) {
	if rt.Calls != nil {
		token, err := rt.Calls.Acquire(ctx, admission.TokenCall)
		if err != nil {
			// The slot wait belongs to the stage that needed the call.
			return gateways.Outcome[T]{}, model.NewError(model.KindOf(err), stage, err)
		}
		defer token.Release()
	}
	return call(ctx), nil
}

// retry calls the gateway until it returns a status retryOn rejects, the
// policy's attempts are used up, or ctx ends. The last outcome is returned.
func retry[T any](ctx context.Context, rt Runtime, stage string, retryOn func(gateways.Status) bool,
	call func(context.Context) gateways.Outcome[T]) (gateways.Outcome[T], error) {

	schedule := rt.Retry.NewBackOff()
	attempts := rt.Retry.attempts()
	for attempt := 1; ; attempt++ {
		out, err := invoke(ctx, rt, stage, call)
		if err != nil {
			return out, err
		}
		if !retryOn(out.Status) || attempt >= attempts {
			return out, nil
		}
		wait := schedule.NextBackOff()
		rt.logger().Debug("retrying gateway call", "stage", stage, "attempt", attempt, "status", out.Status.String(), "wait", wait)
		if err := clock.Sleep(ctx, rt.clock(), wait); err != nil {
			return out, nil
		}
	}
}

func transientOnly(status gateways.Status) bool {
	return status == gateways.StatusTransient
}

// outcomeError classifies a non-OK outcome. When the stage context has
// ended, the context error wins so a deadline reads as Timeout.
func outcomeError[T any](ctx context.Context, stage string, out gateways.Outcome[T]) *model.Error {
	if err := ctx.Err(); err != nil {
		return model.NewError(model.KindOf(err), stage, err)
	}
	return model.NewError(gateways.KindFor(out.Status), stage, out.Cause())
}

// stageRequest reads the request every stage command needs.
func stageRequest(context cor.Context) *model.ArtifactRequest {
	req, _ := context.Get(GetArtifactRequestParameterName()).(*model.ArtifactRequest)
	return req
}
