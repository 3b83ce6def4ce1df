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
// command that waits for uploaded media to become usable.
//
// Logic Flow:
// After the upload call returns, the media service still has to process the
// file before the model can read it.
//
//  1. Poll the handle's status.
//  2. Active ends the stage successfully. Failed ends it as Fatal.
//  3. Pending (or a transient error, up to the retry policy's attempt count
//     in a row) suspends the stage on the clock for the next interval of an
//     exponential, capped schedule and polls again.
//  4. The last wait is shortened to land on the polling deadline. A poll
//     that is still pending at the deadline ends the stage as Timeout.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// PollPolicy is the schedule of the processing poll.
type PollPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Deadline        time.Duration
}

// DefaultPollPolicy polls after 500ms, doubling up to 4s, for 30s.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     4 * time.Second,
		Multiplier:      2,
		Deadline:        30 * time.Second,
	}
}

// NewBackOff returns a fresh, jitter-free schedule.
func (p PollPolicy) NewBackOff() *backoff.ExponentialBackOff {
	return RetryPolicy{InitialInterval: p.InitialInterval, MaxInterval: p.MaxInterval, Multiplier: p.Multiplier}.NewBackOff()
}

// MediaProcessingPoll waits until the uploaded media is active.
type MediaProcessingPoll struct {
	cor.BaseCommand
	gateway gateways.MediaGateway
	policy  PollPolicy
	runtime Runtime
}

// NewMediaProcessingPoll is the constructor for the MediaProcessingPoll command.
func NewMediaProcessingPoll(name string, gateway gateways.MediaGateway, policy PollPolicy, runtime Runtime) *MediaProcessingPoll {
	out := &MediaProcessingPoll{BaseCommand: *cor.NewBaseCommand(name), gateway: gateway, policy: policy, runtime: runtime}
	out.InputParamName = GetMediaHandleParameterName()
	out.OutputParamName = GetMediaHandleParameterName()
	return out
}

func (p *MediaProcessingPoll) State() model.PipelineState {
	return model.StateMediaProcessing
}

func (p *MediaProcessingPoll) Execute(chCtx cor.Context) {
	handle := chCtx.Get(p.GetInputParam()).(model.MediaHandle)
	if err := p.await(chCtx.GetContext(), handle); err != nil {
		p.Fail(chCtx, err)
		return
	}
	p.Succeed(chCtx, nil)
}

func (p *MediaProcessingPoll) await(ctx context.Context, handle model.MediaHandle) error {
	clk := p.runtime.clock()
	deadline := clk.Now().Add(p.policy.Deadline)
	schedule := p.policy.NewBackOff()
	maxTransient := p.runtime.Retry.attempts()
	transient := 0

	for polls := 1; ; polls++ {
		out, err := invoke(ctx, p.runtime, StageProcessing, func(ctx context.Context) gateways.Outcome[gateways.Unit] {
			return p.gateway.PollStatus(ctx, handle)
		})
		if err != nil {
			return err
		}

		switch out.Status {
		case gateways.StatusOK:
			p.runtime.logger().Info("media active", "handle", handle.Name, "polls", polls)
			return nil
		case gateways.StatusFailed:
			return model.NewError(model.KindFatal, StageProcessing, fmt.Errorf("processing of %s failed: %w", handle.Name, out.Cause()))
		case gateways.StatusPending:
			transient = 0
		case gateways.StatusTransient:
			transient++
			if transient >= maxTransient {
				return outcomeError(ctx, StageProcessing, out)
			}
		default:
			return model.NewError(model.KindFatal, StageProcessing, out.Cause())
		}

		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return model.Errorf(model.KindTimeout, StageProcessing, "%s still processing after %s", handle.Name, p.policy.Deadline)
		}
		wait := schedule.NextBackOff()
		if wait > remaining {
			wait = remaining
		}
		if err := clock.Sleep(ctx, clk, wait); err != nil {
			return model.NewError(model.KindOf(err), StageProcessing, err)
		}
	}
}
