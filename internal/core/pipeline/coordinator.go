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

// Package pipeline drives artifact executions. The Coordinator keeps a
// registry of running executions keyed by fingerprint so that any number of
// concurrent submissions for the same fingerprint share one execution.
//
// Logic Flow of Submit:
//  1. If an execution for the fingerprint is running, the caller joins it.
//  2. Otherwise the cache is checked again under the registry lock, so a
//     submission racing a completing execution never starts a duplicate.
//  3. A pipeline token is requested from the admission controller. Denial
//     fails fast with RateLimited and refunds the caller's reservation.
//  4. The execution runs on its own goroutine under the overall deadline.
//     The caller waits for the outcome or withdraws when its context ends.
//
// Logic Flow of an execution:
//  1. The workflow stages run. A stage observer moves the execution through
//     METADATA_FETCHING, MEDIA_UPLOADING, MEDIA_PROCESSING and GENERATING.
//  2. On failure the execution is FAILED at once: waiters are released with
//     the classified error, nothing is cached and the uploaded media is then
//     cleaned up.
//  3. On success the media is cleaned up (CLEANING_UP), the artifact is
//     written to the cache and only then are waiters released (SUCCEEDED).
//  4. When the last waiter withdraws the execution is CANCELLED and leaves
//     the registry. Its goroutine lets the in-flight call finish, skips the
//     remaining stages, discards the result and still cleans up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Akash-916024/ai-note-taker/internal/core/admission"
	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/commands"
	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
)

// StagePipeline is the stage recorded on errors raised by the coordinator
// itself.
const StagePipeline = "pipeline"

// DefaultDeadline is the wall clock budget of one execution.
const DefaultDeadline = 60 * time.Second

// Runner runs the stages of one execution and cleans up after it.
type Runner interface {
	RunStages(chCtx cor.Context)
	Cleanup(chCtx cor.Context)
}

// ResultStore is where successful artifacts are kept.
type ResultStore interface {
	Get(fp model.Fingerprint) (*model.Artifact, bool)
	Put(fp model.Fingerprint, artifact *model.Artifact, ttl time.Duration)
}

// PipelineAdmitter hands out pipeline tokens without waiting.
type PipelineAdmitter interface {
	TryAcquire(kind admission.TokenKind) (*admission.Token, error)
}

// Reservation is a caller's provisional rate slot. It is committed once the
// submission is accepted and cancelled otherwise.
type Reservation interface {
	Commit()
	Cancel()
}

// Config holds the coordinator settings.
type Config struct {
	Deadline time.Duration // Overall budget of an execution.
	CacheTTL time.Duration // Lifetime of cached artifacts; the store default when zero.
}

// ExecutionSnapshot is a point in time view of a running execution.
type ExecutionSnapshot struct {
	ID          string              `json:"id"`
	Fingerprint string              `json:"fingerprint"`
	VideoID     string              `json:"video_id"`
	Language    string              `json:"language"`
	Kind        model.Kind          `json:"kind"`
	State       model.PipelineState `json:"state"`
	StartedAt   time.Time           `json:"started_at"`
	Waiters     int                 `json:"waiters"`
}

// execution is one run of the workflow for a fingerprint. Every field but
// done and chCtx is guarded by the coordinator's mutex.
type execution struct {
	id        uuid.UUID
	request   *model.ArtifactRequest
	state     model.PipelineState
	startedAt time.Time
	waiters   int
	chCtx     cor.Context
	done      chan struct{}
	artifact  *model.Artifact
	err       error
}

// Coordinator is the single-flight registry of running executions.
type Coordinator struct {
	runner   Runner
	cache    ResultStore
	admitter PipelineAdmitter
	config   Config
	clock    clock.Clock
	logger   *slog.Logger

	mu         sync.Mutex
	executions map[model.Fingerprint]*execution
	running    sync.WaitGroup

	startedCounter  metric.Int64Counter
	joinedCounter   metric.Int64Counter
	finishedCounter metric.Int64Counter
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for execution start times.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator creates a coordinator running executions with runner.
func NewCoordinator(runner Runner, cache ResultStore, admitter PipelineAdmitter, config Config, opts ...Option) *Coordinator {
	if config.Deadline <= 0 {
		config.Deadline = DefaultDeadline
	}
	c := &Coordinator{
		runner:     runner,
		cache:      cache,
		admitter:   admitter,
		config:     config,
		clock:      clock.Real{},
		logger:     slog.Default(),
		executions: make(map[model.Fingerprint]*execution),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("github.com/Akash-916024/ai-note-taker")
	c.startedCounter, _ = meter.Int64Counter("pipeline.counter.started")
	c.joinedCounter, _ = meter.Int64Counter("pipeline.counter.joined")
	c.finishedCounter, _ = meter.Int64Counter("pipeline.counter.finished")
	return c
}

// Submit returns the artifact for fp, joining the running execution for it
// or starting a new one. reservation may be nil.
func (c *Coordinator) Submit(ctx context.Context, fp model.Fingerprint, req *model.ArtifactRequest, reservation Reservation) (*model.Artifact, error) {
	if req == nil {
		req = model.NewArtifactRequest(fp)
	}

	c.mu.Lock()
	if exec, ok := c.executions[fp]; ok {
		exec.waiters++
		c.mu.Unlock()
		commit(reservation)
		c.joinedCounter.Add(ctx, 1)
		return c.wait(ctx, exec)
	}
	if artifact, ok := c.cache.Get(fp); ok {
		c.mu.Unlock()
		cancel(reservation)
		return artifact, nil
	}
	token, err := c.admitter.TryAcquire(admission.TokenPipeline)
	if err != nil {
		c.mu.Unlock()
		cancel(reservation)
		return nil, err
	}

	exec := &execution{
		id:        uuid.New(),
		request:   req,
		state:     model.StatePending,
		startedAt: c.clock.Now(),
		waiters:   1,
		done:      make(chan struct{}),
	}
	runCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), c.config.Deadline)
	exec.chCtx = workflow.NewExecutionContext(runCtx, req)
	exec.chCtx.SetObserver(func(command cor.Command) {
		if stage, ok := command.(commands.Stage); ok {
			c.transition(exec, stage.State())
		}
	})
	c.executions[fp] = exec
	c.running.Add(1)
	c.mu.Unlock()

	commit(reservation)
	c.startedCounter.Add(ctx, 1)
	go func() {
		defer c.running.Done()
		defer token.Release()
		defer stop()
		c.run(runCtx, exec)
	}()
	return c.wait(ctx, exec)
}

// run drives one execution to a terminal state. The overall deadline
// settles the execution as soon as it passes, even while a stage call that
// ignores its context is still running. Such an execution is aborted, and
// its media is cleaned up once the stage returns.
func (c *Coordinator) run(ctx context.Context, exec *execution) {
	stagesDone := make(chan struct{})
	go func() {
		defer close(stagesDone)
		c.runner.RunStages(exec.chCtx)
	}()

	select {
	case <-stagesDone:
	case <-ctx.Done():
		c.settle(exec, model.StateFailed, nil, model.NewError(model.KindTimeout, StagePipeline,
			fmt.Errorf("deadline of %s exceeded: %w", c.config.Deadline, ctx.Err())))
		exec.chCtx.Abort()
		<-stagesDone
		c.runner.Cleanup(exec.chCtx)
		return
	}

	artifact, err := c.outcome(ctx, exec)
	if err != nil {
		c.settle(exec, model.StateFailed, nil, err)
		c.runner.Cleanup(exec.chCtx)
		return
	}
	c.runner.Cleanup(exec.chCtx)
	if artifact != nil {
		c.settle(exec, model.StateSucceeded, artifact, nil)
	}
}

// outcome reads the result of the stages. A nil artifact with a nil error
// means the execution was cancelled.
func (c *Coordinator) outcome(ctx context.Context, exec *execution) (*model.Artifact, error) {
	chCtx := exec.chCtx
	if err := chCtx.Err(); err != nil {
		classified := model.Classify(err, "")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && classified.Kind != model.KindTimeout {
			return nil, model.NewError(model.KindTimeout, StagePipeline,
				fmt.Errorf("deadline of %s exceeded: %w", c.config.Deadline, err))
		}
		return nil, classified
	}
	if artifact := workflow.ArtifactFrom(chCtx); artifact != nil {
		return artifact, nil
	}
	if chCtx.IsAborted() {
		return nil, nil
	}
	return nil, model.Errorf(model.KindFatal, StagePipeline, "stages finished without an artifact")
}

// transition moves a live execution into state. Terminal executions keep
// their state.
func (c *Coordinator) transition(exec *execution, state model.PipelineState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exec.state.Terminal() {
		return
	}
	exec.state = state
}

// settle moves exec into a terminal state and releases its waiters. A
// successful artifact is cached before anything else can observe the
// execution leaving the registry. It does nothing if exec is already
// terminal.
func (c *Coordinator) settle(exec *execution, state model.PipelineState, artifact *model.Artifact, err error) {
	c.mu.Lock()
	if exec.state.Terminal() {
		c.mu.Unlock()
		return
	}
	failedIn := exec.state
	if state == model.StateSucceeded {
		c.cache.Put(exec.request.Fingerprint, artifact, c.config.CacheTTL)
	}
	c.finishLocked(exec, state, artifact, err)
	c.mu.Unlock()

	if state == model.StateFailed {
		c.logFailure(exec, failedIn, err)
	}
}

// finishLocked must be called with c.mu held.
func (c *Coordinator) finishLocked(exec *execution, state model.PipelineState, artifact *model.Artifact, err error) {
	exec.state = state
	exec.artifact = artifact
	exec.err = err
	if c.executions[exec.request.Fingerprint] == exec {
		delete(c.executions, exec.request.Fingerprint)
	}
	close(exec.done)
	c.finishedCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", string(state))))
}

func (c *Coordinator) logFailure(exec *execution, failedIn model.PipelineState, err error) {
	attrs := []any{
		"execution_id", exec.id.String(),
		"fingerprint", exec.request.Fingerprint.String(),
		"video_id", exec.request.VideoID,
		"language", exec.request.Language,
		"kind", string(exec.request.Kind),
		"state", string(failedIn),
		"error", err,
	}
	var classified *model.Error
	if errors.As(err, &classified) {
		attrs = append(attrs, "stage", classified.Stage)
	}
	if model.KindOf(err) == model.KindFatal {
		c.logger.Error("pipeline execution failed", attrs...)
		return
	}
	c.logger.Warn("pipeline execution failed", attrs...)
}

// wait blocks until exec is terminal or ctx ends, in which case the caller
// withdraws.
func (c *Coordinator) wait(ctx context.Context, exec *execution) (*model.Artifact, error) {
	select {
	case <-exec.done:
		return exec.artifact, exec.err
	case <-ctx.Done():
	}
	c.withdraw(exec)
	select {
	case <-exec.done:
		if exec.state != model.StateCancelled {
			return exec.artifact, exec.err
		}
	default:
	}
	return nil, model.NewError(model.KindTimeout, StagePipeline, fmt.Errorf("stopped waiting: %w", ctx.Err()))
}

// withdraw removes one waiter. The last one cancels the execution.
func (c *Coordinator) withdraw(exec *execution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exec.state.Terminal() {
		return
	}
	exec.waiters--
	if exec.waiters > 0 {
		return
	}
	c.logger.Info("pipeline execution cancelled",
		"execution_id", exec.id.String(),
		"fingerprint", exec.request.Fingerprint.String(),
		"state", string(exec.state))
	exec.chCtx.Abort()
	c.finishLocked(exec, model.StateCancelled, nil,
		model.Errorf(model.KindTimeout, StagePipeline, "execution cancelled in %s", exec.state))
}

// Active returns the running executions, oldest first.
func (c *Coordinator) Active() []ExecutionSnapshot {
	c.mu.Lock()
	out := make([]ExecutionSnapshot, 0, len(c.executions))
	for fp, exec := range c.executions {
		out = append(out, ExecutionSnapshot{
			ID:          exec.id.String(),
			Fingerprint: fp.String(),
			VideoID:     exec.request.VideoID,
			Language:    exec.request.Language,
			Kind:        exec.request.Kind,
			State:       exec.state,
			StartedAt:   exec.startedAt,
			Waiters:     exec.waiters,
		})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Wait blocks until every execution goroutine, cancelled ones included,
// has returned or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func commit(r Reservation) {
	if r != nil {
		r.Commit()
	}
}

func cancel(r Reservation) {
	if r != nil {
		r.Cancel()
	}
}
