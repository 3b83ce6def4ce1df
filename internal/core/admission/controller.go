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

// Package admission bounds how much work the artifact service takes on.
//
// Two independent limits are enforced:
//   - Concurrency ceilings. A fixed number of pipeline executions and a fixed
//     number of in-flight external calls may be active at once. Pipeline slots
//     are acquired with TryAcquire and fail fast. External call slots are
//     acquired with Acquire and wait until a slot frees or the context ends.
//   - A per-caller rate ceiling. Each caller identity may have at most Limit
//     accepted submissions in any rolling Window. The window is a log of
//     accepted submission times, pruned of entries older than now - Window,
//     so the bound holds for every window position rather than on average.
//
// Every granted slot is represented by a Token whose Release is safe to call
// any number of times and frees the slot exactly once. A denied request
// leaves no state behind.
package admission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// TokenKind names the resource a token leases.
type TokenKind string

const (
	TokenPipeline TokenKind = "pipeline"
	TokenCall     TokenKind = "call"
)

// Config holds the admission bounds.
type Config struct {
	MaxPipelines   int           // Concurrently active pipeline executions.
	MaxCalls       int           // Concurrently in-flight external calls.
	PerCallerLimit int           // Accepted submissions per caller per window.
	Window         time.Duration // Length of the rolling rate window.
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxPipelines:   8,
		MaxCalls:       16,
		PerCallerLimit: 10,
		Window:         time.Minute,
	}
}

// Stats is a snapshot of admission activity.
type Stats struct {
	ActivePipelines int64 `json:"active_pipelines"`
	ActiveCalls     int64 `json:"active_calls"`
	TrackedCallers  int   `json:"tracked_callers"`
	Denied          int64 `json:"denied"`
}

// Controller enforces the concurrency ceilings and per-caller rate limit.
type Controller struct {
	cfg       Config
	clock     clock.Clock
	pipelines *semaphore.Weighted
	calls     *semaphore.Weighted

	mu      sync.Mutex
	windows map[string][]time.Time

	activePipelines atomic.Int64
	activeCalls     atomic.Int64
	denied          atomic.Int64
	deniedCounter   metric.Int64Counter
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock sets the time source for the rate window.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// NewController creates a controller. Non-positive bounds fall back to the
// defaults.
func NewController(cfg Config, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.MaxPipelines <= 0 {
		cfg.MaxPipelines = def.MaxPipelines
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = def.MaxCalls
	}
	if cfg.PerCallerLimit <= 0 {
		cfg.PerCallerLimit = def.PerCallerLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	c := &Controller{
		cfg:       cfg,
		clock:     clock.Real{},
		pipelines: semaphore.NewWeighted(int64(cfg.MaxPipelines)),
		calls:     semaphore.NewWeighted(int64(cfg.MaxCalls)),
		windows:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.deniedCounter, _ = otel.Meter("github.com/Akash-916024/ai-note-taker").Int64Counter("admission.counter.denied")
	return c
}

// Config returns the effective bounds.
func (c *Controller) Config() Config { return c.cfg }

// Reservation is a provisionally accepted submission in a caller's window.
// Cancel refunds it when the submission never turned into work.
type Reservation struct {
	c        *Controller
	identity string
	at       time.Time
	once     sync.Once
}

// Commit keeps the submission counted against the caller.
func (r *Reservation) Commit() {
	r.once.Do(func() {})
}

// Cancel removes the submission from the caller's window, unless the
// reservation was already committed or cancelled.
func (r *Reservation) Cancel() {
	r.once.Do(func() {
		r.c.refund(r.identity, r.at)
	})
}

// AdmitCaller records a submission for identity if its window has room.
func (c *Controller) AdmitCaller(identity string) (*Reservation, error) {
	now := c.clock.Now()
	cutoff := now.Add(-c.cfg.Window)

	c.mu.Lock()
	defer c.mu.Unlock()

	window := prune(c.windows[identity], cutoff)
	if len(window) >= c.cfg.PerCallerLimit {
		c.windows[identity] = window
		c.deny(TokenKind("caller"))
		return nil, model.Errorf(model.KindRateLimited, "admission",
			"caller %q exceeded %d requests per %s", identity, c.cfg.PerCallerLimit, c.cfg.Window)
	}
	c.windows[identity] = append(window, now)
	return &Reservation{c: c, identity: identity, at: now}, nil
}

func (c *Controller) refund(identity string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	window := c.windows[identity]
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Equal(at) {
			window = append(window[:i], window[i+1:]...)
			break
		}
	}
	if len(window) == 0 {
		delete(c.windows, identity)
		return
	}
	c.windows[identity] = window
}

// Prune drops rate windows whose entries have all aged out.
func (c *Controller) Prune() int {
	cutoff := c.clock.Now().Add(-c.cfg.Window)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for identity, window := range c.windows {
		window = prune(window, cutoff)
		if len(window) == 0 {
			delete(c.windows, identity)
			removed++
			continue
		}
		c.windows[identity] = window
	}
	return removed
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order, so the survivors are a suffix.
func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0:0], window[i:]...)
}

// Token is a lease on one pipeline or external call slot.
type Token struct {
	Kind    TokenKind
	release func()
	once    sync.Once
}

// Release frees the slot. Only the first call has an effect.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.once.Do(t.release)
}

// TryAcquire leases a slot of the given kind without waiting.
func (c *Controller) TryAcquire(kind TokenKind) (*Token, error) {
	sem, active := c.resource(kind)
	if sem == nil {
		return nil, model.Errorf(model.KindFatal, "admission", "unknown token kind %q", kind)
	}
	if !sem.TryAcquire(1) {
		c.deny(kind)
		return nil, model.Errorf(model.KindRateLimited, "admission", "no %s slot available", kind)
	}
	active.Add(1)
	return c.token(kind, sem, active), nil
}

// Acquire leases a slot of the given kind, waiting until one frees or ctx
// ends.
func (c *Controller) Acquire(ctx context.Context, kind TokenKind) (*Token, error) {
	sem, active := c.resource(kind)
	if sem == nil {
		return nil, model.Errorf(model.KindFatal, "admission", "unknown token kind %q", kind)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, model.NewError(model.KindTimeout, "admission", fmt.Errorf("waiting for %s slot: %w", kind, err))
	}
	active.Add(1)
	return c.token(kind, sem, active), nil
}

// Stats returns a snapshot of admission activity.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	tracked := len(c.windows)
	c.mu.Unlock()
	return Stats{
		ActivePipelines: c.activePipelines.Load(),
		ActiveCalls:     c.activeCalls.Load(),
		TrackedCallers:  tracked,
		Denied:          c.denied.Load(),
	}
}

func (c *Controller) resource(kind TokenKind) (*semaphore.Weighted, *atomic.Int64) {
	switch kind {
	case TokenPipeline:
		return c.pipelines, &c.activePipelines
	case TokenCall:
		return c.calls, &c.activeCalls
	}
	return nil, nil
}

func (c *Controller) token(kind TokenKind, sem *semaphore.Weighted, active *atomic.Int64) *Token {
	return &Token{Kind: kind, release: func() {
		active.Add(-1)
		sem.Release(1)
	}}
}

func (c *Controller) deny(kind TokenKind) {
	c.denied.Add(1)
	c.deniedCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
