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

package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Akash-916024/ai-note-taker/internal/core/admission"
	"github.com/Akash-916024/ai-note-taker/internal/core/cache"
	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/commands"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/pipeline"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
	test "github.com/Akash-916024/ai-note-taker/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	metadata    *test.FakeMetadata
	media       *test.FakeMedia
	generation  *test.FakeGeneration
	clock       *clock.Fake
	cache       *cache.ResultCache
	admission   *admission.Controller
	coordinator *pipeline.Coordinator
}

func newHarness(t *testing.T, config pipeline.Config, maxPipelines int) *harness {
	t.Helper()
	h := &harness{
		metadata:   test.NewFakeMetadata(),
		media:      test.NewFakeMedia(),
		generation: test.NewFakeGeneration(),
		clock:      clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.cache = cache.New(10, time.Hour, cache.WithClock(h.clock))
	h.admission = admission.NewController(admission.Config{MaxPipelines: maxPipelines, MaxCalls: 4}, admission.WithClock(h.clock))
	runner := workflow.NewArtifactWorkflow(
		workflow.Gateways{Metadata: h.metadata, Media: h.media, Generation: h.generation},
		workflow.DefaultSettings(),
		commands.Runtime{Clock: h.clock, Calls: h.admission, Logger: test.NewLogger("pipeline-test")},
	)
	h.coordinator = pipeline.NewCoordinator(runner, h.cache, h.admission, config,
		pipeline.WithClock(h.clock), pipeline.WithLogger(test.NewLogger("pipeline-test")))
	return h
}

// drain waits for every execution goroutine so gateway calls made after
// waiters were released are visible.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.coordinator.Wait(ctx))
}

func fingerprint(t *testing.T, videoID string, kind model.Kind) model.Fingerprint {
	t.Helper()
	fp, err := model.NewFingerprint(videoID, "en", kind)
	require.NoError(t, err)
	return fp
}

// waitForState blocks until the single active execution reaches state.
func waitForState(t *testing.T, c *pipeline.Coordinator, state model.PipelineState, waiters int) {
	t.Helper()
	require.Eventually(t, func() bool {
		active := c.Active()
		return len(active) == 1 && active[0].State == state && active[0].Waiters == waiters
	}, 5*time.Second, 5*time.Millisecond)
}

type result struct {
	artifact *model.Artifact
	err      error
}

type recordingReservation struct {
	mu        sync.Mutex
	committed int
	cancelled int
}

func (r *recordingReservation) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed++
}

func (r *recordingReservation) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
}

func TestCoordinatorSingleFlight(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, 4)
	gate := make(chan struct{})
	h.generation.Gate = gate
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindQuiz)

	const callers = 10
	results := make(chan result, callers)
	for i := 0; i < callers; i++ {
		go func() {
			artifact, err := h.coordinator.Submit(context.Background(), fp, nil, nil)
			results <- result{artifact, err}
		}()
	}
	waitForState(t, h.coordinator, model.StateGenerating, callers)
	close(gate)

	var first *model.Artifact
	for i := 0; i < callers; i++ {
		res := <-results
		require.NoError(t, res.err)
		if first == nil {
			first = res.artifact
		}
		assert.Same(t, first, res.artifact)
	}
	h.drain(t)

	require.NoError(t, first.Validate())
	assert.Equal(t, 1, h.metadata.Calls())
	assert.Len(t, h.media.Uploaded(), 1)
	assert.Len(t, h.generation.Requests(), 1)
	assert.Len(t, h.media.Deleted(), 1)
	assert.Empty(t, h.coordinator.Active())

	cached, ok := h.cache.Get(fp)
	require.True(t, ok)
	assert.Same(t, first, cached)
}

func TestCoordinatorServesCacheWithoutCalls(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, 4)
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindSummary)
	want := &model.Artifact{Fingerprint: fp.String(), VideoID: fp.VideoID(), Language: "en", Kind: model.KindSummary}
	h.cache.Put(fp, want, 0)
	reservation := &recordingReservation{}

	got, err := h.coordinator.Submit(context.Background(), fp, nil, reservation)

	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Zero(t, h.metadata.Calls())
	assert.Equal(t, 1, reservation.cancelled, "a cache hit does not use the caller's rate slot")
}

func TestCoordinatorFailureReachesEveryWaiter(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, 4)
	gate := make(chan struct{})
	h.generation.Gate = gate
	h.generation.Push(gateways.Fail[string](gateways.StatusContentBlocked, errors.New("prompt blocked: SAFETY")))
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindSummary)

	const callers = 3
	results := make(chan result, callers)
	for i := 0; i < callers; i++ {
		go func() {
			artifact, err := h.coordinator.Submit(context.Background(), fp, nil, nil)
			results <- result{artifact, err}
		}()
	}
	waitForState(t, h.coordinator, model.StateGenerating, callers)
	close(gate)

	var first error
	for i := 0; i < callers; i++ {
		res := <-results
		assert.Nil(t, res.artifact)
		require.ErrorIs(t, res.err, model.ErrContentBlocked)
		if first == nil {
			first = res.err
		}
		assert.Same(t, first, res.err, "every waiter receives the same error")
	}
	h.drain(t)

	_, ok := h.cache.Get(fp)
	assert.False(t, ok, "failures are never cached")
	assert.Len(t, h.generation.Requests(), 1, "content blocked is never retried")
	assert.Len(t, h.media.Deleted(), 1)
}

func TestCoordinatorDeadline(t *testing.T) {
	h := newHarness(t, pipeline.Config{Deadline: 100 * time.Millisecond}, 4)
	h.generation.Gate = make(chan struct{})
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindQuiz)

	artifact, err := h.coordinator.Submit(context.Background(), fp, nil, nil)
	h.drain(t)

	assert.Nil(t, artifact)
	require.ErrorIs(t, err, model.ErrTimeout)
	_, ok := h.cache.Get(fp)
	assert.False(t, ok)
	assert.Len(t, h.media.Deleted(), 1, "uploaded media is deleted after a timeout")
	assert.Empty(t, h.coordinator.Active())
}

func TestCoordinatorDeadlineReleasesWaitersBeforeStageReturns(t *testing.T) {
	h := newHarness(t, pipeline.Config{Deadline: 100 * time.Millisecond}, 4)
	gate := make(chan struct{})
	h.generation.Gate = gate
	h.generation.IgnoreContext = true
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindSummary)

	start := time.Now()
	artifact, err := h.coordinator.Submit(context.Background(), fp, nil, nil)
	elapsed := time.Since(start)

	assert.Nil(t, artifact)
	require.ErrorIs(t, err, model.ErrTimeout)
	var classified *model.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, pipeline.StagePipeline, classified.Stage)
	assert.Less(t, elapsed, time.Second, "waiters are released at the deadline")
	assert.Empty(t, h.coordinator.Active())
	assert.Empty(t, h.media.Deleted(), "cleanup waits for the stuck stage")

	close(gate)
	h.drain(t)

	_, ok := h.cache.Get(fp)
	assert.False(t, ok, "a late result is discarded")
	assert.Len(t, h.media.Deleted(), 1)
	assert.Zero(t, h.admission.Stats().ActivePipelines)
}

func TestCoordinatorMalformedResult(t *testing.T) {
	malformed := gateways.OK(`{"questions": [{"ordinal": 1, "question": "?", "options": ["a"], "correct_option_index": 7}]}`)

	t.Run("retried once then failed", func(t *testing.T) {
		h := newHarness(t, pipeline.Config{}, 4)
		h.generation.Push(malformed, malformed)
		fp := fingerprint(t, "dQw4w9WgXcQ", model.KindQuiz)

		_, err := h.coordinator.Submit(context.Background(), fp, nil, nil)
		h.drain(t)

		require.ErrorIs(t, err, model.ErrMalformedResult)
		assert.Len(t, h.generation.Requests(), 2)
		assert.Len(t, h.media.Uploaded(), 1, "only generation is retried")
		_, ok := h.cache.Get(fp)
		assert.False(t, ok)
		assert.Len(t, h.media.Deleted(), 1)
	})

	t.Run("retry succeeds", func(t *testing.T) {
		h := newHarness(t, pipeline.Config{}, 4)
		h.generation.Push(malformed)
		fp := fingerprint(t, "dQw4w9WgXcQ", model.KindQuiz)

		artifact, err := h.coordinator.Submit(context.Background(), fp, nil, nil)
		h.drain(t)

		require.NoError(t, err)
		require.NotNil(t, artifact.Quiz)
		assert.Len(t, artifact.Quiz.Questions, 5)
		assert.Len(t, h.generation.Requests(), 2)
	})
}

func TestCoordinatorCancelWhenLastWaiterWithdraws(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, 4)
	gate := make(chan struct{})
	h.generation.Gate = gate
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindSummary)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan result, 1)
	go func() {
		artifact, err := h.coordinator.Submit(ctx, fp, nil, nil)
		results <- result{artifact, err}
	}()
	waitForState(t, h.coordinator, model.StateGenerating, 1)

	cancel()
	res := <-results
	assert.Nil(t, res.artifact)
	require.Error(t, res.err)
	assert.Empty(t, h.coordinator.Active(), "a cancelled execution leaves the registry at once")

	// The in-flight call finishes and its result is discarded.
	close(gate)
	h.drain(t)

	_, ok := h.cache.Get(fp)
	assert.False(t, ok)
	assert.Len(t, h.media.Deleted(), 1)
	assert.Zero(t, h.admission.Stats().ActivePipelines)
}

func TestCoordinatorWithdrawKeepsExecutionForOthers(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, 4)
	gate := make(chan struct{})
	h.generation.Gate = gate
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindSummary)

	leaving, leave := context.WithCancel(context.Background())
	left := make(chan error, 1)
	go func() {
		_, err := h.coordinator.Submit(leaving, fp, nil, nil)
		left <- err
	}()
	waitForState(t, h.coordinator, model.StateGenerating, 1)

	stayed := make(chan result, 1)
	go func() {
		artifact, err := h.coordinator.Submit(context.Background(), fp, nil, nil)
		stayed <- result{artifact, err}
	}()
	waitForState(t, h.coordinator, model.StateGenerating, 2)

	leave()
	require.Error(t, <-left)
	waitForState(t, h.coordinator, model.StateGenerating, 1)

	close(gate)
	res := <-stayed
	h.drain(t)

	require.NoError(t, res.err)
	assert.NotNil(t, res.artifact)
	assert.Len(t, h.generation.Requests(), 1)
}

func TestCoordinatorPipelineCeiling(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, 1)
	gate := make(chan struct{})
	h.metadata.Gate = gate
	busy := fingerprint(t, "dQw4w9WgXcQ", model.KindSummary)
	other := fingerprint(t, "M7lc1UVf-VE", model.KindSummary)

	results := make(chan result, 2)
	go func() {
		artifact, err := h.coordinator.Submit(context.Background(), busy, nil, nil)
		results <- result{artifact, err}
	}()
	waitForState(t, h.coordinator, model.StateMetadataFetching, 1)

	// Joining a running execution needs no pipeline token.
	go func() {
		artifact, err := h.coordinator.Submit(context.Background(), busy, nil, nil)
		results <- result{artifact, err}
	}()
	waitForState(t, h.coordinator, model.StateMetadataFetching, 2)

	reservation := &recordingReservation{}
	_, err := h.coordinator.Submit(context.Background(), other, nil, reservation)
	require.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, 1, reservation.cancelled)
	assert.Zero(t, reservation.committed)
	assert.Len(t, h.coordinator.Active(), 1)

	close(gate)
	for i := 0; i < 2; i++ {
		res := <-results
		require.NoError(t, res.err)
	}
	h.drain(t)
	assert.Equal(t, 1, h.metadata.Calls())
}

func TestCoordinatorMetadataNotFound(t *testing.T) {
	h := newHarness(t, pipeline.Config{}, 4)
	h.metadata.Push(gateways.Fail[model.VideoMetadata](gateways.StatusNotFound, errors.New("no such video")))
	fp := fingerprint(t, "dQw4w9WgXcQ", model.KindSummary)
	reservation := &recordingReservation{}

	_, err := h.coordinator.Submit(context.Background(), fp, nil, reservation)
	h.drain(t)

	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 1, reservation.committed)
	assert.Empty(t, h.media.Uploaded())
	assert.Empty(t, h.media.Deleted(), "nothing to clean up before an upload")

	// A failed execution is terminal; the next request starts afresh.
	_, err = h.coordinator.Submit(context.Background(), fp, nil, nil)
	h.drain(t)
	require.NoError(t, err)
	assert.Equal(t, 2, h.metadata.Calls())
}
