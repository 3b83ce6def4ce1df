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

package commands_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akash-916024/ai-note-taker/internal/core/admission"
	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/commands"
	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	test "github.com/Akash-916024/ai-note-taker/internal/testutil"
)

var epoch = time.Date(2024, 10, 11, 3, 4, 8, 0, time.UTC)

func newRuntime() (commands.Runtime, *clock.Fake) {
	clk := clock.NewFake(epoch)
	return commands.Runtime{
		Clock: clk,
		Calls: admission.NewController(admission.DefaultConfig()),
		Retry: commands.DefaultRetryPolicy(),
	}, clk
}

func newChainContext(t *testing.T, kind model.Kind) cor.Context {
	t.Helper()
	fp, err := model.NewFingerprint("dQw4w9WgXcQ", "en", kind)
	require.NoError(t, err)
	chCtx := cor.NewBaseContextWith(context.Background())
	chCtx.Add(commands.GetArtifactRequestParameterName(), model.NewArtifactRequest(fp))
	return chCtx
}

func TestMetadataFetch(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rt, clk := newRuntime()
		gw := test.NewFakeMetadata()
		cmd := commands.NewMetadataFetch("metadata", gw, 5*time.Second, rt)
		chCtx := newChainContext(t, model.KindSummary)

		require.True(t, cmd.IsExecutable(chCtx))
		cmd.Execute(chCtx)

		assert.NoError(t, chCtx.Err())
		assert.Equal(t, test.GetTestMetadata(), chCtx.Get(commands.GetVideoMetadataParameterName()))
		assert.Equal(t, 1, gw.Calls())
		assert.Empty(t, clk.Sleeps())
	})

	t.Run("transient is retried with backoff", func(t *testing.T) {
		rt, clk := newRuntime()
		gw := test.NewFakeMetadata()
		gw.Push(
			gateways.Fail[model.VideoMetadata](gateways.StatusTransient, errors.New("503")),
			gateways.Fail[model.VideoMetadata](gateways.StatusTransient, errors.New("503")),
		)
		cmd := commands.NewMetadataFetch("metadata", gw, 5*time.Second, rt)
		chCtx := newChainContext(t, model.KindSummary)
		cmd.Execute(chCtx)

		assert.NoError(t, chCtx.Err())
		assert.Equal(t, 3, gw.Calls())
		assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, clk.Sleeps())
	})

	t.Run("transient exhausted", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMetadata()
		gw.Default = gateways.Fail[model.VideoMetadata](gateways.StatusTransient, errors.New("503"))
		cmd := commands.NewMetadataFetch("metadata", gw, 5*time.Second, rt)
		chCtx := newChainContext(t, model.KindSummary)
		cmd.Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrTransient)
		assert.Equal(t, 3, gw.Calls())
	})

	t.Run("not found is not retried", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMetadata()
		gw.Push(gateways.Fail[model.VideoMetadata](gateways.StatusNotFound, errors.New("no such video")))
		cmd := commands.NewMetadataFetch("metadata", gw, 5*time.Second, rt)
		chCtx := newChainContext(t, model.KindSummary)
		cmd.Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrNotFound)
		assert.Equal(t, 1, gw.Calls())
		assert.Nil(t, chCtx.Get(commands.GetVideoMetadataParameterName()))
	})

	t.Run("stage timeout", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMetadata()
		gw.Gate = make(chan struct{})
		cmd := commands.NewMetadataFetch("metadata", gw, 20*time.Millisecond, rt)
		chCtx := newChainContext(t, model.KindSummary)
		cmd.Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrTimeout)
	})

	t.Run("call slot wait is charged to the stage", func(t *testing.T) {
		rt, _ := newRuntime()
		calls := admission.NewController(admission.Config{MaxPipelines: 1, MaxCalls: 1})
		held, err := calls.Acquire(context.Background(), admission.TokenCall)
		require.NoError(t, err)
		defer held.Release()
		rt.Calls = calls

		gw := test.NewFakeMetadata()
		cmd := commands.NewMetadataFetch("metadata", gw, 20*time.Millisecond, rt)
		chCtx := newChainContext(t, model.KindSummary)
		cmd.Execute(chCtx)

		require.ErrorIs(t, chCtx.Err(), model.ErrTimeout)
		var classified *model.Error
		require.ErrorAs(t, chCtx.Err(), &classified)
		assert.Equal(t, commands.StageMetadata, classified.Stage)
		assert.Zero(t, gw.Calls())
	})
}

func TestUploadTimeout(t *testing.T) {
	policy := commands.UploadTimeout{Base: 10 * time.Second, PerMediaMinute: 2 * time.Second, Max: 40 * time.Second}
	assert.Equal(t, 10*time.Second, policy.For(0))
	assert.Equal(t, 20*time.Second, policy.For(5*time.Minute))
	assert.Equal(t, 40*time.Second, policy.For(2*time.Hour))

	longest, err := model.ParseISODuration("P106751D")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, policy.For(longest))
	assert.Equal(t, 40*time.Second, policy.For(time.Duration(math.MaxInt64)))

	uncapped := commands.UploadTimeout{Base: 10 * time.Second, PerMediaMinute: 2 * time.Second}
	assert.Positive(t, uncapped.For(time.Duration(math.MaxInt64)))
}

func TestMediaUpload(t *testing.T) {
	timeout := commands.UploadTimeout{Base: time.Second, PerMediaMinute: time.Second, Max: 10 * time.Second}

	t.Run("uses the metadata duration", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		chCtx := newChainContext(t, model.KindSummary)
		chCtx.Add(commands.GetVideoMetadataParameterName(), test.GetTestMetadata())

		cmd := commands.NewMediaUpload("upload", gw, timeout, rt)
		require.True(t, cmd.IsExecutable(chCtx))
		cmd.Execute(chCtx)

		require.NoError(t, chCtx.Err())
		assert.Equal(t, test.HandleFor("dQw4w9WgXcQ"), chCtx.Get(commands.GetMediaHandleParameterName()))
		require.Len(t, gw.Uploaded(), 1)
		assert.Equal(t, 4*time.Minute+13*time.Second, gw.Uploaded()[0].Duration)
	})

	t.Run("rejected is fatal", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		gw.Uploads.Push(gateways.Fail[model.MediaHandle](gateways.StatusRejected, errors.New("not a video")))
		chCtx := newChainContext(t, model.KindSummary)
		chCtx.Add(commands.GetVideoMetadataParameterName(), test.GetTestMetadata())

		commands.NewMediaUpload("upload", gw, timeout, rt).Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrFatal)
		assert.Len(t, gw.Uploaded(), 1)
		assert.Nil(t, chCtx.Get(commands.GetMediaHandleParameterName()))
	})

	t.Run("not executable without metadata", func(t *testing.T) {
		rt, _ := newRuntime()
		cmd := commands.NewMediaUpload("upload", test.NewFakeMedia(), timeout, rt)
		assert.False(t, cmd.IsExecutable(newChainContext(t, model.KindSummary)))
	})
}

func TestMediaProcessingPoll(t *testing.T) {
	handle := test.HandleFor("dQw4w9WgXcQ")
	pending := gateways.Fail[gateways.Unit](gateways.StatusPending, nil)

	newPollContext := func(t *testing.T) cor.Context {
		chCtx := newChainContext(t, model.KindSummary)
		chCtx.Add(commands.GetMediaHandleParameterName(), handle)
		return chCtx
	}

	t.Run("follows the backoff schedule until active", func(t *testing.T) {
		rt, clk := newRuntime()
		gw := test.NewFakeMedia()
		gw.Polls.Push(pending, pending, pending)
		chCtx := newPollContext(t)

		commands.NewMediaProcessingPoll("poll", gw, commands.DefaultPollPolicy(), rt).Execute(chCtx)

		assert.NoError(t, chCtx.Err())
		assert.Equal(t, 4, gw.Polls.Calls())
		assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, clk.Sleeps())
	})

	t.Run("failed processing is fatal", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		gw.Polls.Push(pending, gateways.Fail[gateways.Unit](gateways.StatusFailed, errors.New("unsupported codec")))
		chCtx := newPollContext(t)

		commands.NewMediaProcessingPoll("poll", gw, commands.DefaultPollPolicy(), rt).Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrFatal)
		assert.Equal(t, 2, gw.Polls.Calls())
	})

	t.Run("deadline", func(t *testing.T) {
		rt, clk := newRuntime()
		gw := test.NewFakeMedia()
		gw.Polls.Default = pending
		chCtx := newPollContext(t)

		commands.NewMediaProcessingPoll("poll", gw, commands.DefaultPollPolicy(), rt).Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrTimeout)
		sleeps := clk.Sleeps()
		var total time.Duration
		for _, d := range sleeps {
			assert.LessOrEqual(t, d, 4*time.Second)
			total += d
		}
		assert.Equal(t, 30*time.Second, total, "the last wait lands on the deadline")
		assert.Equal(t, 2500*time.Millisecond, sleeps[len(sleeps)-1])
		assert.Equal(t, epoch.Add(30*time.Second), clk.Now())
	})

	t.Run("consecutive transient failures", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		gw.Polls.Default = gateways.Fail[gateways.Unit](gateways.StatusTransient, errors.New("503"))
		chCtx := newPollContext(t)

		commands.NewMediaProcessingPoll("poll", gw, commands.DefaultPollPolicy(), rt).Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrTransient)
		assert.Equal(t, 3, gw.Polls.Calls())
	})
}

func newGenerationContext(t *testing.T, kind model.Kind) cor.Context {
	chCtx := newChainContext(t, kind)
	chCtx.Add(commands.GetVideoMetadataParameterName(), test.GetTestMetadata())
	chCtx.Add(commands.GetMediaHandleParameterName(), test.HandleFor("dQw4w9WgXcQ"))
	return chCtx
}

func TestArtifactGenerator(t *testing.T) {
	malformed := gateways.OK(`{"questions": []}`)

	t.Run("quiz", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeGeneration()
		chCtx := newGenerationContext(t, model.KindQuiz)

		commands.NewArtifactGenerator("generate", gw, 20*time.Second, rt).Execute(chCtx)

		require.NoError(t, chCtx.Err())
		artifact := chCtx.Get(commands.GetArtifactParameterName()).(*model.Artifact)
		assert.Equal(t, model.KindQuiz, artifact.Kind)
		assert.Equal(t, "dQw4w9WgXcQ", artifact.Quiz.VideoID)
		assert.Len(t, artifact.Quiz.Questions, model.QuizQuestionCount)
		assert.Equal(t, test.GetTestMetadata(), artifact.Metadata)
		assert.Equal(t, epoch, artifact.GeneratedAt)

		requests := gw.Requests()
		require.Len(t, requests, 1)
		assert.True(t, requests[0].Structured)
		assert.Equal(t, test.HandleFor("dQw4w9WgXcQ"), requests[0].Handle)
	})

	t.Run("malformed result is retried once against the same handle", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeGeneration()
		gw.Push(malformed)
		chCtx := newGenerationContext(t, model.KindQuiz)

		commands.NewArtifactGenerator("generate", gw, 20*time.Second, rt).Execute(chCtx)

		require.NoError(t, chCtx.Err())
		requests := gw.Requests()
		require.Len(t, requests, 2)
		assert.Equal(t, requests[0].Handle, requests[1].Handle)
	})

	t.Run("second malformed result fails", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeGeneration()
		gw.Push(malformed, malformed)
		chCtx := newGenerationContext(t, model.KindQuiz)

		commands.NewArtifactGenerator("generate", gw, 20*time.Second, rt).Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrMalformedResult)
		assert.Len(t, gw.Requests(), 2)
	})

	t.Run("content blocked is never retried", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeGeneration()
		gw.Push(gateways.Fail[string](gateways.StatusContentBlocked, errors.New("SAFETY")))
		chCtx := newGenerationContext(t, model.KindSummary)

		commands.NewArtifactGenerator("generate", gw, 20*time.Second, rt).Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrContentBlocked)
		assert.Len(t, gw.Requests(), 1)
	})

	t.Run("provider rate limit is retried", func(t *testing.T) {
		rt, clk := newRuntime()
		gw := test.NewFakeGeneration()
		gw.Push(gateways.Fail[string](gateways.StatusRateLimited, errors.New("429")))
		chCtx := newGenerationContext(t, model.KindSummary)

		commands.NewArtifactGenerator("generate", gw, 20*time.Second, rt).Execute(chCtx)

		require.NoError(t, chCtx.Err())
		assert.Len(t, gw.Requests(), 2)
		assert.Equal(t, []time.Duration{200 * time.Millisecond}, clk.Sleeps())
	})

	t.Run("provider rate limit exhausted", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeGeneration()
		limited := gateways.Fail[string](gateways.StatusRateLimited, errors.New("429"))
		gw.Push(limited, limited, limited)
		chCtx := newGenerationContext(t, model.KindSummary)

		commands.NewArtifactGenerator("generate", gw, 20*time.Second, rt).Execute(chCtx)

		assert.ErrorIs(t, chCtx.Err(), model.ErrRateLimited)
		assert.Len(t, gw.Requests(), 3)
	})
}

func TestMediaCleanup(t *testing.T) {
	newCleanupContext := func(t *testing.T, goCtx context.Context) cor.Context {
		chCtx := newChainContext(t, model.KindSummary)
		chCtx.SetContext(goCtx)
		chCtx.Add(commands.GetMediaHandleParameterName(), test.HandleFor("dQw4w9WgXcQ"))
		return chCtx
	}

	t.Run("deletes exactly once", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		cmd := commands.NewMediaCleanup("cleanup", gw, 10*time.Second, rt)
		chCtx := newCleanupContext(t, context.Background())

		require.True(t, cmd.IsExecutable(chCtx))
		cmd.Execute(chCtx)
		assert.False(t, cmd.IsExecutable(chCtx))

		assert.Equal(t, []model.MediaHandle{test.HandleFor("dQw4w9WgXcQ")}, gw.Deleted())
	})

	t.Run("runs after the execution context ended", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		goCtx, cancel := context.WithCancel(context.Background())
		cancel()
		chCtx := newCleanupContext(t, goCtx)

		commands.NewMediaCleanup("cleanup", gw, 10*time.Second, rt).Execute(chCtx)

		assert.Len(t, gw.Deleted(), 1)
	})

	t.Run("transient failures are retried within the attempt", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		gw.Deletes.Push(gateways.Fail[gateways.Unit](gateways.StatusTransient, errors.New("503")))
		chCtx := newCleanupContext(t, context.Background())

		commands.NewMediaCleanup("cleanup", gw, 10*time.Second, rt).Execute(chCtx)

		assert.Len(t, gw.Deleted(), 2)
		assert.False(t, chCtx.HasErrors())
	})

	t.Run("failure is not escalated", func(t *testing.T) {
		rt, _ := newRuntime()
		gw := test.NewFakeMedia()
		gw.Deletes.Default = gateways.Fail[gateways.Unit](gateways.StatusTransient, errors.New("503"))
		chCtx := newCleanupContext(t, context.Background())

		commands.NewMediaCleanup("cleanup", gw, 10*time.Second, rt).Execute(chCtx)

		assert.Len(t, gw.Deleted(), 3)
		assert.False(t, chCtx.HasErrors())
	})

	t.Run("nothing to clean", func(t *testing.T) {
		rt, _ := newRuntime()
		cmd := commands.NewMediaCleanup("cleanup", test.NewFakeMedia(), 10*time.Second, rt)
		assert.False(t, cmd.IsExecutable(newChainContext(t, model.KindSummary)))
	})
}
