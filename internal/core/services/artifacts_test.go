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

package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/services"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
	test "github.com/Akash-916024/ai-note-taker/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	metadata   *test.FakeMetadata
	media      *test.FakeMedia
	generation *test.FakeGeneration
	clock      *clock.Fake
	service    *services.ArtifactService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		metadata:   test.NewFakeMetadata(),
		media:      test.NewFakeMedia(),
		generation: test.NewFakeGeneration(),
		clock:      clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.service = services.NewArtifactService(test.GetConfig(),
		workflow.Gateways{Metadata: f.metadata, Media: f.media, Generation: f.generation},
		services.WithClock(f.clock), services.WithLogger(test.NewLogger("services-test")))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, f.service.Shutdown(ctx))
	})
	return f
}

func TestRequestRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		videoID  string
		language string
		kind     model.Kind
	}{
		"empty video id":       {"  ", "en", model.KindSummary},
		"unsupported language": {"dQw4w9WgXcQ", "tlh", model.KindSummary},
		"unknown kind":         {"dQw4w9WgXcQ", "en", model.Kind("essay")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.Request(ctx, "caller", tc.videoID, tc.language, tc.kind)
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
	assert.Zero(t, f.metadata.Calls(), "invalid input never reaches a gateway")
	assert.Zero(t, f.service.Admission.Stats().TrackedCallers)
}

func TestRequestServesRepeatsFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Request(ctx, "caller", "dQw4w9WgXcQ", "en", model.KindQuiz)
	require.NoError(t, err)
	second, err := f.service.Request(ctx, "someone-else", "dQw4w9WgXcQ", "EN", model.KindQuiz)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.metadata.Calls())
	assert.Len(t, f.generation.Requests(), 1)

	stats := f.service.Stats()
	assert.EqualValues(t, 1, stats.Cache.Hits)
	assert.Equal(t, 1, stats.Cache.Size)
	assert.Zero(t, stats.ActiveExecutions)
}

func TestRequestCacheExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Request(ctx, "caller", "dQw4w9WgXcQ", "en", model.KindSummary)
	require.NoError(t, err)
	f.clock.Advance(test.GetConfig().Cache.TTL)

	_, err = f.service.Request(ctx, "caller", "dQw4w9WgXcQ", "en", model.KindSummary)
	require.NoError(t, err)
	assert.Equal(t, 2, f.metadata.Calls(), "an expired entry is regenerated")
}

func TestRequestRateLimitsCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limit := test.GetConfig().Admission.PerCallerLimit

	for i := 0; i < limit; i++ {
		_, err := f.service.Request(ctx, "busy-caller", fmt.Sprintf("video-%02d", i), "en", model.KindSummary)
		require.NoError(t, err)
	}
	_, err := f.service.Request(ctx, "busy-caller", "one-too-many", "en", model.KindSummary)
	require.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, limit, f.metadata.Calls(), "the rejected request starts no pipeline")

	// Cached artifacts and other callers are unaffected.
	_, err = f.service.Request(ctx, "busy-caller", "video-00", "en", model.KindSummary)
	assert.NoError(t, err)
	_, err = f.service.Request(ctx, "quiet-caller", "one-too-many", "en", model.KindSummary)
	assert.NoError(t, err)

	// The window rolls.
	f.clock.Advance(test.GetConfig().Admission.Window)
	_, err = f.service.Request(ctx, "busy-caller", "fresh-video", "en", model.KindSummary)
	assert.NoError(t, err)
}

func TestRequestCacheHitsDoNotCountAgainstRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2*test.GetConfig().Admission.PerCallerLimit; i++ {
		_, err := f.service.Request(ctx, "reader", "dQw4w9WgXcQ", "en", model.KindSummary)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.metadata.Calls())
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Request(ctx, "caller", "dQw4w9WgXcQ", "en", model.KindSummary)
	require.NoError(t, err)

	removed, err := f.service.Invalidate("dQw4w9WgXcQ", "en", model.KindSummary)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = f.service.Invalidate("dQw4w9WgXcQ", "en", model.KindSummary)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.service.Invalidate("", "en", model.KindSummary)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.service.Request(ctx, "caller", "dQw4w9WgXcQ", "en", model.KindSummary)
	require.NoError(t, err)
	assert.Equal(t, 2, f.metadata.Calls())
}

func TestStartMaintenanceStops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := f.service.StartMaintenance(ctx, time.Millisecond, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance loops did not stop")
	}
}
