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

package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Akash-916024/ai-note-taker/internal/core/admission"
	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

var epoch = time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)

func TestCallerWindowRejectsEleventh(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := admission.NewController(admission.DefaultConfig(), admission.WithClock(clk))

	for i := 0; i < 10; i++ {
		r, err := c.AdmitCaller("alice")
		require.NoError(t, err)
		r.Commit()
		clk.Advance(5 * time.Second)
	}
	_, err := c.AdmitCaller("alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRateLimited))

	// Other callers are unaffected.
	_, err = c.AdmitCaller("bob")
	assert.NoError(t, err)
}

func TestCallerWindowRolls(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := admission.NewController(admission.Config{PerCallerLimit: 2, Window: time.Minute}, admission.WithClock(clk))

	_, err := c.AdmitCaller("alice")
	require.NoError(t, err)
	clk.Advance(30 * time.Second)
	_, err = c.AdmitCaller("alice")
	require.NoError(t, err)

	clk.Advance(29 * time.Second)
	_, err = c.AdmitCaller("alice")
	assert.Error(t, err, "both submissions are still inside the window")

	clk.Advance(time.Second)
	_, err = c.AdmitCaller("alice")
	assert.NoError(t, err, "the first submission aged out")
}

func TestReservationCancelRefunds(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := admission.NewController(admission.Config{PerCallerLimit: 1, Window: time.Minute}, admission.WithClock(clk))

	r, err := c.AdmitCaller("alice")
	require.NoError(t, err)
	r.Cancel()
	r.Cancel()

	r, err = c.AdmitCaller("alice")
	require.NoError(t, err)
	r.Commit()
	r.Cancel() // no effect after commit

	_, err = c.AdmitCaller("alice")
	assert.Equal(t, model.KindRateLimited, model.KindOf(err))
}

func TestPruneDropsIdleCallers(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := admission.NewController(admission.DefaultConfig(), admission.WithClock(clk))
	for _, id := range []string{"a", "b", "c"} {
		_, err := c.AdmitCaller(id)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Stats().TrackedCallers)
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 3, c.Prune())
	assert.Equal(t, 0, c.Stats().TrackedCallers)
}

func TestPipelineCeilingFailsFast(t *testing.T) {
	c := admission.NewController(admission.Config{MaxPipelines: 2})

	a, err := c.TryAcquire(admission.TokenPipeline)
	require.NoError(t, err)
	b, err := c.TryAcquire(admission.TokenPipeline)
	require.NoError(t, err)

	_, err = c.TryAcquire(admission.TokenPipeline)
	assert.Equal(t, model.KindRateLimited, model.KindOf(err))
	assert.Equal(t, int64(2), c.Stats().ActivePipelines)

	// Releasing twice frees exactly one slot.
	a.Release()
	a.Release()
	assert.Equal(t, int64(1), c.Stats().ActivePipelines)

	d, err := c.TryAcquire(admission.TokenPipeline)
	require.NoError(t, err)
	_, err = c.TryAcquire(admission.TokenPipeline)
	assert.Error(t, err)

	b.Release()
	d.Release()
	assert.Equal(t, int64(0), c.Stats().ActivePipelines)
}

func TestAcquireWaitsForSlot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := admission.NewController(admission.Config{MaxCalls: 1})
	held, err := c.Acquire(context.Background(), admission.TokenCall)
	require.NoError(t, err)

	got := make(chan *admission.Token)
	go func() {
		tok, err := c.Acquire(context.Background(), admission.TokenCall)
		assert.NoError(t, err)
		got <- tok
	}()

	select {
	case <-got:
		t.Fatal("second call acquired a slot while the first was held")
	case <-time.After(20 * time.Millisecond):
	}
	held.Release()
	tok := <-got
	tok.Release()
	assert.Equal(t, int64(0), c.Stats().ActiveCalls)
}

func TestAcquireTimesOut(t *testing.T) {
	c := admission.NewController(admission.Config{MaxCalls: 1})
	held, err := c.Acquire(context.Background(), admission.TokenCall)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, admission.TokenCall)
	assert.Equal(t, model.KindTimeout, model.KindOf(err))
}

func TestUnknownKind(t *testing.T) {
	c := admission.NewController(admission.DefaultConfig())
	_, err := c.TryAcquire("disk")
	assert.Equal(t, model.KindFatal, model.KindOf(err))
	var nilToken *admission.Token
	assert.NotPanics(t, nilToken.Release)
}
