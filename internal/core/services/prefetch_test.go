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

// This file tests the prefetch path end to end: a Pub/Sub message body is
// run through the prefetch workflow on top of a real ArtifactService, and
// the artifact it warms is then served from the cache.
package services_test

import (
	"context"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
	test "github.com/Akash-916024/ai-note-taker/internal/testutil"
)

func TestPrefetchWarmsCache(t *testing.T) {
	f := newFixture(t)

	// Run the message through the same chain the listener uses.
	chCtx := cor.NewBaseContextWith(context.Background())
	chCtx.Add(cor.CtxIn, test.GetTestPrefetchMessageText())
	workflow.NewPrefetchWorkflow(f.service).Execute(chCtx)
	assert.NoError(t, chCtx.Err())
	assert.Equal(t, f.metadata.Calls(), 1)

	// The prefetch caller's slot is used; the artifact is now cached.
	assert.Equal(t, f.service.Admission.Stats().TrackedCallers, 1)
	artifact, err := f.service.Request(context.Background(), "viewer", "dQw4w9WgXcQ", "en", model.KindSummary)
	assert.NoError(t, err)
	assert.NotNil(t, artifact)
	assert.Equal(t, f.metadata.Calls(), 1)
	assert.Equal(t, artifact.VideoID, "dQw4w9WgXcQ")
}

func TestPrefetchRejectsBadMessage(t *testing.T) {
	f := newFixture(t)

	chCtx := cor.NewBaseContextWith(context.Background())
	chCtx.Add(cor.CtxIn, `{"video_id": "dQw4w9WgXcQ", "language": "en", "kind": "essay"}`)
	workflow.NewPrefetchWorkflow(f.service).Execute(chCtx)

	assert.Error(t, chCtx.Err())
	assert.True(t, model.KindOf(chCtx.Err()) == model.KindInvalidInput)
	assert.Equal(t, f.metadata.Calls(), 0)
}
