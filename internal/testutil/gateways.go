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

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// Script hands out scripted outcomes in order. Once the script is exhausted
// every call receives Default.
type Script[T any] struct {
	mu       sync.Mutex
	outcomes []gateways.Outcome[T]
	calls    int
	Default  gateways.Outcome[T]
}

// Push appends outcomes to the script.
func (s *Script[T]) Push(outcomes ...gateways.Outcome[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcomes...)
}

// Calls returns how many outcomes were handed out.
func (s *Script[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Script[T]) next() gateways.Outcome[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.outcomes) == 0 {
		return s.Default
	}
	out := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return out
}

// wait blocks on gate, if any. It reports false when ctx ended first.
func wait(ctx context.Context, gate <-chan struct{}) bool {
	if gate == nil {
		return ctx.Err() == nil
	}
	select {
	case <-gate:
		return true
	case <-ctx.Done():
		return false
	}
}

// GetTestMetadata returns the metadata the fake metadata gateway serves.
func GetTestMetadata() model.VideoMetadata {
	return model.VideoMetadata{
		Title:        "How Raft Elects a Leader",
		ChannelName:  "Distributed Notes",
		Duration:     "PT4M13S",
		ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
	}
}

// FakeMetadata is an in-memory MetadataGateway.
type FakeMetadata struct {
	Script[model.VideoMetadata]
	// Gate, when set, holds every call until it is closed or the call's
	// context ends.
	Gate <-chan struct{}
}

func NewFakeMetadata() *FakeMetadata {
	out := &FakeMetadata{}
	out.Default = gateways.OK(GetTestMetadata())
	return out
}

func (f *FakeMetadata) Fetch(ctx context.Context, _ string) gateways.Outcome[model.VideoMetadata] {
	if !wait(ctx, f.Gate) {
		return gateways.Fail[model.VideoMetadata](gateways.StatusTransient, ctx.Err())
	}
	return f.next()
}

// FakeMedia is an in-memory MediaGateway that records every call.
type FakeMedia struct {
	Uploads Script[model.MediaHandle]
	Polls   Script[gateways.Unit]
	Deletes Script[gateways.Unit]

	// UploadGate and PollGate hold the matching calls when set.
	UploadGate <-chan struct{}
	PollGate   <-chan struct{}

	mu      sync.Mutex
	refs    []model.VideoReference
	deleted []model.MediaHandle
}

func NewFakeMedia() *FakeMedia {
	return &FakeMedia{
		Polls:   Script[gateways.Unit]{Default: gateways.OK(gateways.Unit{})},
		Deletes: Script[gateways.Unit]{Default: gateways.OK(gateways.Unit{})},
	}
}

func (f *FakeMedia) Upload(ctx context.Context, ref model.VideoReference) gateways.Outcome[model.MediaHandle] {
	f.mu.Lock()
	f.refs = append(f.refs, ref)
	f.mu.Unlock()
	if !wait(ctx, f.UploadGate) {
		return gateways.Fail[model.MediaHandle](gateways.StatusTransient, ctx.Err())
	}
	out := f.Uploads.next()
	if out.Status == gateways.StatusOK && out.Value.Name == "" {
		out.Value = HandleFor(ref.VideoID)
	}
	return out
}

func (f *FakeMedia) PollStatus(ctx context.Context, _ model.MediaHandle) gateways.Outcome[gateways.Unit] {
	if !wait(ctx, f.PollGate) {
		return gateways.Fail[gateways.Unit](gateways.StatusTransient, ctx.Err())
	}
	return f.Polls.next()
}

func (f *FakeMedia) Delete(_ context.Context, handle model.MediaHandle) gateways.Outcome[gateways.Unit] {
	f.mu.Lock()
	f.deleted = append(f.deleted, handle)
	f.mu.Unlock()
	return f.Deletes.next()
}

// Uploaded returns the references passed to Upload.
func (f *FakeMedia) Uploaded() []model.VideoReference {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.VideoReference(nil), f.refs...)
}

// Deleted returns the handles passed to Delete, one per call.
func (f *FakeMedia) Deleted() []model.MediaHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.MediaHandle(nil), f.deleted...)
}

// HandleFor is the handle FakeMedia issues for a video.
func HandleFor(videoID string) model.MediaHandle {
	return model.MediaHandle{
		Name:     "files/" + videoID,
		URI:      "https://generativelanguage.googleapis.com/v1beta/files/" + videoID,
		MIMEType: "video/mp4",
	}
}

// FakeGeneration is an in-memory GenerationGateway. Unscripted calls get a
// valid artifact for the requested kind.
type FakeGeneration struct {
	Script[string]
	Gate <-chan struct{}
	// IgnoreContext makes Gate hold calls even after their context ends,
	// like a provider client that does not honour cancellation.
	IgnoreContext bool

	mu       sync.Mutex
	requests []gateways.GenerationRequest
}

func NewFakeGeneration() *FakeGeneration {
	return &FakeGeneration{}
}

func (f *FakeGeneration) Generate(ctx context.Context, req gateways.GenerationRequest) gateways.Outcome[string] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.IgnoreContext && f.Gate != nil {
		<-f.Gate
	} else if !wait(ctx, f.Gate) {
		return gateways.Fail[string](gateways.StatusTransient, ctx.Err())
	}

	f.Script.mu.Lock()
	pending := len(f.Script.outcomes)
	f.Script.mu.Unlock()
	if pending > 0 {
		return f.next()
	}

	f.Script.mu.Lock()
	f.Script.calls++
	f.Script.mu.Unlock()
	raw, err := ValidOutput(req.Kind)
	if err != nil {
		return gateways.Fail[string](gateways.StatusFatal, err)
	}
	return gateways.OK(raw)
}

// Requests returns every generation request received.
func (f *FakeGeneration) Requests() []gateways.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateways.GenerationRequest(nil), f.requests...)
}

// ValidOutput returns a fenced JSON payload that parses into a valid
// artifact of the given kind.
func ValidOutput(kind model.Kind) (string, error) {
	var payload interface{}
	switch kind {
	case model.KindSummary:
		payload = model.GetExampleSummary()
	case model.KindQuiz:
		payload = model.GetExampleQuiz()
	default:
		return "", fmt.Errorf("no example for kind %q", kind)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}
