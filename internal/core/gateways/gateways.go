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

// Package gateways defines the narrow contracts the artifact pipeline uses to
// reach external systems: video metadata, media upload and processing, and
// content generation.
//
// Gateway calls do not signal expected outcomes through error values alone.
// Each call returns an Outcome, a tagged result whose Status says which of the
// documented cases occurred. Callers switch over Status and handle every case
// they can receive; any status outside that set is treated as Fatal.
package gateways

import (
	"context"
	"fmt"

	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// Status discriminates an Outcome.
type Status int

const (
	// StatusOK is a successful call. For PollStatus it means the media is active.
	StatusOK Status = iota
	StatusNotFound
	StatusRejected
	StatusPending
	StatusFailed
	StatusRateLimited
	StatusContentBlocked
	StatusTransient
	StatusIgnorable
	StatusFatal
)

var statusNames = map[Status]string{
	StatusOK:             "OK",
	StatusNotFound:       "NotFound",
	StatusRejected:       "Rejected",
	StatusPending:        "Pending",
	StatusFailed:         "Failed",
	StatusRateLimited:    "RateLimited",
	StatusContentBlocked: "ContentBlocked",
	StatusTransient:      "Transient",
	StatusIgnorable:      "Ignorable",
	StatusFatal:          "Fatal",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is the tagged result of a gateway call. Value is meaningful only
// for StatusOK; Err carries the provider detail for every other status.
type Outcome[T any] struct {
	Status Status
	Value  T
	Err    error
}

// OK builds a successful outcome.
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Status: StatusOK, Value: v}
}

// Fail builds a non-success outcome.
func Fail[T any](status Status, err error) Outcome[T] {
	return Outcome[T]{Status: status, Err: err}
}

// Cause returns Err, or a descriptive error when none was supplied.
func (o Outcome[T]) Cause() error {
	if o.Err != nil {
		return o.Err
	}
	return fmt.Errorf("gateway returned %s", o.Status)
}

// Unit is the value type of outcomes that carry no payload.
type Unit struct{}

// GenerationRequest is the input of a generation call.
type GenerationRequest struct {
	Handle   model.MediaHandle
	Language string
	Kind     model.Kind
	Metadata model.VideoMetadata
	// Structured asks the provider for machine-parseable (JSON) output.
	Structured bool
}

// MetadataGateway looks up video metadata.
// Statuses: OK, NotFound, Transient.
type MetadataGateway interface {
	Fetch(ctx context.Context, videoID string) Outcome[model.VideoMetadata]
}

// MediaGateway uploads media for processing and manages its lifetime.
//
// Upload statuses: OK, Rejected, Transient.
// PollStatus statuses: OK (active), Pending, Failed, Transient.
// Delete statuses: OK, Ignorable, Transient.
type MediaGateway interface {
	Upload(ctx context.Context, ref model.VideoReference) Outcome[model.MediaHandle]
	PollStatus(ctx context.Context, handle model.MediaHandle) Outcome[Unit]
	Delete(ctx context.Context, handle model.MediaHandle) Outcome[Unit]
}

// GenerationGateway produces raw artifact text from processed media.
// Statuses: OK, RateLimited, ContentBlocked, Transient.
type GenerationGateway interface {
	Generate(ctx context.Context, req GenerationRequest) Outcome[string]
}

// KindFor maps a non-success status to the error taxonomy. Pending and
// Ignorable are not failures and map to Fatal if they reach this point.
func KindFor(status Status) model.ErrorKind {
	switch status {
	case StatusNotFound:
		return model.KindNotFound
	case StatusRateLimited:
		return model.KindRateLimited
	case StatusContentBlocked:
		return model.KindContentBlocked
	case StatusTransient:
		return model.KindTransient
	}
	return model.KindFatal
}
