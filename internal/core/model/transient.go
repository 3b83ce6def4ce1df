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

// Package model defines the core data structures shared by every layer of the
// artifact pipeline. This file holds transient message shapes that only exist
// while a request is moving through the system and are never cached.
package model

import (
	"fmt"
	"strings"
)

// PrefetchMessage is the JSON body of a cache warm-up message received from
// the prefetch subscription.
type PrefetchMessage struct {
	VideoID  string `json:"video_id"`
	Language string `json:"language"`
	Kind     string `json:"kind"`
	CallerID string `json:"caller_id,omitempty"`
}

// DefaultPrefetchCaller is the admission identity used for prefetch messages
// that do not name a caller.
const DefaultPrefetchCaller = "prefetch"

// Caller returns the admission identity for the message.
func (m *PrefetchMessage) Caller() string {
	if strings.TrimSpace(m.CallerID) == "" {
		return DefaultPrefetchCaller
	}
	return m.CallerID
}

// ArtifactKind parses the requested kind.
func (m *PrefetchMessage) ArtifactKind() (Kind, error) {
	if m.Kind == "" {
		return "", fmt.Errorf("prefetch message for %q has no kind", m.VideoID)
	}
	return ParseKind(m.Kind)
}
