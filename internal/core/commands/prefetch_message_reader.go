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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// entry point of the prefetch workflow.
//
// Logic Flow:
// Prefetch messages arrive on a Pub/Sub subscription and ask for an artifact
// to be produced ahead of any caller.
//
//  1. The raw message body is read from the context as a JSON string.
//  2. It is decoded into a model.PrefetchMessage.
//  3. Messages without a video id are rejected here so they are not retried.
//  4. The message is stored for the ArtifactPrefetch command.
package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// PrefetchMessageReader decodes a prefetch message.
type PrefetchMessageReader struct {
	cor.BaseCommand
}

// NewPrefetchMessageReader is the constructor for the PrefetchMessageReader command.
func NewPrefetchMessageReader(name string) *PrefetchMessageReader {
	return &PrefetchMessageReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// GetPrefetchMessageParameterName is the context key of the decoded
// *model.PrefetchMessage.
func GetPrefetchMessageParameterName() string {
	return "__PREFETCH_MESSAGE__"
}

func (c *PrefetchMessageReader) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var msg model.PrefetchMessage
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		c.Fail(context, model.NewError(model.KindInvalidInput, "prefetch", fmt.Errorf("failed to unmarshal prefetch message: %w", err)))
		return
	}
	if strings.TrimSpace(msg.VideoID) == "" {
		c.Fail(context, model.Errorf(model.KindInvalidInput, "prefetch", "prefetch message has no video_id"))
		return
	}

	context.Add(GetPrefetchMessageParameterName(), &msg)
	c.Succeed(context, &msg)
}
