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

package commands

import (
	"context"
	"log/slog"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// ArtifactRequester is the consumer-facing entry point of the artifact
// service.
type ArtifactRequester interface {
	Request(ctx context.Context, callerID string, videoID string, language string, kind model.Kind) (*model.Artifact, error)
}

// ArtifactPrefetch warms the result cache for a decoded prefetch message by
// requesting the artifact like any other caller would.
type ArtifactPrefetch struct {
	cor.BaseCommand
	requester ArtifactRequester
}

// NewArtifactPrefetch is the constructor for the ArtifactPrefetch command.
func NewArtifactPrefetch(name string, requester ArtifactRequester) *ArtifactPrefetch {
	out := &ArtifactPrefetch{BaseCommand: *cor.NewBaseCommand(name), requester: requester}
	out.InputParamName = GetPrefetchMessageParameterName()
	return out
}

func (p *ArtifactPrefetch) Execute(chCtx cor.Context) {
	msg := chCtx.Get(p.GetInputParam()).(*model.PrefetchMessage)

	kind, err := msg.ArtifactKind()
	if err != nil {
		p.Fail(chCtx, model.NewError(model.KindInvalidInput, "prefetch", err))
		return
	}

	artifact, err := p.requester.Request(chCtx.GetContext(), msg.Caller(), msg.VideoID, msg.Language, kind)
	if err != nil {
		p.Fail(chCtx, err)
		return
	}
	slog.Info("artifact prefetched", "fingerprint", artifact.Fingerprint, "video_id", msg.VideoID, "kind", string(kind))
	p.Succeed(chCtx, artifact)
}
