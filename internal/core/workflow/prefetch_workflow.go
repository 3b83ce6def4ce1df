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

package workflow

import (
	"github.com/Akash-916024/ai-note-taker/internal/core/commands"
	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
)

// PrefetchWorkflow warms the result cache from Pub/Sub messages. It is
// attached to the prefetch subscription's listener, which places the raw
// message body in cor.CtxIn.
type PrefetchWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// NewPrefetchWorkflow builds the prefetch chain on top of requester, usually
// the ArtifactService.
func NewPrefetchWorkflow(requester commands.ArtifactRequester) *PrefetchWorkflow {
	chain := cor.NewBaseChain("prefetch-chain")
	chain.AddCommand(commands.NewPrefetchMessageReader("prefetch-message-reader"))
	chain.AddCommand(commands.NewArtifactPrefetch("prefetch-artifact", requester))
	return &PrefetchWorkflow{
		BaseCommand: *cor.NewBaseCommand("prefetch-workflow"),
		chain:       chain,
	}
}

func (p *PrefetchWorkflow) Execute(chCtx cor.Context) {
	p.chain.Execute(chCtx)
}
