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

// Package main contains the logic for setting up and starting the Pub/Sub
// message listeners. The prefetch listener warms the result cache for
// videos announced on its subscription.
package main

import (
	"context"
	"log/slog"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
	"github.com/Akash-916024/ai-note-taker/internal/core/services"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
)

// SetupListeners attaches the prefetch workflow to the prefetch listener
// and starts it. It returns the listeners that were started so the caller
// can wait for them on shutdown.
func SetupListeners(ctx context.Context, cloudClients *cloud.ServiceClients, artifacts *services.ArtifactService) []*cloud.PubSubListener {
	listener, ok := cloudClients.PubSubListeners[cloud.PrefetchSubscription]
	if !ok {
		slog.Info("no prefetch subscription configured, cache warm-up disabled")
		return nil
	}
	listener.SetCommand(workflow.NewPrefetchWorkflow(artifacts))
	listener.Listen(ctx)
	return []*cloud.PubSubListener{listener}
}
