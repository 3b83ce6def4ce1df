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

package services

import (
	"context"
	"time"
)

// StartMaintenance runs the background upkeep of the service until ctx ends:
// the cache janitor sweeping expired artifacts every sweepEvery, and the
// pruning of idle caller rate windows every pruneEvery. The returned channel
// is closed once both loops have stopped.
func (s *ArtifactService) StartMaintenance(ctx context.Context, sweepEvery time.Duration, pruneEvery time.Duration) <-chan struct{} {
	janitor := s.Cache.StartJanitor(ctx, sweepEvery)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pruneEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				<-janitor
				return
			case <-ticker.C:
				if n := s.Admission.Prune(); n > 0 {
					s.Logger.Debug("pruned idle caller windows", "count", n)
				}
			}
		}
	}()
	return done
}

// Shutdown waits for running executions, cancelled ones included, so their
// uploaded media is cleaned up before the process exits.
func (s *ArtifactService) Shutdown(ctx context.Context) error {
	return s.Coordinator.Wait(ctx)
}
