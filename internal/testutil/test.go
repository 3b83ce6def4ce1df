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

// Package test provides utility functions and fakes to support the application's
// test suite. It helps in setting up a consistent test environment, loading
// test-specific configurations, and providing sample data and scripted gateways
// for workflows and services.
package test

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
)

// StateManager caches the test configuration so the files are read once per
// test binary.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// GetTestPrefetchMessageText returns a prefetch request as it arrives on the
// prefetch subscription.
func GetTestPrefetchMessageText() string {
	return `{
  "video_id": "dQw4w9WgXcQ",
  "language": "en",
  "kind": "summary",
  "caller_id": "warmup-job"
}`
}

// NewLogger returns the logger tests hand to components.
func NewLogger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}

// findConfigDir walks up from the working directory to the module root and
// returns its configs directory, or "" when there is none.
func findConfigDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			configs := filepath.Join(dir, "configs")
			if _, err := os.Stat(configs); err == nil {
				return configs
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at the module's configs directory
// and the "test" runtime, so `.env.test.toml` overrides the base file.
func SetupOS() (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, findConfigDir()); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig returns the test configuration, loading it on first use. Tests
// that change settings must copy it first.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		config := cloud.NewConfig()
		if err := SetupOS(); err != nil {
			slog.Error("failed to setup environment for test", "error", err)
		} else if err := cloud.LoadConfig(config); err != nil {
			slog.Error("failed to load test configuration", "error", err)
		}
		state.config = config
	})
	return state.config
}
