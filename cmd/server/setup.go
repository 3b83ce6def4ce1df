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

// Package main contains the setup and initialization logic for the
// application's state. This file creates the centralized state manager
// holding the configuration, the Google Cloud clients and the artifact
// service built on top of them.
//
// Functions:
//   - SetupOS: Points the configuration loader at the configs directory and
//     the runtime, unless the environment already does.
//   - GetConfig: Loads and validates the configuration once.
//   - InitState: Creates the cloud clients and the artifact service.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
	"github.com/Akash-916024/ai-note-taker/internal/core/services"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
)

// StateManager holds all the shared dependencies of the server.
type StateManager struct {
	once      sync.Once
	config    *cloud.Config
	configErr error
	cloud     *cloud.ServiceClients
	artifacts *services.ArtifactService
}

var state = &StateManager{}

// SetupOS sets the environment variables the configuration loader reads,
// keeping any value the operator already exported.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig loads the configuration on first use and returns it.
func GetConfig() (*cloud.Config, error) {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			state.configErr = fmt.Errorf("failed to setup environment: %w", err)
			return
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			state.configErr = err
			return
		}
		if err := config.Validate(); err != nil {
			state.configErr = fmt.Errorf("invalid configuration: %w", err)
			return
		}
		state.config = config
	})
	return state.config, state.configErr
}

// InitState creates the Google Cloud clients and the artifact service.
//
// Inputs:
//   - ctx: The root context, bounding client creation.
//   - config: The loaded configuration.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients
	state.artifacts = services.NewArtifactService(config, workflow.Gateways{
		Metadata:   cloudClients.Metadata,
		Media:      cloudClients.Media,
		Generation: cloudClients.Generation,
	})
	return nil
}
