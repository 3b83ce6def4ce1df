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

// Package cloud provides components for interacting with Google Cloud services.
// This file creates and holds every client the application uses to talk to
// Google Cloud, and the gateway adapters built on top of them. A single
// ServiceClients value is created at startup and shared.
//
// Logic Flow:
//  1. `NewCloudServiceClients` is called at application startup with the
//     loaded configuration.
//  2. Clients for Storage, Pub/Sub, GenAI and the YouTube Data API are created.
//  3. Configured agent models are wrapped in rate limited models, and a
//     listener is created for each configured subscription.
//  4. The metadata, media and generation gateways are assembled from the
//     clients.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/genai"

	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
)

// ServiceClients is the central container of external clients.
type ServiceClients struct {
	StorageClient   *storage.Client                         // Client for Google Cloud Storage (GCS).
	PubsubClient    *pubsub.Client                          // Client for Google Cloud Pub/Sub.
	GenAIClient     *genai.Client                           // Client for the Gemini API or Vertex AI.
	PubSubListeners map[string]*PubSubListener              // Keyed by the logical name from the config.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel // Keyed by the logical name from the config.

	Metadata   gateways.MetadataGateway
	Media      gateways.MediaGateway
	Generation gateways.GenerationGateway
}

// Close releases the client connections.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
}

// NewGenAIClientConfig selects the GenAI backend from the configuration.
func NewGenAIClientConfig(config *Config) *genai.ClientConfig {
	if config.Gemini.Backend == "vertex" {
		return &genai.ClientConfig{
			Project:  config.Application.GoogleProjectId,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		}
	}
	return &genai.ClientConfig{
		APIKey:  config.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
}

// NewGenerateContentConfig builds the base generation config of a model.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(values.Temperature),
		TopP:            genai.Ptr(values.TopP),
		TopK:            genai.Ptr(values.TopK),
		MaxOutputTokens: values.MaxTokens,
		SafetySettings:  DefaultSafetySettings,
	}
	if values.SystemInstructions != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{NewTextPart(values.SystemInstructions)}}
	}
	return out
}

// NewCloudServiceClients creates every client and gateway from the
// configuration.
//
// Inputs:
//   - ctx: The root context.Context for the application, used to manage the lifecycle of the clients.
//   - config: A pointer to the loaded application configuration (`Config`).
//
// Outputs:
//   - *ServiceClients: A pointer to the fully initialized ServiceClients struct.
//   - error: An error if any of the clients fail to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	if config.Gemini.Backend == "vertex" {
		return nil, errors.New("the media gateway needs the Files API, which only the gemini backend serves")
	}
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()

	if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
		return cloud, fmt.Errorf("creating storage client: %w", err)
	}

	if len(config.TopicSubscriptions) > 0 {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, fmt.Errorf("creating pubsub client: %w", err)
		}
		for key, values := range config.TopicSubscriptions {
			timeout := time.Duration(values.TimeoutInSeconds) * time.Second
			cloud.PubSubListeners[key] = NewPubSubListener(cloud.PubsubClient, values.Name, timeout, nil)
		}
	}

	slog.Info("creating genai client", "backend", config.Gemini.Backend,
		"project", config.Application.GoogleProjectId, "location", config.Application.GoogleLocation)
	if cloud.GenAIClient, err = genai.NewClient(ctx, NewGenAIClientConfig(config)); err != nil {
		return cloud, fmt.Errorf("creating genai client: %w", err)
	}

	for key, values := range config.AgentModels {
		cloud.AgentModels[key] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, cloud.GenAIClient.Models, values.RateLimit)
	}

	agent, ok := cloud.AgentModels[config.Pipeline.GenerationModel]
	if !ok {
		return cloud, fmt.Errorf("generation model %q is not configured", config.Pipeline.GenerationModel)
	}
	if cloud.Generation, err = NewGeminiGeneration(agent, config.PromptTemplates); err != nil {
		return cloud, err
	}

	cloud.Media = NewGeminiMedia(cloud.GenAIClient.Files, NewGCSVideoSource(cloud.StorageClient, config.Storage))

	if cloud.Metadata, err = NewYouTubeMetadata(ctx, option.WithAPIKey(config.YouTube.APIKey)); err != nil {
		return cloud, err
	}
	return cloud, nil
}
