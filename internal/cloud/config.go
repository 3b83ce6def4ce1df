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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings
// for the artifact pipeline, the result cache, admission control, the Google
// Cloud services the gateways talk to, and prompt templates.
//
// Structs:
//   - Pipeline: Stage timeouts, the overall deadline, poll and retry schedules.
//   - Cache: Result cache capacity, TTL and sweep interval.
//   - Admission: Concurrency ceilings and the per-caller rate window.
//   - Languages: The supported target languages.
//   - Storage: Where the source videos live.
//   - YouTube, Gemini: Credentials and backend selection.
//   - PromptTemplates: The per-kind generation prompts.
//   - VertexAiLLMModel: Configuration for a generative model.
//   - TopicSubscription: Configuration for a single Pub/Sub topic subscription.
//   - Telemetry: Whether traces and metrics are exported.
//   - Config: The top-level struct that aggregates all other configuration structs.
//
// Durations are written as strings in TOML, e.g. metadata_timeout = "5s".
package cloud

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// DefaultSafetySettings blocks medium and higher risk content in every
// category. Blocked generations surface to callers as ContentBlocked.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
}

// Pipeline holds the timing of one pipeline execution.
type Pipeline struct {
	OverallDeadline      time.Duration `toml:"overall_deadline"`       // Wall clock budget of a whole execution.
	MetadataTimeout      time.Duration `toml:"metadata_timeout"`       // Metadata stage, retries included.
	UploadBaseTimeout    time.Duration `toml:"upload_base_timeout"`    // Fixed upload allowance.
	UploadPerMinute      time.Duration `toml:"upload_per_minute"`      // Upload allowance per minute of media.
	UploadMaxTimeout     time.Duration `toml:"upload_max_timeout"`     // Hard cap of the upload stage.
	PollInitialInterval  time.Duration `toml:"poll_initial_interval"`  // First wait of the processing poll.
	PollMaxInterval      time.Duration `toml:"poll_max_interval"`      // Longest wait of the processing poll.
	PollMultiplier       float64       `toml:"poll_multiplier"`        // Growth of the poll wait.
	PollDeadline         time.Duration `toml:"poll_deadline"`          // Processing poll deadline.
	GenerationTimeout    time.Duration `toml:"generation_timeout"`     // Each generation attempt.
	CleanupTimeout       time.Duration `toml:"cleanup_timeout"`        // Media delete, retries included.
	RetryAttempts        int           `toml:"retry_attempts"`         // Attempts per stage call on transient errors.
	RetryInitialInterval time.Duration `toml:"retry_initial_interval"` // First retry wait.
	RetryMaxInterval     time.Duration `toml:"retry_max_interval"`     // Longest retry wait.
	RetryMultiplier      float64       `toml:"retry_multiplier"`       // Growth of the retry wait.
	GenerationModel      string        `toml:"generation_model"`       // Key into AgentModels.
}

// Cache configures the result cache.
type Cache struct {
	Capacity        int           `toml:"capacity"`
	TTL             time.Duration `toml:"ttl"`
	JanitorInterval time.Duration `toml:"janitor_interval"`
}

// Admission configures the admission controller.
type Admission struct {
	MaxPipelines   int           `toml:"max_pipelines"`    // Concurrently running executions.
	MaxCalls       int           `toml:"max_calls"`        // Concurrent external calls.
	PerCallerLimit int           `toml:"per_caller_limit"` // Accepted submissions per caller per window.
	Window         time.Duration `toml:"window"`           // Rolling rate window.
	PruneInterval  time.Duration `toml:"prune_interval"`   // How often idle caller windows are dropped.
}

// Languages lists the supported target language codes.
type Languages struct {
	Supported []string `toml:"supported"`
}

// Storage locates the source videos: gs://<video_bucket>/<object_prefix><videoId><object_suffix>.
type Storage struct {
	VideoBucket  string `toml:"video_bucket"`
	ObjectPrefix string `toml:"object_prefix"`
	ObjectSuffix string `toml:"object_suffix"`
}

// YouTube configures the metadata gateway.
type YouTube struct {
	APIKey string `toml:"api_key"`
}

// Gemini selects the generative AI backend. The Files API used for media
// upload is only served by the Gemini API backend.
type Gemini struct {
	Backend string `toml:"backend"` // "gemini" or "vertex".
	APIKey  string `toml:"api_key"`
}

// PromptTemplates holds the text/template prompts for each artifact kind.
type PromptTemplates struct {
	SummaryPrompt string `toml:"summary"`
	QuizPrompt    string `toml:"quiz"`
}

// VertexAiLLMModel represents the configuration for a generative model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The name of the model.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter.
	TopP               float32 `toml:"top_p"`               // The top_p parameter.
	TopK               float32 `toml:"top_k"`               // The top_k parameter.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of output tokens.
	RateLimit          int     `toml:"rate_limit"`          // Requests per second.
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // How long one message may take.
}

// Telemetry controls OpenTelemetry export.
type Telemetry struct {
	Enabled        bool          `toml:"enabled"`
	MetricInterval time.Duration `toml:"metric_interval"`
}

// PrefetchSubscription is the TopicSubscriptions key of the cache warm-up
// subscription.
const PrefetchSubscription = "PrefetchTopic"

// Config represents the overall configuration for the application, loaded from TOML files.
type Config struct {
	Application struct {
		Name            string        `toml:"name"`              // The name of the application.
		GoogleProjectId string        `toml:"google_project_id"` // The Google Cloud project ID.
		GoogleLocation  string        `toml:"location"`          // The Google Cloud location.
		LogLevel        string        `toml:"log_level"`         // debug, info, warn or error.
		HTTPAddress     string        `toml:"http_address"`      // Listen address of the API server.
		ShutdownTimeout time.Duration `toml:"shutdown_timeout"`  // Grace period on SIGINT/SIGTERM.
	} `toml:"application"`
	Pipeline           Pipeline                     `toml:"pipeline"`
	Cache              Cache                        `toml:"cache"`
	Admission          Admission                    `toml:"admission"`
	Languages          Languages                    `toml:"languages"`
	Storage            Storage                      `toml:"storage"`
	YouTube            YouTube                      `toml:"youtube"`
	Gemini             Gemini                       `toml:"gemini"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name (e.g., "PrefetchTopic").
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`        // Keyed by a logical name (e.g., "artifact-flash").
	Telemetry          Telemetry                    `toml:"telemetry"`
}

// NewConfig creates a Config pre-filled with the documented defaults. Values
// read by LoadConfig overwrite them.
func NewConfig() *Config {
	c := &Config{
		Pipeline: Pipeline{
			OverallDeadline:      60 * time.Second,
			MetadataTimeout:      5 * time.Second,
			UploadBaseTimeout:    10 * time.Second,
			UploadPerMinute:      2 * time.Second,
			UploadMaxTimeout:     40 * time.Second,
			PollInitialInterval:  500 * time.Millisecond,
			PollMaxInterval:      4 * time.Second,
			PollMultiplier:       2,
			PollDeadline:         30 * time.Second,
			GenerationTimeout:    20 * time.Second,
			CleanupTimeout:       15 * time.Second,
			RetryAttempts:        3,
			RetryInitialInterval: 200 * time.Millisecond,
			RetryMaxInterval:     2 * time.Second,
			RetryMultiplier:      2,
			GenerationModel:      "artifact-flash",
		},
		Cache: Cache{
			Capacity:        100,
			TTL:             time.Hour,
			JanitorInterval: time.Minute,
		},
		Admission: Admission{
			MaxPipelines:   8,
			MaxCalls:       16,
			PerCallerLimit: 10,
			Window:         time.Minute,
			PruneInterval:  5 * time.Minute,
		},
		Languages: Languages{Supported: append([]string(nil), model.DefaultLanguages...)},
		Storage:   Storage{ObjectPrefix: "videos/", ObjectSuffix: ".mp4"},
		Gemini:    Gemini{Backend: "gemini"},
		PromptTemplates: PromptTemplates{
			SummaryPrompt: DefaultSummaryPrompt,
			QuizPrompt:    DefaultQuizPrompt,
		},
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels: map[string]VertexAiLLMModel{
			"artifact-flash": {Model: "gemini-2.0-flash", Temperature: 0.2, TopP: 0.95, TopK: 40, MaxTokens: 8192, RateLimit: 5},
		},
		Telemetry: Telemetry{MetricInterval: time.Minute},
	}
	c.Application.Name = "ai-note-taker"
	c.Application.LogLevel = "info"
	c.Application.HTTPAddress = ":8080"
	c.Application.ShutdownTimeout = 10 * time.Second
	return c
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	atLeastOne := func(name string, n int) {
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, n))
		}
	}

	positive("pipeline.overall_deadline", c.Pipeline.OverallDeadline)
	positive("pipeline.metadata_timeout", c.Pipeline.MetadataTimeout)
	positive("pipeline.upload_base_timeout", c.Pipeline.UploadBaseTimeout)
	positive("pipeline.poll_initial_interval", c.Pipeline.PollInitialInterval)
	positive("pipeline.poll_deadline", c.Pipeline.PollDeadline)
	positive("pipeline.generation_timeout", c.Pipeline.GenerationTimeout)
	positive("pipeline.cleanup_timeout", c.Pipeline.CleanupTimeout)
	positive("pipeline.retry_initial_interval", c.Pipeline.RetryInitialInterval)
	atLeastOne("pipeline.retry_attempts", c.Pipeline.RetryAttempts)
	if c.Pipeline.UploadMaxTimeout < c.Pipeline.UploadBaseTimeout {
		errs = append(errs, fmt.Errorf("pipeline.upload_max_timeout %s is below upload_base_timeout %s",
			c.Pipeline.UploadMaxTimeout, c.Pipeline.UploadBaseTimeout))
	}
	if c.Pipeline.PollMultiplier < 1 || c.Pipeline.RetryMultiplier < 1 {
		errs = append(errs, errors.New("pipeline multipliers must be at least 1"))
	}
	if _, ok := c.AgentModels[c.Pipeline.GenerationModel]; !ok {
		errs = append(errs, fmt.Errorf("pipeline.generation_model %q is not in agent_models", c.Pipeline.GenerationModel))
	}

	atLeastOne("cache.capacity", c.Cache.Capacity)
	positive("cache.ttl", c.Cache.TTL)
	positive("cache.janitor_interval", c.Cache.JanitorInterval)

	atLeastOne("admission.max_pipelines", c.Admission.MaxPipelines)
	atLeastOne("admission.max_calls", c.Admission.MaxCalls)
	atLeastOne("admission.per_caller_limit", c.Admission.PerCallerLimit)
	positive("admission.window", c.Admission.Window)
	positive("admission.prune_interval", c.Admission.PruneInterval)

	if len(c.Languages.Supported) == 0 {
		errs = append(errs, errors.New("languages.supported is empty"))
	}
	switch c.Gemini.Backend {
	case "gemini", "vertex":
	default:
		errs = append(errs, fmt.Errorf("gemini.backend must be gemini or vertex, got %q", c.Gemini.Backend))
	}
	return errors.Join(errs...)
}
