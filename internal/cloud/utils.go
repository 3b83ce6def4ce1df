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
// This file contains general-purpose utility functions that support the cloud package.
//
// Functions:
//   - fileExists: A simple helper to check if a file exists.
//   - LoadConfig: Implements a hierarchical configuration loader. It first reads a base
//     configuration file and then overwrites values with a second, environment-specific
//     file (e.g., .env.local.toml, .env.test.toml). The environment is determined by
//     an environment variable.
//   - GenerateMultiModalResponse: A wrapper for making calls to the GenAI model. It
//     records token usage and reports blocked responses as *BlockedError.
//   - NewTextPart, NewFileData: Simple factory functions for creating genai parts.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/BurntSushi/toml"
	"google.golang.org/genai"
)

// Cloud Constants define key strings used for configuration loading.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
)

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig provides a hierarchical configuration loading mechanism. It first loads a
// base configuration file and then merges or overwrites its values with an environment-specific
// configuration file. The paths and environment are determined by environment variables.
// Missing files are skipped; values not present in either file keep what config held.
//
// Inputs:
//   - config: The configuration to populate, usually from NewConfig.
//
// Outputs:
//   - error: A decode error naming the offending file.
func LoadConfig(config *Config) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	for _, fileName := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(fileName) {
			slog.Debug("configuration file not found, skipping", "file", fileName)
			continue
		}
		if _, err := toml.DecodeFile(fileName, config); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", fileName, err)
		}
		slog.Info("loaded configuration file", "file", fileName, "runtime", runtimeEnvironment)
	}
	return nil
}

// BlockedError reports a generation the model refused on safety grounds.
type BlockedError struct {
	Reason  string
	Message string
}

func (e *BlockedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("generation blocked (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("generation blocked (%s)", e.Reason)
}

// blockedFinishReasons are the finish reasons that mean the output was
// withheld by safety filtering.
var blockedFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonSafety:            true,
	genai.FinishReasonBlocklist:         true,
	genai.FinishReasonProhibitedContent: true,
	genai.FinishReasonSPII:              true,
}

// GenerateMultiModalResponse executes a multi-modal request against a
// Generative AI model and returns the concatenated text of the response.
// Retrying is left to the caller.
//
// Inputs:
//   - ctx: The context for the request, which controls cancellation and tracing.
//   - inputTokenCounter: An OpenTelemetry counter for prompt tokens used.
//   - outputTokenCounter: An OpenTelemetry counter for response tokens generated.
//   - model: The rate-limited, quota-aware generative model to use.
//   - contents: The prompt contents (text and file references).
//   - config: Per-request overrides of the model's generation config, may be nil.
//
// Outputs:
//   - string: The concatenated text content from the model's response.
//   - error: The API error, or *BlockedError when safety filtering withheld the output.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	model *QuotaAwareGenerativeAIModel,
	contents []*genai.Content,
	config *genai.GenerateContentConfig) (value string, err error) {

	resp, err := model.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", err
	}

	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &BlockedError{Reason: string(resp.PromptFeedback.BlockReason), Message: resp.PromptFeedback.BlockReasonMessage}
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if blockedFinishReasons[candidate.FinishReason] {
			return "", &BlockedError{Reason: string(candidate.FinishReason), Message: candidate.FinishMessage}
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String(), nil
}

// NewTextPart creates a text part.
func NewTextPart(in string) *genai.Part {
	return &genai.Part{Text: in}
}

// NewFileData creates a part referencing uploaded media by URI.
func NewFileData(uri string, mimeType string) *genai.Part {
	return &genai.Part{FileData: &genai.FileData{FileURI: uri, MIMEType: mimeType}}
}
