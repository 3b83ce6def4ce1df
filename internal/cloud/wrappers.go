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
// This file implements a wrapper around the Generative AI models service that
// adds client-side rate limiting, so the application stays inside the
// model's request quota instead of collecting 429s.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: A named model with its generation config
//     and a token bucket limiter.
//
// Functions:
//   - NewQuotaAwareModel: A constructor to create a new instance of the wrapped model.
//   - GenerateContent: Waits for a token, then calls the model.
package cloud

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the part of genai.Models the wrapper uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel is a decorator around a generative model that
// enforces a request rate.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig // Base generation config of the model.
	ModelName               string
	ModelHandle             ContentGenerator
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel creates a rate limited model.
//
// Inputs:
//   - config: The base generation config.
//   - name: The model name, e.g. "gemini-2.0-flash".
//   - handle: Usually genai.Client.Models.
//   - requestsPerSecond: The sustained request rate, also used as the burst.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: A pointer to the newly created wrapper.
func NewQuotaAwareModel(config *genai.GenerateContentConfig, name string, handle ContentGenerator, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: config,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond),
	}
}

// GenerateContent waits until the limiter admits the request, or ctx ends,
// then calls the model. Fields set in override replace the base config's
// response format for this request only.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, contents []*genai.Content, override *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrQuotaWait, q.ModelName, err)
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, contents, q.requestConfig(override))
}

func (q *QuotaAwareGenerativeAIModel) requestConfig(override *genai.GenerateContentConfig) *genai.GenerateContentConfig {
	if override == nil {
		return q.GenerativeContentConfig
	}
	out := genai.GenerateContentConfig{}
	if q.GenerativeContentConfig != nil {
		out = *q.GenerativeContentConfig
	}
	if override.ResponseMIMEType != "" {
		out.ResponseMIMEType = override.ResponseMIMEType
	}
	if override.ResponseSchema != nil {
		out.ResponseSchema = override.ResponseSchema
	}
	if override.SystemInstruction != nil {
		out.SystemInstruction = override.SystemInstruction
	}
	return &out
}
