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
// This file implements the generation gateway on top of Gemini. A request is
// rendered into a per-kind prompt, sent together with a reference to the
// uploaded media, and the raw text of the answer is returned for the pipeline
// to parse.
//
// Logic Flow:
//  1. The prompt template for the requested kind is executed with the video
//     metadata, the target language and a JSON example of the expected shape.
//  2. When structured output is requested, the JSON response MIME type and the
//     kind's response schema are set on the request.
//  3. The request goes through the quota aware model, which waits for a
//     rate limiter token first.
//  4. Errors and safety blocks are mapped onto gateway statuses.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// GeminiGeneration is the Gemini backed gateways.GenerationGateway.
type GeminiGeneration struct {
	model        *QuotaAwareGenerativeAIModel
	templates    map[model.Kind]*template.Template
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
}

// NewGeminiGeneration parses the prompt templates and binds them to a model.
func NewGeminiGeneration(agent *QuotaAwareGenerativeAIModel, prompts PromptTemplates) (*GeminiGeneration, error) {
	templates := make(map[model.Kind]*template.Template)
	for kind, text := range map[model.Kind]string{
		model.KindSummary: prompts.SummaryPrompt,
		model.KindQuiz:    prompts.QuizPrompt,
	} {
		tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parsing %s prompt template: %w", kind, err)
		}
		templates[kind] = tmpl
	}

	meter := otel.Meter("github.com/Akash-916024/ai-note-taker/internal/cloud")
	inputTokens, _ := meter.Int64Counter("generation.tokens.input")
	outputTokens, _ := meter.Int64Counter("generation.tokens.output")
	return &GeminiGeneration{
		model:        agent,
		templates:    templates,
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
	}, nil
}

// Generate asks the model for the artifact described by req.
func (g *GeminiGeneration) Generate(ctx context.Context, req gateways.GenerationRequest) gateways.Outcome[string] {
	prompt, err := g.Prompt(req)
	if err != nil {
		return gateways.Fail[string](gateways.StatusFatal, err)
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{
			NewFileData(req.Handle.URI, req.Handle.MIMEType),
			NewTextPart(prompt),
		},
	}}

	var override *genai.GenerateContentConfig
	if req.Structured {
		override = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   ResponseSchema(req.Kind),
		}
	}

	text, err := GenerateMultiModalResponse(ctx, g.inputTokens, g.outputTokens, g.model, contents, override)
	if err != nil {
		return gateways.Fail[string](generationStatus(err), err)
	}
	return gateways.OK(text)
}

// generationStatus narrows the shared mapping to the statuses a generation
// call may return.
func generationStatus(err error) gateways.Status {
	switch status := statusFor(err); status {
	case gateways.StatusRateLimited, gateways.StatusContentBlocked, gateways.StatusTransient:
		return status
	}
	return gateways.StatusFatal
}

// Prompt renders the prompt for req.
func (g *GeminiGeneration) Prompt(req gateways.GenerationRequest) (string, error) {
	tmpl, ok := g.templates[req.Kind]
	if !ok {
		return "", fmt.Errorf("no prompt template for kind %q", req.Kind)
	}
	example, err := exampleJSON(req.Kind)
	if err != nil {
		return "", err
	}
	params := map[string]string{
		"LANGUAGE":       req.Language,
		"TITLE":          req.Metadata.Title,
		"CHANNEL":        req.Metadata.ChannelName,
		"QUESTION_COUNT": strconv.Itoa(model.QuizQuestionCount),
		"OPTION_COUNT":   strconv.Itoa(model.QuizOptionCount),
		"EXAMPLE_JSON":   example,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", req.Kind, err)
	}
	return buf.String(), nil
}

func exampleJSON(kind model.Kind) (string, error) {
	var example interface{}
	switch kind {
	case model.KindSummary:
		example = model.GetExampleSummary()
	case model.KindQuiz:
		example = model.GetExampleQuiz()
	default:
		return "", fmt.Errorf("no example for kind %q", kind)
	}
	out, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ResponseSchema returns the structured output schema of an artifact kind.
func ResponseSchema(kind model.Kind) *genai.Schema {
	switch kind {
	case model.KindSummary:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"summary":    {Type: genai.TypeString},
				"key_points": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required:         []string{"summary"},
			PropertyOrdering: []string{"summary", "key_points"},
		}
	case model.KindQuiz:
		question := &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"ordinal":  {Type: genai.TypeInteger},
				"question": {Type: genai.TypeString},
				"options": {
					Type:     genai.TypeArray,
					Items:    &genai.Schema{Type: genai.TypeString},
					MinItems: genai.Ptr[int64](model.QuizOptionCount),
					MaxItems: genai.Ptr[int64](model.QuizOptionCount),
				},
				"correct_option_index": {
					Type:    genai.TypeInteger,
					Minimum: genai.Ptr[float64](0),
					Maximum: genai.Ptr[float64](model.QuizOptionCount - 1),
				},
				"explanation": {Type: genai.TypeString},
			},
			Required:         []string{"ordinal", "question", "options", "correct_option_index", "explanation"},
			PropertyOrdering: []string{"ordinal", "question", "options", "correct_option_index", "explanation"},
		}
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"questions": {
					Type:     genai.TypeArray,
					Items:    question,
					MinItems: genai.Ptr[int64](model.QuizQuestionCount),
					MaxItems: genai.Ptr[int64](model.QuizQuestionCount),
				},
			},
			Required: []string{"questions"},
		}
	}
	return nil
}
