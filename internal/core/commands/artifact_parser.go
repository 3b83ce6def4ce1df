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

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, from model output.
func StripCodeFences(raw string) string {
	out := strings.TrimSpace(raw)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	if nl := strings.IndexByte(out, '\n'); nl >= 0 {
		out = out[nl+1:]
	} else {
		out = strings.TrimPrefix(out, "json")
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

// ParseArtifact turns raw generation output into a validated artifact for
// req. Output that does not decode or fails structural validation is a
// MalformedResult.
func ParseArtifact(req *model.ArtifactRequest, metadata model.VideoMetadata, raw string, generatedAt time.Time) (*model.Artifact, error) {
	body := []byte(StripCodeFences(raw))
	if len(body) == 0 {
		return nil, model.Errorf(model.KindMalformedResult, StageGeneration, "empty generation result")
	}

	artifact := &model.Artifact{
		Fingerprint: req.Fingerprint.String(),
		VideoID:     req.VideoID,
		Language:    req.Language,
		Kind:        req.Kind,
		Metadata:    metadata,
		GeneratedAt: generatedAt.UTC(),
	}

	switch req.Kind {
	case model.KindSummary:
		summary := &model.SummaryArtifact{}
		if err := json.Unmarshal(body, summary); err != nil {
			return nil, model.NewError(model.KindMalformedResult, StageGeneration, fmt.Errorf("failed to unmarshal summary: %w", err))
		}
		artifact.Summary = summary
	case model.KindQuiz:
		quiz := &model.QuizArtifact{}
		var err error
		if bytes.HasPrefix(body, []byte("[")) {
			err = json.Unmarshal(body, &quiz.Questions)
		} else {
			err = json.Unmarshal(body, quiz)
		}
		if err != nil {
			return nil, model.NewError(model.KindMalformedResult, StageGeneration, fmt.Errorf("failed to unmarshal quiz: %w", err))
		}
		quiz.VideoID = req.VideoID
		quiz.Language = req.Language
		for i, question := range quiz.Questions {
			if question != nil && question.Ordinal == 0 {
				question.Ordinal = i + 1
			}
		}
		artifact.Quiz = quiz
	default:
		return nil, model.Errorf(model.KindFatal, StageGeneration, "unknown artifact kind %q", req.Kind)
	}

	if err := artifact.Validate(); err != nil {
		return nil, model.NewError(model.KindMalformedResult, StageGeneration, err)
	}
	return artifact, nil
}
