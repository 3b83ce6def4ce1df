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

// Package model defines the core data structures shared by every layer of the
// artifact pipeline. This file holds the artifact payloads handed to callers
// and the structural rules a generated artifact must satisfy before it is
// cached or delivered.
package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Quiz shape constants.
const (
	QuizQuestionCount = 5
	QuizOptionCount   = 4
)

// VideoMetadata is what the metadata gateway knows about a video.
type VideoMetadata struct {
	Title        string `json:"title"`
	ChannelName  string `json:"channel_name"`
	Duration     string `json:"duration"` // ISO-8601, e.g. PT4M13S
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// VideoReference identifies the media to upload for a request.
type VideoReference struct {
	VideoID  string
	Duration time.Duration // Parsed from metadata, zero when unknown.
}

// MediaHandle is the opaque reference to media uploaded for one execution.
type MediaHandle struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
}

// SummaryArtifact is the generated summary of a video.
type SummaryArtifact struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// Validate checks the structural rules of a summary.
func (s *SummaryArtifact) Validate() error {
	if s == nil || strings.TrimSpace(s.Summary) == "" {
		return fmt.Errorf("summary text is empty")
	}
	return nil
}

// QuizQuestion is a single multiple choice question.
type QuizQuestion struct {
	Ordinal            int      `json:"ordinal"`
	QuestionText       string   `json:"question"`
	AnswerOptions      []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	ExplanationText    string   `json:"explanation"`
}

// QuizArtifact is a generated quiz over a video.
type QuizArtifact struct {
	VideoID   string          `json:"video_id"`
	Language  string          `json:"language"`
	Questions []*QuizQuestion `json:"questions"`
}

// Validate checks the structural rules of a quiz: exactly five questions,
// exactly four options each, and a correct index that points at one of them.
func (q *QuizArtifact) Validate() error {
	if q == nil {
		return fmt.Errorf("quiz is missing")
	}
	if len(q.Questions) != QuizQuestionCount {
		return fmt.Errorf("quiz has %d questions, want %d", len(q.Questions), QuizQuestionCount)
	}
	for i, question := range q.Questions {
		if question == nil {
			return fmt.Errorf("question %d is missing", i+1)
		}
		if strings.TrimSpace(question.QuestionText) == "" {
			return fmt.Errorf("question %d has no text", i+1)
		}
		if len(question.AnswerOptions) != QuizOptionCount {
			return fmt.Errorf("question %d has %d options, want %d", i+1, len(question.AnswerOptions), QuizOptionCount)
		}
		if question.CorrectOptionIndex < 0 || question.CorrectOptionIndex >= QuizOptionCount {
			return fmt.Errorf("question %d has correct option index %d outside [0,%d]", i+1, question.CorrectOptionIndex, QuizOptionCount-1)
		}
	}
	return nil
}

// Artifact is the payload delivered to callers and stored in the cache.
// Exactly one of Summary and Quiz is set, matching Kind.
type Artifact struct {
	Fingerprint string           `json:"fingerprint"`
	VideoID     string           `json:"video_id"`
	Language    string           `json:"language"`
	Kind        Kind             `json:"kind"`
	Metadata    VideoMetadata    `json:"metadata"`
	GeneratedAt time.Time        `json:"generated_at"`
	Summary     *SummaryArtifact `json:"summary,omitempty"`
	Quiz        *QuizArtifact    `json:"quiz,omitempty"`
}

// Validate checks that the artifact carries a structurally valid payload
// for its kind.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("artifact is missing")
	}
	switch a.Kind {
	case KindSummary:
		if a.Quiz != nil {
			return fmt.Errorf("summary artifact carries a quiz")
		}
		return a.Summary.Validate()
	case KindQuiz:
		if a.Summary != nil {
			return fmt.Errorf("quiz artifact carries a summary")
		}
		return a.Quiz.Validate()
	}
	return fmt.Errorf("unknown artifact kind %q", a.Kind)
}

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses the subset of ISO-8601 durations video platforms
// report (days, hours, minutes, seconds).
func ParseISODuration(in string) (time.Duration, error) {
	trimmed := strings.TrimSpace(in)
	m := isoDurationPattern.FindStringSubmatch(trimmed)
	if m == nil || trimmed == "P" || strings.HasSuffix(trimmed, "T") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", in)
	}
	var out time.Duration
	add := func(d time.Duration) error {
		if d > math.MaxInt64-out {
			return fmt.Errorf("ISO-8601 duration %q out of range", in)
		}
		out += d
		return nil
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil || n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("ISO-8601 duration %q out of range", in)
		}
		if err := add(time.Duration(n) * unit); err != nil {
			return 0, err
		}
	}
	if m[4] != "" {
		secs, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", in, err)
		}
		nanos := secs * float64(time.Second)
		if nanos >= math.MaxInt64 {
			return 0, fmt.Errorf("ISO-8601 duration %q out of range", in)
		}
		if err := add(time.Duration(nanos)); err != nil {
			return 0, err
		}
	}
	return out, nil
}
