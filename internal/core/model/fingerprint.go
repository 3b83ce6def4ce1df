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
// artifact pipeline. This file defines the request fingerprint, the key that
// both the result cache and the single-flight registry are indexed by.
//
// Logic Flow:
//  1. The video id is trimmed and checked for shape (non-empty, no whitespace,
//     bounded length).
//  2. The language is canonicalized (trimmed, lower-cased) and checked against
//     the supported language set.
//  3. The kind is checked against the known artifact kinds.
//  4. The three canonical fields are joined with a NUL separator, which cannot
//     occur inside any field, and hashed into a name-based (v5) UUID under the
//     project namespace. Equal requests always produce equal fingerprints.
package model

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Kind is the type of artifact a caller requests.
type Kind string

const (
	KindSummary Kind = "summary"
	KindQuiz    Kind = "quiz"
)

// MaxVideoIDLength bounds accepted video identifiers.
const MaxVideoIDLength = 64

// FingerprintNamespace scopes fingerprints to this service so they never
// collide with other name-based UUIDs derived from the same strings.
var FingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Akash-916024/ai-note-taker/artifact"))

// DefaultLanguages is the supported language set used when none is configured.
var DefaultLanguages = []string{"en", "es", "fr", "de", "it", "pt", "hi", "ja", "ko", "zh", "ar", "ru"}

// ParseKind converts a string into a Kind.
func ParseKind(in string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(in))) {
	case KindSummary:
		return KindSummary, nil
	case KindQuiz:
		return KindQuiz, nil
	}
	return "", Errorf(KindInvalidInput, "", "unknown artifact kind %q", in)
}

// Fingerprint is the deterministic identity of a logical artifact request.
type Fingerprint struct {
	id       uuid.UUID
	videoID  string
	language string
	kind     Kind
}

// String returns the printable form of the fingerprint.
func (f Fingerprint) String() string {
	return f.id.String()
}

// ID returns the underlying UUID.
func (f Fingerprint) ID() uuid.UUID { return f.id }

// VideoID returns the canonical video id.
func (f Fingerprint) VideoID() string { return f.videoID }

// Language returns the canonical language code.
func (f Fingerprint) Language() string { return f.language }

// Kind returns the artifact kind.
func (f Fingerprint) Kind() Kind { return f.kind }

// IsZero reports whether the fingerprint was never built.
func (f Fingerprint) IsZero() bool {
	return f.id == uuid.Nil
}

// LanguageSet is the set of supported, canonical language codes.
type LanguageSet map[string]struct{}

// NewLanguageSet builds a set from language codes, canonicalizing each one.
// An empty input yields DefaultLanguages.
func NewLanguageSet(codes ...string) LanguageSet {
	if len(codes) == 0 {
		codes = DefaultLanguages
	}
	out := make(LanguageSet, len(codes))
	for _, c := range codes {
		out[canonicalLanguage(c)] = struct{}{}
	}
	return out
}

// Supports reports whether the canonical form of code is in the set.
func (s LanguageSet) Supports(code string) bool {
	_, ok := s[canonicalLanguage(code)]
	return ok
}

func canonicalLanguage(in string) string {
	return strings.ToLower(strings.TrimSpace(in))
}

// FingerprintBuilder derives fingerprints for a fixed language set.
type FingerprintBuilder struct {
	languages LanguageSet
}

// NewFingerprintBuilder creates a builder accepting the given languages.
func NewFingerprintBuilder(languages LanguageSet) *FingerprintBuilder {
	if len(languages) == 0 {
		languages = NewLanguageSet()
	}
	return &FingerprintBuilder{languages: languages}
}

// Build derives the fingerprint for (videoID, language, kind). It fails with
// an InvalidInput error when any of the fields is not acceptable.
func (b *FingerprintBuilder) Build(videoID string, language string, kind Kind) (Fingerprint, error) {
	id := strings.TrimSpace(videoID)
	if err := validateVideoID(id); err != nil {
		return Fingerprint{}, err
	}
	lang := canonicalLanguage(language)
	if !b.languages.Supports(lang) {
		return Fingerprint{}, Errorf(KindInvalidInput, "", "unsupported language %q", language)
	}
	if kind != KindSummary && kind != KindQuiz {
		return Fingerprint{}, Errorf(KindInvalidInput, "", "unknown artifact kind %q", kind)
	}
	name := strings.Join([]string{id, lang, string(kind)}, "\x00")
	return Fingerprint{
		id:       uuid.NewSHA1(FingerprintNamespace, []byte(name)),
		videoID:  id,
		language: lang,
		kind:     kind,
	}, nil
}

// NewFingerprint builds a fingerprint against the default language set.
func NewFingerprint(videoID string, language string, kind Kind) (Fingerprint, error) {
	return defaultBuilder.Build(videoID, language, kind)
}

var defaultBuilder = NewFingerprintBuilder(nil)

func validateVideoID(id string) error {
	if id == "" {
		return Errorf(KindInvalidInput, "", "video id is empty")
	}
	if len(id) > MaxVideoIDLength {
		return Errorf(KindInvalidInput, "", "video id longer than %d characters", MaxVideoIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return Errorf(KindInvalidInput, "", "video id %q contains whitespace or control characters", id)
		}
	}
	return nil
}

// GoString keeps fingerprints readable in test failure output.
func (f Fingerprint) GoString() string {
	return fmt.Sprintf("Fingerprint{%s %s/%s/%s}", f.id, f.videoID, f.language, f.kind)
}
