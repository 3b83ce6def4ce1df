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
// artifact pipeline. This file holds the error taxonomy that every failure is
// classified into before it reaches a caller.
//
// Every error surfaced by the artifact service carries exactly one ErrorKind.
// Commands and gateways wrap their causes in *Error so the kind survives
// `fmt.Errorf("...: %w")` chains, and KindOf recovers it at the edges (HTTP
// handlers, the CLI, logging).
package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for callers and retry policy.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "InvalidInput"
	KindRateLimited     ErrorKind = "RateLimited"
	KindNotFound        ErrorKind = "NotFound"
	KindContentBlocked  ErrorKind = "ContentBlocked"
	KindMalformedResult ErrorKind = "MalformedResult"
	KindTimeout         ErrorKind = "Timeout"
	KindTransient       ErrorKind = "TransientError"
	KindFatal           ErrorKind = "Fatal"
)

// Retryable reports whether a stage may retry locally on this kind.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient
}

// Error is the classified error type returned by the artifact pipeline.
type Error struct {
	Kind  ErrorKind // The classification of the failure.
	Stage string    // The pipeline stage that produced it, empty outside the pipeline.
	Err   error     // The underlying cause, may be nil.
}

func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Err != nil:
		return fmt.Sprintf("%s in %s: %v", e.Kind, e.Stage, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Stage != "":
		return fmt.Sprintf("%s in %s", e.Kind, e.Stage)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so errors.Is(err, ErrTimeout)
// works regardless of stage or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Stage == "" && t.Err == nil
}

// Sentinel values for errors.Is comparisons.
var (
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrContentBlocked  = &Error{Kind: KindContentBlocked}
	ErrMalformedResult = &Error{Kind: KindMalformedResult}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrTransient       = &Error{Kind: KindTransient}
	ErrFatal           = &Error{Kind: KindFatal}
)

// NewError builds a classified error.
func NewError(kind ErrorKind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind ErrorKind, stage string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err. Deadline expiry is a Timeout,
// anything unclassified is Fatal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindFatal
}

// Classify returns err as an *Error, classifying it with KindOf when it is
// not one already. The stage is filled in only when missing.
func Classify(err error, stage string) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		if classified.Stage == "" && stage != "" {
			return &Error{Kind: classified.Kind, Stage: stage, Err: classified.Err}
		}
		return classified
	}
	return &Error{Kind: KindOf(err), Stage: stage, Err: err}
}
