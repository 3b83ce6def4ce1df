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

// Package cor (Chain of Responsibility) provides the building blocks the
// artifact pipeline is assembled from. This file declares the interfaces; the
// Base* files hold the default implementations.
//
// A workflow is a Chain of Commands sharing one Context. Each command reads
// its input from the context, does one unit of work (usually one external
// call), and writes its output back. The chain runs commands in order, stops
// at the first recorded error, stops when the context is aborted, and tells
// an optional observer which command is about to run so the owner of the
// execution can track its state.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys used to pipe the output of one command into
// the input of the next.
const (
	// CtxIn holds the primary input of the command about to run.
	CtxIn = "__IN__"
	// CtxOut is where a command leaves its primary output for the chain to
	// move into CtxIn.
	CtxOut = "__OUT__"
)

// Observer is notified before each command of a chain executes.
type Observer func(command Command)

// Context is the shared state of one workflow execution.
type Context interface {
	// SetContext sets the Go context carrying deadlines and trace spans.
	SetContext(context context.Context)

	// GetContext returns the Go context.
	GetContext() context.Context

	// Add stores a value under key.
	Add(key string, value interface{}) Context

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes key.
	Remove(key string)

	// AddError records an error produced by the named command.
	AddError(key string, err error)

	// GetErrors returns every recorded error keyed by command name.
	GetErrors() map[string]error

	// HasErrors reports whether any error was recorded.
	HasErrors() bool

	// Err returns the first recorded error, or nil.
	Err() error

	// Abort asks running chains to stop before their next command. It is
	// safe to call from any goroutine.
	Abort()

	// IsAborted reports whether Abort was called.
	IsAborted() bool

	// SetObserver installs the command observer.
	SetObserver(observer Observer)

	// Notify calls the observer, if any, for command.
	Notify(command Command)
}

// Executable is anything with a unit of work.
type Executable interface {
	Execute(context Context)
}

// Command is a single step of a workflow.
type Command interface {
	Executable

	// GetName returns the command name used for spans and metrics.
	GetName() string

	// GetInputParam returns the context key of the command's input.
	GetInputParam() string

	// GetOutputParam returns the context key of the command's output.
	GetOutputParam() string

	// IsExecutable checks the command's preconditions against the context.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands that is itself a Command, so
// chains nest.
type Chain interface {
	Command

	// ContinueOnFailure makes the chain run every command even after errors.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command.
	AddCommand(command Command) Chain
}
