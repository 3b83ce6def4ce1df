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
// artifact pipeline is assembled from. This file defines BaseCommand, which
// every concrete command embeds.
//
// BaseCommand supplies:
//   - the command name used for spans and metric names,
//   - a tracer and meter from the global OpenTelemetry providers,
//   - `<name>.counter.success` and `<name>.counter.error` counters,
//   - default input/output keys (CtxIn/CtxOut) so commands pipe into each
//     other inside a BaseChain.
package cor

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope for all pipeline metrics.
const MeterName = "github.com/Akash-916024/ai-note-taker"

// BaseCommand is the default Command implementation.
type BaseCommand struct {
	Name            string              // Used for spans, metric names and error keys.
	InputParamName  string              // Context key of the input, CtxIn when empty.
	OutputParamName string              // Context key of the output, CtxOut when empty.
	Tracer          trace.Tracer
	Meter           metric.Meter
	SuccessCounter  metric.Int64Counter // Incremented once per successful Execute.
	ErrorCounter    metric.Int64Counter // Incremented once per failed Execute.
}

// NewBaseCommand creates a command named name with its instrumentation.
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(MeterName)

	successCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.success", name))
	if err != nil {
		slog.Warn("failed to create success counter", "command", name, "error", err)
	}
	errorCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.error", name))
	if err != nil {
		slog.Warn("failed to create error counter", "command", name, "error", err)
	}

	return &BaseCommand{
		Name:           name,
		Tracer:         otel.Tracer(name),
		Meter:          meter,
		SuccessCounter: successCounter,
		ErrorCounter:   errorCounter,
	}
}

func (c *BaseCommand) GetName() string {
	return c.Name
}

// IsExecutable requires a Go context and a value under the input key.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(c.GetInputParam()) != nil
}

func (c *BaseCommand) GetInputParam() string {
	if len(c.InputParamName) == 0 {
		return CtxIn
	}
	return c.InputParamName
}

func (c *BaseCommand) GetOutputParam() string {
	if len(c.OutputParamName) == 0 {
		return CtxOut
	}
	return c.OutputParamName
}

func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}

// Fail counts an error and records it in the context under the command name.
func (c *BaseCommand) Fail(context Context, err error) {
	c.ErrorCounter.Add(context.GetContext(), 1)
	context.AddError(c.GetName(), err)
}

// Succeed counts a success and stores out under the output key.
func (c *BaseCommand) Succeed(context Context, out interface{}) {
	c.SuccessCounter.Add(context.GetContext(), 1)
	if out != nil {
		context.Add(c.GetOutputParam(), out)
	}
}
