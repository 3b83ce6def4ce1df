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
// artifact pipeline is assembled from. This file defines BaseChain, the
// default Chain.
//
// Logic Flow:
//  1. Execute opens a span for the whole chain.
//  2. Before each command the chain stops if:
//     - an earlier command recorded an error (unless continueOnFailure),
//     - the context was aborted,
//     - the Go context is done, in which case the context error is recorded
//     against the command that never ran.
//  3. The observer is notified, a child span is opened and the command runs
//     with the child span's Go context. Commands whose preconditions do not
//     hold are skipped.
//  4. The Go context is reset to the chain span so siblings stay siblings.
//  5. The value the command left in CtxOut is moved to CtxIn for the next
//     command.
//  6. The chain span is closed with Ok or Error depending on the context.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain runs a list of commands in order.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the commands in execution order.
func (c *BaseChain) Commands() []Command {
	return c.commands
}

// IsExecutable only needs a Go context; commands check their own inputs.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}
		if chCtx.IsAborted() {
			chainSpan.AddEvent("aborted")
			break
		}
		if err := outerCtx.Err(); err != nil {
			chCtx.AddError(command.GetName(), fmt.Errorf("%s not started: %w", command.GetName(), err))
			break
		}

		chCtx.Notify(command)
		commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())

		if command.IsExecutable(chCtx) {
			chCtx.SetContext(commandContext)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)
		} else {
			commandSpan.AddEvent(fmt.Sprintf("command not executable: %s", command.GetName()))
		}

		if chCtx.HasErrors() {
			commandSpan.SetStatus(codes.Error, "error during or after command execution")
		} else {
			commandSpan.SetStatus(codes.Ok, "command completed successfully")
		}
		commandSpan.End()

		outputValue := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if outputValue != nil {
			chCtx.Add(CtxIn, outputValue)
		}
		chCtx.Remove(CtxOut)
	}

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	} else {
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	}
}
