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

package cor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
)

// appendCommand appends its suffix to the string input.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	fail   bool
	hook   func(cor.Context)
}

func newAppend(name, suffix string) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix}
}

func (a *appendCommand) Execute(context cor.Context) {
	if a.hook != nil {
		a.hook(context)
	}
	if a.fail {
		a.Fail(context, errors.New(a.GetName()+" failed"))
		return
	}
	in := context.Get(a.GetInputParam()).(string)
	a.Succeed(context, in+a.suffix)
}

func TestChainPipesOutputToInput(t *testing.T) {
	chain := cor.NewBaseChain("pipe")
	chain.AddCommand(newAppend("a", "-a")).AddCommand(newAppend("b", "-b")).AddCommand(newAppend("c", "-c"))

	ctx := cor.NewBaseContextWith(context.Background())
	ctx.Add(cor.CtxIn, "start")
	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Equal(t, "start-a-b-c", ctx.Get(cor.CtxIn))
}

func TestChainStopsOnFirstError(t *testing.T) {
	failing := newAppend("b", "-b")
	failing.fail = true
	var observed []string

	chain := cor.NewBaseChain("stop")
	chain.AddCommand(newAppend("a", "-a")).AddCommand(failing).AddCommand(newAppend("c", "-c"))

	ctx := cor.NewBaseContextWith(context.Background())
	ctx.SetObserver(func(c cor.Command) { observed = append(observed, c.GetName()) })
	ctx.Add(cor.CtxIn, "start")
	chain.Execute(ctx)

	assert.EqualError(t, ctx.Err(), "b failed")
	assert.Equal(t, []string{"a", "b"}, observed)
	assert.Len(t, ctx.GetErrors(), 1)
}

func TestChainContinueOnFailure(t *testing.T) {
	first := newAppend("a", "-a")
	first.fail = true
	second := newAppend("b", "-b")
	second.fail = true

	chain := cor.NewBaseChain("continue")
	chain.ContinueOnFailure(true)
	chain.AddCommand(first).AddCommand(second)

	ctx := cor.NewBaseContextWith(context.Background())
	ctx.Add(cor.CtxIn, "start")
	chain.Execute(ctx)

	assert.Len(t, ctx.GetErrors(), 2)
	assert.EqualError(t, ctx.Err(), "a failed", "the first error stays primary")
}

func TestChainStopsWhenAborted(t *testing.T) {
	first := newAppend("a", "-a")
	first.hook = func(c cor.Context) { c.Abort() }

	chain := cor.NewBaseChain("abort")
	chain.AddCommand(first).AddCommand(newAppend("b", "-b"))

	ctx := cor.NewBaseContextWith(context.Background())
	ctx.Add(cor.CtxIn, "start")
	chain.Execute(ctx)

	assert.True(t, ctx.IsAborted())
	assert.False(t, ctx.HasErrors())
	assert.Equal(t, "start-a", ctx.Get(cor.CtxIn))
}

func TestChainRecordsDeadline(t *testing.T) {
	goCtx, cancel := context.WithCancel(context.Background())
	first := newAppend("a", "-a")
	first.hook = func(cor.Context) { cancel() }

	chain := cor.NewBaseChain("deadline")
	chain.AddCommand(first).AddCommand(newAppend("b", "-b"))

	ctx := cor.NewBaseContextWith(goCtx)
	ctx.Add(cor.CtxIn, "start")
	chain.Execute(ctx)

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Contains(t, ctx.GetErrors(), "b")
	assert.Equal(t, goCtx, ctx.GetContext(), "the caller's Go context is restored")
}

func TestChainSkipsNonExecutable(t *testing.T) {
	chain := cor.NewBaseChain("skip")
	chain.AddCommand(newAppend("a", "-a"))

	ctx := cor.NewBaseContextWith(context.Background())
	chain.Execute(ctx)
	assert.False(t, ctx.HasErrors())
	assert.Nil(t, ctx.Get(cor.CtxIn))
}
