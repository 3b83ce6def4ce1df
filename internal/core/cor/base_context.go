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
// artifact pipeline is assembled from. This file defines BaseContext, the
// default Context.
//
// A BaseContext belongs to a single execution. Its data and error maps are
// only touched by the goroutine running the chain; the abort flag is the one
// field written from other goroutines and is atomic.
package cor

import (
	"context"
	"sync/atomic"
)

// BaseContext is the default Context implementation.
type BaseContext struct {
	data       map[string]interface{}
	errors     map[string]error
	firstError error
	context    context.Context
	observer   Observer
	aborted    atomic.Bool
}

// NewBaseContext creates an empty context.
func NewBaseContext() Context {
	return &BaseContext{
		data:   make(map[string]interface{}),
		errors: make(map[string]error),
	}
}

// NewBaseContextWith creates a context bound to ctx.
func NewBaseContextWith(ctx context.Context) Context {
	out := NewBaseContext()
	out.SetContext(ctx)
	return out
}

func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// AddError records err under key. The first error recorded is kept as the
// execution's primary error.
func (c *BaseContext) AddError(key string, err error) {
	if err == nil {
		return
	}
	if c.firstError == nil {
		c.firstError = err
	}
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

func (c *BaseContext) Err() error {
	return c.firstError
}

func (c *BaseContext) Abort() {
	c.aborted.Store(true)
}

func (c *BaseContext) IsAborted() bool {
	return c.aborted.Load()
}

func (c *BaseContext) SetObserver(observer Observer) {
	c.observer = observer
}

func (c *BaseContext) Notify(command Command) {
	if c.observer != nil {
		c.observer(command)
	}
}
