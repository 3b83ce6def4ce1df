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
// This file defines a generic, reusable Pub/Sub message listener. Receiving
// messages is kept apart from processing them: every message is handed to a
// cor.Command, and the listener only decides between Ack and Nack.
//
// Logic Flow:
//  1. An instance of PubSubListener is created with a client and a subscription ID.
//  2. A "Command" (a piece of business logic) is attached to this listener.
//  3. The `Listen` method starts a goroutine that receives from the subscription.
//  4. Each message runs the Command in a fresh chain context, bounded by the
//     per-message timeout when one is configured.
//  5. The message is Ack'd when the Command records no errors and Nack'd
//     otherwise, so Pub/Sub redelivers it under the subscription's retry policy.
//  6. Every message gets its own OpenTelemetry span.
package cloud

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Akash-916024/ai-note-taker/internal/core/cor"
)

// MessageReceiver is the part of pubsub.Subscription the listener uses.
type MessageReceiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
	String() string
}

// PubSubListener connects one subscription to a processing command.
type PubSubListener struct {
	subscription MessageReceiver
	command      cor.Command
	timeout      time.Duration
	done         chan struct{}
}

// NewPubSubListener creates a listener on subscriptionID. A non-positive
// timeout leaves message processing unbounded.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	timeout time.Duration,
	command cor.Command,
) *PubSubListener {
	return NewListenerFor(pubsubClient.Subscription(subscriptionID), timeout, command)
}

// NewListenerFor creates a listener on any MessageReceiver.
func NewListenerFor(subscription MessageReceiver, timeout time.Duration, command cor.Command) *PubSubListener {
	return &PubSubListener{
		subscription: subscription,
		command:      command,
		timeout:      timeout,
		done:         make(chan struct{}),
	}
}

// SetCommand attaches the command when the listener was created without
// one. An existing command is kept.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts receiving in the background until ctx is canceled. Done is
// closed when receiving has stopped.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		defer close(m.done)
		err := m.subscription.Receive(ctx, m.handle)
		if err != nil {
			slog.Error("error receiving messages", "subscription", m.subscription.String(), "error", err)
		}
	}()
}

// Done is closed once Listen's receive loop has returned.
func (m *PubSubListener) Done() <-chan struct{} {
	return m.done
}

func (m *PubSubListener) handle(ctx context.Context, msg *pubsub.Message) {
	tracer := otel.Tracer("message-listener")
	spanCtx, span := tracer.Start(ctx, "receive-message")
	defer span.End()
	span.SetAttributes(attribute.String("msg.id", msg.ID))

	if m.timeout > 0 {
		var cancel context.CancelFunc
		spanCtx, cancel = context.WithTimeout(spanCtx, m.timeout)
		defer cancel()
	}

	chainCtx := cor.NewBaseContextWith(spanCtx)
	chainCtx.Add(cor.CtxIn, string(msg.Data))
	m.command.Execute(chainCtx)

	if !chainCtx.HasErrors() {
		span.SetStatus(codes.Ok, "success")
		msg.Ack()
		return
	}
	span.SetStatus(codes.Error, "failed")
	for name, e := range chainCtx.GetErrors() {
		slog.Error("error executing chain", "command", name, "msg_id", msg.ID, "error", e)
	}
	msg.Nack()
}
