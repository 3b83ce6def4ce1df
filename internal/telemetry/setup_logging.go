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

// Package telemetry provides utilities for setting up and configuring
// application observability, including logging, tracing, and metrics.
// This file handles structured logging in the Cloud Logging format, with
// OpenTelemetry trace correlation.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
)

// spanContextLogHandler injects the trace and span ids of the record's
// context, so Cloud Logging can correlate log lines with Cloud Trace spans.
type spanContextLogHandler struct {
	slog.Handler
}

func handlerWithSpanContext(handler slog.Handler) *spanContextLogHandler {
	return &spanContextLogHandler{Handler: handler}
}

// Handle adds the trace fields Cloud Logging recognizes.
// See: https://cloud.google.com/logging/docs/structured-logging#special-payload-fields
func (t *spanContextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		record.AddAttrs(
			slog.Any("logging.googleapis.com/trace", s.TraceID()),
			slog.Any("logging.googleapis.com/spanId", s.SpanID()),
			slog.Bool("logging.googleapis.com/trace_sampled", s.TraceFlags().IsSampled()),
		)
	}
	return t.Handler.Handle(ctx, record)
}

func (t *spanContextLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handlerWithSpanContext(t.Handler.WithAttrs(attrs))
}

func (t *spanContextLogHandler) WithGroup(name string) slog.Handler {
	return handlerWithSpanContext(t.Handler.WithGroup(name))
}

// replacer renames the default slog keys to severity, timestamp and message.
func replacer(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		// https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry#LogSeverity
		if level, ok := a.Value.Any().(slog.Level); ok && level == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// NewHandler returns the Cloud Logging JSON handler writing to w.
func NewHandler(w io.Writer, level slog.Leveler) slog.Handler {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replacer})
	return handlerWithSpanContext(jsonHandler)
}

// SetupLogging installs the JSON handler on standard output as the default
// slog logger at the configured level, and routes the standard `log`
// package through it.
func SetupLogging(config *cloud.Config) error {
	level, err := ParseLevel(config.Application.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(NewHandler(os.Stdout, level))
	slog.SetDefault(logger)
	log.SetFlags(0)
	return nil
}
