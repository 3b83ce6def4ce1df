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
// This file initializes the OpenTelemetry SDK and exports traces to Cloud
// Trace and metrics to Cloud Monitoring.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	telemetryexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
)

// SetupOpenTelemetry configures propagation and, when telemetry is enabled,
// the GCP trace and metric exporters. The returned shutdown flushes and
// stops every provider it started; it is safe to call when telemetry is
// disabled.
//
// Inputs:
//   - ctx: Used for resource detection.
//   - config: Supplies the project, service name and export settings.
//
// Returns:
//   - shutdown: Must be called on exit to flush buffered telemetry.
//   - err: An error if an exporter could not be created.
func SetupOpenTelemetry(ctx context.Context, config *cloud.Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())
	if !config.Telemetry.Enabled {
		slog.Info("telemetry export disabled")
		return shutdown, nil
	}

	res, err := newResource(ctx, config.Application.Name)
	if err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(config.Application.GoogleProjectId, res)
	if err != nil {
		return nil, err
	}
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)

	mp, err := newMeterProvider(config.Application.GoogleProjectId, config.Telemetry.MetricInterval, res)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	otel.SetMeterProvider(mp)

	slog.Info("telemetry export enabled", "project", config.Application.GoogleProjectId)
	return shutdown, nil
}

// newResource describes this process. Partial GCP detection, as when running
// off Google Cloud, is logged and tolerated.
func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	switch {
	case errors.Is(err, resource.ErrPartialResource), errors.Is(err, resource.ErrSchemaURLConflict):
		slog.Warn("partial resource detection", "error", err)
	case err != nil:
		return nil, fmt.Errorf("detect resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(projectID string, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := telemetryexporter.New(telemetryexporter.WithProjectID(projectID))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(projectID string, interval time.Duration, res *resource.Resource) (*metric.MeterProvider, error) {
	exporter, err := mexporter.New(mexporter.WithProjectID(projectID))
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	var readerOpts []metric.PeriodicReaderOption
	if interval > 0 {
		readerOpts = append(readerOpts, metric.WithInterval(interval))
	}
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, readerOpts...)),
		metric.WithResource(res),
	), nil
}
