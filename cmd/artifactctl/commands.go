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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Akash-916024/ai-note-taker/internal/cloud"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/services"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
	"github.com/Akash-916024/ai-note-taker/internal/telemetry"
)

// requestFlags are shared by the commands taking a logical request.
type requestFlags struct {
	language string
	kind     string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.language, "language", "l", "en", "Target language code")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", string(model.KindSummary), "Artifact kind: summary or quiz")
}

// loadConfig reads the layered TOML configuration.
func loadConfig() (*cloud.Config, error) {
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "artifactctl",
		Short:         "Operate the video artifact service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newFingerprintCmd())
	root.AddCommand(newRequestCmd())
	return root
}

// newFingerprintCmd prints the cache key of a logical request.
func newFingerprintCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "fingerprint <video-id>",
		Short: "Print the fingerprint of a request",
		Long: `Print the fingerprint the service derives for a video, language and
artifact kind. Equal requests always print the same fingerprint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			kind, err := model.ParseKind(flags.kind)
			if err != nil {
				return err
			}
			builder := model.NewFingerprintBuilder(model.NewLanguageSet(config.Languages.Supported...))
			fp, err := builder.Build(args[0], flags.language, kind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fp.String())
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// newRequestCmd runs one request against the real gateways.
func newRequestCmd() *cobra.Command {
	var flags requestFlags
	var caller string
	cmd := &cobra.Command{
		Use:   "request <video-id>",
		Short: "Generate an artifact and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			if err := telemetry.SetupLogging(config); err != nil {
				return err
			}
			kind, err := model.ParseKind(flags.kind)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), config.Pipeline.OverallDeadline+config.Pipeline.CleanupTimeout)
			defer cancel()
			clients, err := cloud.NewCloudServiceClients(ctx, config)
			if err != nil {
				return err
			}
			defer clients.Close()

			svc := services.NewArtifactService(config, workflow.Gateways{
				Metadata:   clients.Metadata,
				Media:      clients.Media,
				Generation: clients.Generation,
			}, services.WithLogger(slog.Default()))

			artifact, err := svc.Request(ctx, caller, args[0], flags.language, kind)
			// Let the execution finish deleting its media before exiting.
			waitCtx, waitCancel := context.WithTimeout(context.Background(), config.Pipeline.CleanupTimeout+5*time.Second)
			defer waitCancel()
			if shutdownErr := svc.Shutdown(waitCtx); shutdownErr != nil {
				slog.Warn("execution still running at exit", "error", shutdownErr)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", model.KindOf(err), err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(artifact)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&caller, "caller", "artifactctl", "Caller identity used for rate limiting")
	return cmd
}
