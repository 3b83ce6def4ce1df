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

// Package api contains the HTTP route definitions of the server. This file
// defines the artifact endpoints and the mapping of classified errors onto
// HTTP responses.
//
// Endpoints:
//   - POST /artifacts: Returns the summary or quiz for a video, generating it
//     when it is not cached.
//   - POST /artifacts/invalidate: Drops a cached artifact reported as stale.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/pipeline"
	"github.com/Akash-916024/ai-note-taker/internal/core/services"
)

// CallerHeader names the caller identity used for rate limiting. Requests
// without it are limited by client IP.
const CallerHeader = "X-Caller-Id"

// ArtifactAPI is what the routes need from the artifact service.
type ArtifactAPI interface {
	Request(ctx context.Context, callerID string, videoID string, language string, kind model.Kind) (*model.Artifact, error)
	Invalidate(videoID string, language string, kind model.Kind) (bool, error)
	Executions() []pipeline.ExecutionSnapshot
	Stats() services.Stats
}

// ArtifactRequest is the JSON body of both artifact endpoints.
type ArtifactRequest struct {
	VideoID  string `json:"video_id"`
	Language string `json:"language"`
	Kind     string `json:"kind"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidInput:
		return http.StatusBadRequest
	case model.KindRateLimited:
		return http.StatusTooManyRequests
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindContentBlocked:
		return http.StatusUnprocessableEntity
	case model.KindMalformedResult:
		return http.StatusBadGateway
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	case model.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	kind := model.KindOf(err)
	if kind == model.KindFatal {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(StatusFor(kind), ErrorResponse{Kind: kind, Message: err.Error()})
}

// callerID returns the rate limiting identity of the request.
func callerID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(CallerHeader)); id != "" {
		return id
	}
	return c.ClientIP()
}

// bindArtifactRequest decodes the body and parses the kind.
func bindArtifactRequest(c *gin.Context) (ArtifactRequest, model.Kind, error) {
	var body ArtifactRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return body, "", model.NewError(model.KindInvalidInput, "", err)
	}
	kind, err := model.ParseKind(body.Kind)
	if err != nil {
		return body, "", err
	}
	return body, kind, nil
}

// ArtifactRouter sets up the artifact routes under r.
//
// Inputs:
//   - r: The router group the routes are added to (e.g., "/api/v1").
//   - svc: The artifact service.
func ArtifactRouter(r *gin.RouterGroup, svc ArtifactAPI) {
	artifacts := r.Group("/artifacts")
	{
		artifacts.POST("", func(c *gin.Context) {
			body, kind, err := bindArtifactRequest(c)
			if err != nil {
				abortWithError(c, err)
				return
			}
			// The request context ends when the client goes away, which
			// withdraws it from the execution it waits on.
			artifact, err := svc.Request(c.Request.Context(), callerID(c), body.VideoID, body.Language, kind)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, artifact)
		})

		artifacts.POST("/invalidate", func(c *gin.Context) {
			body, kind, err := bindArtifactRequest(c)
			if err != nil {
				abortWithError(c, err)
				return
			}
			removed, err := svc.Invalidate(body.VideoID, body.Language, kind)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"invalidated": removed})
		})
	}
}

// errBadRoute is returned for unknown paths under the API prefix.
var errBadRoute = errors.New("no such endpoint")
