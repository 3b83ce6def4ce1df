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

package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// Dashboard sets up the operational endpoints:
//   - GET /stats: Cache, admission and execution counters.
//   - GET /executions: The running pipeline executions, oldest first.
func Dashboard(r *gin.RouterGroup, svc ArtifactAPI) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, svc.Stats())
		})
	}
	executions := r.Group("/executions")
	{
		executions.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"executions": svc.Executions()})
		})
	}
}

// NewEngine builds the gin engine serving the API under /api/v1, with
// tracing, CORS and a health check.
func NewEngine(serviceName string, svc ArtifactAPI) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		ArtifactRouter(apiV1, svc)
		Dashboard(apiV1, svc)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Kind: model.KindNotFound, Message: errBadRoute.Error()})
	})
	return r
}
