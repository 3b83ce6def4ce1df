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

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akash-916024/ai-note-taker/internal/api"
	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
	"github.com/Akash-916024/ai-note-taker/internal/core/services"
	"github.com/Akash-916024/ai-note-taker/internal/core/workflow"
	test "github.com/Akash-916024/ai-note-taker/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	metadata   *test.FakeMetadata
	generation *test.FakeGeneration
	service    *services.ArtifactService
	engine     *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{
		metadata:   test.NewFakeMetadata(),
		generation: test.NewFakeGeneration(),
	}
	s.service = services.NewArtifactService(test.GetConfig(),
		workflow.Gateways{Metadata: s.metadata, Media: test.NewFakeMedia(), Generation: s.generation},
		services.WithClock(clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))),
		services.WithLogger(test.NewLogger("api-test")))
	s.engine = api.NewEngine("api-test", s.service)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.service.Shutdown(ctx))
	})
	return s
}

func (s *server) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var out api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPostArtifact(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/v1/artifacts", `{"video_id": "dQw4w9WgXcQ", "language": "en", "kind": "quiz"}`, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var artifact model.Artifact
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &artifact))
	assert.Equal(t, model.KindQuiz, artifact.Kind)
	require.NoError(t, artifact.Validate())
	assert.Equal(t, test.GetTestMetadata(), artifact.Metadata)
}

func TestPostArtifactErrors(t *testing.T) {
	cases := map[string]struct {
		body   string
		script func(s *server)
		status int
		kind   model.ErrorKind
	}{
		"malformed body": {
			body: `{"video_id":`, status: http.StatusBadRequest, kind: model.KindInvalidInput,
		},
		"unknown kind": {
			body: `{"video_id": "dQw4w9WgXcQ", "language": "en", "kind": "essay"}`, status: http.StatusBadRequest, kind: model.KindInvalidInput,
		},
		"unsupported language": {
			body: `{"video_id": "dQw4w9WgXcQ", "language": "tlh", "kind": "summary"}`, status: http.StatusBadRequest, kind: model.KindInvalidInput,
		},
		"video not found": {
			body: `{"video_id": "dQw4w9WgXcQ", "language": "en", "kind": "summary"}`,
			script: func(s *server) {
				s.metadata.Push(gateways.Fail[model.VideoMetadata](gateways.StatusNotFound, errors.New("no such video")))
			},
			status: http.StatusNotFound, kind: model.KindNotFound,
		},
		"content blocked": {
			body: `{"video_id": "dQw4w9WgXcQ", "language": "en", "kind": "summary"}`,
			script: func(s *server) {
				s.generation.Push(gateways.Fail[string](gateways.StatusContentBlocked, errors.New("SAFETY")))
			},
			status: http.StatusUnprocessableEntity, kind: model.KindContentBlocked,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newServer(t)
			if tc.script != nil {
				tc.script(s)
			}
			w := s.do(http.MethodPost, "/api/v1/artifacts", tc.body, nil)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.kind, decodeError(t, w).Kind)
		})
	}
}

func TestPostArtifactRateLimitedPerCaller(t *testing.T) {
	s := newServer(t)
	limit := test.GetConfig().Admission.PerCallerLimit
	caller := http.Header{api.CallerHeader: []string{"extension-42"}}

	for i := 0; i <= limit; i++ {
		body := `{"video_id": "video-` + strings.Repeat("x", i+1) + `", "language": "en", "kind": "summary"}`
		w := s.do(http.MethodPost, "/api/v1/artifacts", body, caller)
		if i < limit {
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, model.KindRateLimited, decodeError(t, w).Kind)
	}

	// A different identity has its own window.
	w := s.do(http.MethodPost, "/api/v1/artifacts", `{"video_id": "other", "language": "en", "kind": "summary"}`,
		http.Header{api.CallerHeader: []string{"extension-7"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidateArtifact(t *testing.T) {
	s := newServer(t)
	body := `{"video_id": "dQw4w9WgXcQ", "language": "en", "kind": "summary"}`
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/artifacts", body, nil).Code)

	w := s.do(http.MethodPost, "/api/v1/artifacts/invalidate", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"invalidated": true}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/artifacts/invalidate", body, nil)
	assert.JSONEq(t, `{"invalidated": false}`, w.Body.String())
}

func TestDashboard(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusOK,
		s.do(http.MethodPost, "/api/v1/artifacts", `{"video_id": "dQw4w9WgXcQ", "language": "en", "kind": "summary"}`, nil).Code)

	w := s.do(http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats services.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Cache.Size)
	assert.EqualValues(t, 1, stats.Cache.Puts)
	assert.Zero(t, stats.ActiveExecutions)

	w = s.do(http.MethodGet, "/api/v1/executions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"executions": []}`, w.Body.String())

	w = s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, api.StatusFor(model.KindTimeout))
	assert.Equal(t, http.StatusBadGateway, api.StatusFor(model.KindMalformedResult))
	assert.Equal(t, http.StatusServiceUnavailable, api.StatusFor(model.KindTransient))
	assert.Equal(t, http.StatusInternalServerError, api.StatusFor(model.KindFatal))
}
