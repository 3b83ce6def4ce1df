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
// This file implements the media gateway: source videos are streamed from GCS
// into the Gemini Files API, where they are processed before a model can
// reference them, and deleted once the pipeline is done with them.
//
// Logic Flow of an upload:
//  1. The video object is opened in GCS.
//  2. The first bytes are sniffed; anything that is not a video is rejected
//     before it is sent anywhere.
//  3. The sniffed header and the rest of the object are streamed to
//     Files.Upload under the detected MIME type.
package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/h2non/filetype"
	"google.golang.org/genai"

	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// sniffLength is enough header for every format filetype knows.
const sniffLength = 261

// FilesService is the part of genai.Files the media gateway uses.
type FilesService interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// GeminiMedia is the gateways.MediaGateway backed by GCS and the Gemini
// Files API.
type GeminiMedia struct {
	files  FilesService
	source VideoSource
}

// NewGeminiMedia creates the media gateway.
func NewGeminiMedia(files FilesService, source VideoSource) *GeminiMedia {
	return &GeminiMedia{files: files, source: source}
}

// Upload streams the stored video of ref into the Files API.
func (m *GeminiMedia) Upload(ctx context.Context, ref model.VideoReference) gateways.Outcome[model.MediaHandle] {
	reader, obj, err := m.source.Open(ctx, ref.VideoID)
	if err != nil {
		if errors.Is(err, ErrVideoNotStored) {
			return gateways.Fail[model.MediaHandle](gateways.StatusRejected, err)
		}
		return gateways.Fail[model.MediaHandle](transientOr(err, gateways.StatusFatal), err)
	}
	defer reader.Close()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(reader, head)
	switch {
	case errors.Is(err, io.EOF):
		return gateways.Fail[model.MediaHandle](gateways.StatusRejected, fmt.Errorf("%s is empty", obj))
	case err != nil && !errors.Is(err, io.ErrUnexpectedEOF):
		return gateways.Fail[model.MediaHandle](gateways.StatusTransient, fmt.Errorf("reading %s: %w", obj, err))
	}
	head = head[:n]

	detected, _ := filetype.Match(head)
	if !filetype.IsVideo(head) {
		return gateways.Fail[model.MediaHandle](gateways.StatusRejected,
			fmt.Errorf("%s is not a video (detected %q)", obj, detected.MIME.Value))
	}

	file, err := m.files.Upload(ctx, io.MultiReader(bytes.NewReader(head), reader), &genai.UploadFileConfig{
		MIMEType:    detected.MIME.Value,
		DisplayName: ref.VideoID,
	})
	if err != nil {
		return gateways.Fail[model.MediaHandle](uploadStatus(err), fmt.Errorf("uploading %s: %w", obj, err))
	}

	handle := model.MediaHandle{Name: file.Name, URI: file.URI, MIMEType: file.MIMEType}
	if handle.MIMEType == "" {
		handle.MIMEType = detected.MIME.Value
	}
	return gateways.OK(handle)
}

func uploadStatus(err error) gateways.Status {
	switch statusFor(err) {
	case gateways.StatusTransient, gateways.StatusRateLimited:
		return gateways.StatusTransient
	case gateways.StatusNotFound:
		return gateways.StatusRejected
	}
	if code := httpCode(err); code >= 400 && code < 500 {
		return gateways.StatusRejected
	}
	return gateways.StatusFatal
}

// PollStatus reports whether the uploaded file has become usable.
func (m *GeminiMedia) PollStatus(ctx context.Context, handle model.MediaHandle) gateways.Outcome[gateways.Unit] {
	file, err := m.files.Get(ctx, handle.Name, nil)
	if err != nil {
		if statusFor(err) == gateways.StatusNotFound {
			return gateways.Fail[gateways.Unit](gateways.StatusFailed, fmt.Errorf("file %s disappeared: %w", handle.Name, err))
		}
		return gateways.Fail[gateways.Unit](transientOr(err, gateways.StatusFatal), err)
	}
	switch file.State {
	case genai.FileStateActive:
		return gateways.OK(gateways.Unit{})
	case genai.FileStateFailed:
		reason := "no reason given"
		if file.Error != nil && file.Error.Message != "" {
			reason = file.Error.Message
		}
		return gateways.Fail[gateways.Unit](gateways.StatusFailed, fmt.Errorf("processing of %s failed: %s", handle.Name, reason))
	}
	return gateways.Outcome[gateways.Unit]{Status: gateways.StatusPending}
}

// Delete removes the uploaded file. A file that is already gone is fine.
func (m *GeminiMedia) Delete(ctx context.Context, handle model.MediaHandle) gateways.Outcome[gateways.Unit] {
	if _, err := m.files.Delete(ctx, handle.Name, nil); err != nil {
		if statusFor(err) == gateways.StatusNotFound {
			return gateways.Fail[gateways.Unit](gateways.StatusIgnorable, err)
		}
		return gateways.Fail[gateways.Unit](transientOr(err, gateways.StatusFatal), err)
	}
	return gateways.OK(gateways.Unit{})
}

// transientOr returns Transient for retryable provider errors, otherwise
// fallback.
func transientOr(err error, fallback gateways.Status) gateways.Status {
	switch statusFor(err) {
	case gateways.StatusTransient, gateways.StatusRateLimited:
		return gateways.StatusTransient
	}
	return fallback
}
