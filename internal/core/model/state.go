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

package model

// PipelineState is the lifecycle state of one pipeline execution.
type PipelineState string

const (
	StatePending          PipelineState = "PENDING"
	StateMetadataFetching PipelineState = "METADATA_FETCHING"
	StateMediaUploading   PipelineState = "MEDIA_UPLOADING"
	StateMediaProcessing  PipelineState = "MEDIA_PROCESSING"
	StateGenerating       PipelineState = "GENERATING"
	StateCleaningUp       PipelineState = "CLEANING_UP"
	StateSucceeded        PipelineState = "SUCCEEDED"
	StateFailed           PipelineState = "FAILED"
	StateCancelled        PipelineState = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s PipelineState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// ArtifactRequest is the input of one pipeline execution.
type ArtifactRequest struct {
	Fingerprint Fingerprint
	VideoID     string
	Language    string
	Kind        Kind
}

// NewArtifactRequest builds the pipeline input for a fingerprint.
func NewArtifactRequest(fp Fingerprint) *ArtifactRequest {
	return &ArtifactRequest{
		Fingerprint: fp,
		VideoID:     fp.VideoID(),
		Language:    fp.Language(),
		Kind:        fp.Kind(),
	}
}
