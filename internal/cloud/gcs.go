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

// Package cloud contains data structures and utilities for interacting with Google Cloud services.
// This file locates and opens the source video of a request in Google Cloud
// Storage (GCS). Videos are stored one object per video id:
//
//	gs://<bucket>/<prefix><videoId><suffix>
//
// Structs:
//   - GCSObject: A simplified internal model for GCS objects.
//   - GCSVideoSource: Opens the object of a video id.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ErrVideoNotStored is returned when no object exists for a video id.
var ErrVideoNotStored = errors.New("video is not stored")

// GCSObject is a simplified, internal representation of a Google Cloud Storage (GCS)
// object.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// String returns the gs:// URI of the object.
func (o GCSObject) String() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// VideoSource opens the stored media of a video.
type VideoSource interface {
	Open(ctx context.Context, videoID string) (io.ReadCloser, GCSObject, error)
}

// GCSVideoSource reads videos from a bucket.
type GCSVideoSource struct {
	client *storage.Client
	config Storage
}

// NewGCSVideoSource creates a source over config.VideoBucket.
func NewGCSVideoSource(client *storage.Client, config Storage) *GCSVideoSource {
	return &GCSVideoSource{client: client, config: config}
}

// ObjectFor returns the object a video id is stored under.
func ObjectFor(config Storage, videoID string) GCSObject {
	return GCSObject{Bucket: config.VideoBucket, Name: config.ObjectPrefix + videoID + config.ObjectSuffix}
}

// Open starts reading the object of videoID. The caller closes the reader.
func (s *GCSVideoSource) Open(ctx context.Context, videoID string) (io.ReadCloser, GCSObject, error) {
	obj := ObjectFor(s.config, videoID)
	reader, err := s.client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, obj, fmt.Errorf("%w: %s", ErrVideoNotStored, obj)
		}
		return nil, obj, fmt.Errorf("opening %s: %w", obj, err)
	}
	obj.MIMEType = reader.Attrs.ContentType
	return reader, obj, nil
}
