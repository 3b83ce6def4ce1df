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

package cloud

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// YouTubeMetadata is the gateways.MetadataGateway backed by the YouTube Data API v3.
type YouTubeMetadata struct {
	service *youtube.Service
}

// NewYouTubeMetadata creates the gateway. Options are passed to the API
// client, e.g. option.WithAPIKey.
func NewYouTubeMetadata(ctx context.Context, opts ...option.ClientOption) (*YouTubeMetadata, error) {
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	return &YouTubeMetadata{service: service}, nil
}

// Fetch looks up the title, channel and duration of a video.
func (y *YouTubeMetadata) Fetch(ctx context.Context, videoID string) gateways.Outcome[model.VideoMetadata] {
	resp, err := y.service.Videos.List([]string{"snippet", "contentDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		switch status := statusFor(err); status {
		case gateways.StatusNotFound:
			return gateways.Fail[model.VideoMetadata](status, err)
		case gateways.StatusTransient, gateways.StatusRateLimited:
			return gateways.Fail[model.VideoMetadata](gateways.StatusTransient, err)
		}
		return gateways.Fail[model.VideoMetadata](gateways.StatusFatal, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return gateways.Fail[model.VideoMetadata](gateways.StatusNotFound, fmt.Errorf("video %s does not exist", videoID))
	}
	return gateways.OK(metadataFromVideo(resp.Items[0]))
}

func metadataFromVideo(video *youtube.Video) model.VideoMetadata {
	out := model.VideoMetadata{
		Title:       video.Snippet.Title,
		ChannelName: video.Snippet.ChannelTitle,
	}
	if video.ContentDetails != nil {
		out.Duration = video.ContentDetails.Duration
	}
	if thumbs := video.Snippet.Thumbnails; thumbs != nil {
		for _, t := range []*youtube.Thumbnail{thumbs.High, thumbs.Medium, thumbs.Default} {
			if t != nil && t.Url != "" {
				out.ThumbnailURL = t.Url
				break
			}
		}
	}
	return out
}
