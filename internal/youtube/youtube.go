// Package youtube lists a channel's videos through the YouTube Data API v3.
package youtube

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

const pageSize = 50

// Video is one channel upload, newest first in listings.
type Video struct {
	VideoID     string
	Title       string
	PublishedAt time.Time
	Description string
}

// Lister enumerates a channel's videos.
type Lister interface {
	ListVideos(ctx context.Context, channelID string, maxVideos int) ([]Video, error)
}

// Client wraps the Data API with API-key auth.
type Client struct {
	service *yt.Service
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	service, err := yt.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	return &Client{service: service}, nil
}

// ListVideos pages through search.list ordered by date until maxVideos
// uploads are collected or the channel runs out.
func (c *Client) ListVideos(ctx context.Context, channelID string, maxVideos int) ([]Video, error) {
	if maxVideos <= 0 {
		maxVideos = 200
	}

	var videos []Video
	pageToken := ""
	for len(videos) < maxVideos {
		remaining := maxVideos - len(videos)
		call := c.service.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			Type("video").
			Order("date").
			MaxResults(int64(min(pageSize, remaining))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing videos for channel %s: %w", channelID, err)
		}

		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
				continue
			}
			publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
			if err != nil {
				publishedAt = time.Time{}
			}
			videos = append(videos, Video{
				VideoID:     item.Id.VideoId,
				Title:       item.Snippet.Title,
				PublishedAt: publishedAt,
				Description: item.Snippet.Description,
			})
			if len(videos) >= maxVideos {
				break
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return videos, nil
}
