// Package youtube implements catalog.Source on top of the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/metrics"
	"github.com/JakeFAU/youtube-etl/internal/policy/ratelimit"
	"github.com/JakeFAU/youtube-etl/internal/policy/retry"
)

// API operation names, used for pacing and metric labels.
const (
	OpChannels       = "channels.list"
	OpSearch         = "search.list"
	OpVideos         = "videos.list"
	OpCommentThreads = "commentThreads.list"
)

// Config controls the Data API client.
type Config struct {
	APIKey            string
	Endpoint          string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

// Client fetches channel, video, and comment metadata with a static API key.
type Client struct {
	svc     *yt.Service
	limiter *ratelimit.Limiter
	retry   *retry.Policy
	logger  *zap.Logger
}

var _ catalog.Source = (*Client)(nil)

// New builds a Client.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &transport.APIKey{Key: cfg.APIKey, Transport: base},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{
		svc:     svc,
		limiter: ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond, Burst: 1}),
		retry:   retry.New(cfg.MaxRetries, Retryable),
		logger:  logger,
	}, nil
}

// FetchChannel returns the channel's snippet and statistics.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (catalog.Channel, error) {
	var resp *yt.ChannelListResponse
	err := c.do(ctx, OpChannels, func() error {
		var err error
		resp, err = c.svc.Channels.List([]string{"snippet", "statistics"}).
			Id(channelID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return catalog.Channel{}, err
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		return catalog.Channel{}, fmt.Errorf("channel %s: %w", channelID, catalog.ErrNotFound)
	}
	return channelFromAPI(resp.Items[0]), nil
}

// FetchRecentVideoIDs returns up to limit video IDs, newest first, from the first result page.
func (c *Client) FetchRecentVideoIDs(ctx context.Context, channelID string, limit int) ([]string, error) {
	var resp *yt.SearchListResponse
	err := c.do(ctx, OpSearch, func() error {
		var err error
		resp, err = c.svc.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			MaxResults(int64(limit)).
			Order("date").
			Type("video").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ids = append(ids, item.Id.VideoId)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// FetchVideo returns one video's snippet and statistics, attributed to channelID.
func (c *Client) FetchVideo(ctx context.Context, videoID, channelID string) (catalog.Video, error) {
	var resp *yt.VideoListResponse
	err := c.do(ctx, OpVideos, func() error {
		var err error
		resp, err = c.svc.Videos.List([]string{"snippet", "statistics"}).
			Id(videoID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return catalog.Video{}, err
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		return catalog.Video{}, fmt.Errorf("video %s: %w", videoID, catalog.ErrNotFound)
	}
	return videoFromAPI(resp.Items[0], videoID, channelID), nil
}

// FetchComments returns up to limit top-level comments as plain text.
func (c *Client) FetchComments(ctx context.Context, videoID string, limit int) ([]catalog.Comment, error) {
	var resp *yt.CommentThreadListResponse
	err := c.do(ctx, OpCommentThreads, func() error {
		var err error
		resp, err = c.svc.CommentThreads.List([]string{"snippet"}).
			VideoId(videoID).
			MaxResults(int64(limit)).
			TextFormat("plainText").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	comments := make([]catalog.Comment, 0, len(resp.Items))
	for _, item := range resp.Items {
		comment, ok := commentFromAPI(item, videoID)
		if !ok {
			c.logger.Debug("skipping comment thread without top-level snippet", zap.String("video_id", videoID))
			continue
		}
		comments = append(comments, comment)
		if len(comments) == limit {
			break
		}
	}
	return comments, nil
}

func (c *Client) do(ctx context.Context, op string, call func() error) error {
	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx, op); err != nil {
			return err
		}
		err := call()
		metrics.ObserveAPICall(op, err)
		if err != nil {
			c.logger.Debug("api call failed", zap.String("operation", op), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Retryable reports whether an API error is transient. Quota and permission
// errors (403, 429) are returned to the caller as-is.
func Retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func channelFromAPI(item *yt.Channel) catalog.Channel {
	ch := catalog.Channel{ChannelID: item.Id}
	if s := item.Snippet; s != nil {
		ch.Title = s.Title
		ch.Description = s.Description
		ch.PublishedAt = catalog.ParseTimestamp(s.PublishedAt)
	}
	if st := item.Statistics; st != nil {
		ch.SubscriberCount = toInt64(st.SubscriberCount)
		ch.ViewCount = toInt64(st.ViewCount)
		ch.VideoCount = toInt64(st.VideoCount)
	}
	return ch
}

func videoFromAPI(item *yt.Video, videoID, channelID string) catalog.Video {
	v := catalog.Video{VideoID: videoID, ChannelID: channelID}
	if s := item.Snippet; s != nil {
		v.Title = s.Title
		v.Description = s.Description
		v.PublishedAt = catalog.ParseTimestamp(s.PublishedAt)
	}
	if st := item.Statistics; st != nil {
		v.ViewCount = toInt64(st.ViewCount)
		v.LikeCount = toInt64(st.LikeCount)
		v.CommentCount = toInt64(st.CommentCount)
	}
	return v
}

func commentFromAPI(item *yt.CommentThread, videoID string) (catalog.Comment, bool) {
	if item == nil || item.Id == "" || item.Snippet == nil ||
		item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
		return catalog.Comment{}, false
	}
	top := item.Snippet.TopLevelComment.Snippet
	author := top.AuthorDisplayName
	if author == "" {
		author = catalog.AnonymousAuthor
	}
	return catalog.Comment{
		CommentID:         item.Id,
		VideoID:           videoID,
		AuthorDisplayName: author,
		TextDisplay:       top.TextDisplay,
		PublishedAt:       catalog.ParseTimestamp(top.PublishedAt),
	}, true
}

func toInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}
