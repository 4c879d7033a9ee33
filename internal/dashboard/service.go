// Package dashboard assembles the viewer page: channel picker, channel
// metrics, videos ranked by views, and the comment browser.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
)

// Operator-facing notices.
const (
	MsgChannelNotFound = "Selected channel not found in the database."
	MsgNoVideos        = "No videos found for this channel."
	MsgNoComments      = "No comments found for this video."
)

// Selection carries the operator's picks. Empty fields select the first option.
type Selection struct {
	ChannelTitle string
	VideoTitle   string
}

// Metric is one headline number on the channel card.
type Metric struct {
	Label string
	Value int64
}

// Page is everything the viewer renders for one request. Sections after a
// warning or info notice are left empty.
type Page struct {
	Channels       []catalog.Channel `json:"channels"`
	ChannelOptions []string          `json:"channel_options"`
	Channel        *catalog.Channel  `json:"channel,omitempty"`
	Metrics        []Metric          `json:"metrics,omitempty"`
	Warning        string            `json:"warning,omitempty"`

	Videos       []catalog.Video `json:"videos,omitempty"`
	TopVideos    []catalog.Video `json:"top_videos,omitempty"`
	VideoOptions []string        `json:"video_options,omitempty"`
	Video        *catalog.Video  `json:"video,omitempty"`
	VideosInfo   string          `json:"videos_info,omitempty"`

	Comments     []catalog.Comment `json:"comments,omitempty"`
	CommentsInfo string            `json:"comments_info,omitempty"`

	LatestRun *catalog.Run `json:"latest_run,omitempty"`
}

// Service builds pages from a read-only store.
type Service struct {
	reader catalog.Reader
	logger *zap.Logger
}

// New constructs a Service.
func New(reader catalog.Reader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reader: reader, logger: logger}
}

// Build loads the rows needed for sel and lays them out.
func (s *Service) Build(ctx context.Context, sel Selection) (Page, error) {
	channels, err := s.reader.ListChannels(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("load channels: %w", err)
	}
	page := Page{
		Channels:       channels,
		ChannelOptions: ChannelTitles(channels),
		LatestRun:      s.latestRun(ctx),
	}

	title := sel.ChannelTitle
	if title == "" && len(page.ChannelOptions) > 0 {
		title = page.ChannelOptions[0]
	}
	channel, ok := findChannel(channels, title)
	if !ok {
		page.Warning = MsgChannelNotFound
		return page, nil
	}
	page.Channel = &channel
	page.Metrics = []Metric{
		{Label: "Subscribers", Value: channel.SubscriberCount},
		{Label: "Total Views", Value: channel.ViewCount},
		{Label: "Total Videos", Value: channel.VideoCount},
	}

	videos, err := s.reader.ListVideos(ctx, channel.ChannelID)
	if err != nil {
		return Page{}, fmt.Errorf("load videos for %s: %w", channel.ChannelID, err)
	}
	if len(videos) == 0 {
		page.VideosInfo = MsgNoVideos
		return page, nil
	}
	page.Videos = videos
	page.TopVideos = TopByViews(videos, catalog.TopVideoLimit)
	page.VideoOptions = make([]string, 0, len(videos))
	for _, v := range videos {
		page.VideoOptions = append(page.VideoOptions, v.Title)
	}

	video := findVideo(videos, sel.VideoTitle)
	page.Video = &video

	comments, err := s.reader.ListComments(ctx, video.VideoID)
	if err != nil {
		return Page{}, fmt.Errorf("load comments for %s: %w", video.VideoID, err)
	}
	if len(comments) == 0 {
		page.CommentsInfo = MsgNoComments
		return page, nil
	}
	page.Comments = comments
	return page, nil
}

func (s *Service) latestRun(ctx context.Context) *catalog.Run {
	run, err := s.reader.LatestRun(ctx)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("failed to load latest run", zap.Error(err))
		}
		return nil
	}
	return &run
}

// ChannelTitles returns distinct non-empty titles in load order.
func ChannelTitles(channels []catalog.Channel) []string {
	seen := make(map[string]struct{}, len(channels))
	titles := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.Title == "" {
			continue
		}
		if _, dup := seen[ch.Title]; dup {
			continue
		}
		seen[ch.Title] = struct{}{}
		titles = append(titles, ch.Title)
	}
	return titles
}

// TopByViews returns up to n videos ordered by view count, highest first.
// Ties keep their load order.
func TopByViews(videos []catalog.Video, n int) []catalog.Video {
	ranked := make([]catalog.Video, len(videos))
	copy(ranked, videos)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ViewCount > ranked[j].ViewCount
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func findChannel(channels []catalog.Channel, title string) (catalog.Channel, bool) {
	if title == "" {
		return catalog.Channel{}, false
	}
	for _, ch := range channels {
		if ch.Title == title {
			return ch, true
		}
	}
	return catalog.Channel{}, false
}

// findVideo returns the first video titled title, or the first video when none matches.
func findVideo(videos []catalog.Video, title string) catalog.Video {
	for _, v := range videos {
		if v.Title == title {
			return v
		}
	}
	return videos[0]
}
