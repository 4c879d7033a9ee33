// Package catalog defines core types shared across subsystems.
package catalog

import (
	"errors"
	"time"
)

// Fixed fetch and display limits.
const (
	RecentVideoLimit = 5
	CommentLimit     = 20
	TopVideoLimit    = 5
	AnonymousAuthor  = "Anonymous"
)

// ErrNotFound signals that the requested channel, video, or run does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Channel mirrors a row of the channels table.
type Channel struct {
	ChannelID       string     `json:"channel_id" db:"channel_id"`
	Title           string     `json:"title" db:"title"`
	Description     string     `json:"description" db:"description"`
	PublishedAt     *time.Time `json:"published_at,omitempty" db:"published_at"`
	SubscriberCount int64      `json:"subscriber_count" db:"subscriber_count"`
	ViewCount       int64      `json:"view_count" db:"view_count"`
	VideoCount      int64      `json:"video_count" db:"video_count"`
}

// Video mirrors a row of the videos table.
type Video struct {
	VideoID      string     `json:"video_id" db:"video_id"`
	ChannelID    string     `json:"channel_id" db:"channel_id"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	PublishedAt  *time.Time `json:"published_at,omitempty" db:"published_at"`
	ViewCount    int64      `json:"view_count" db:"view_count"`
	LikeCount    int64      `json:"like_count" db:"like_count"`
	CommentCount int64      `json:"comment_count" db:"comment_count"`
}

// Comment mirrors a row of the comments table. Only top-level comments are stored.
type Comment struct {
	CommentID         string     `json:"comment_id" db:"comment_id"`
	VideoID           string     `json:"video_id" db:"video_id"`
	AuthorDisplayName string     `json:"author_display_name" db:"author_display_name"`
	TextDisplay       string     `json:"text_display" db:"text_display"`
	PublishedAt       *time.Time `json:"published_at,omitempty" db:"published_at"`
}

// RunStatus mirrors the fetch_runs.status column.
type RunStatus string

// Run statuses persisted in fetch_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// Run records one fetcher pass over the configured channel list.
type Run struct {
	ID             string     `json:"id" db:"id"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status         RunStatus  `json:"status" db:"status"`
	ChannelsOK     int        `json:"channels_ok" db:"channels_ok"`
	ChannelsFailed int        `json:"channels_failed" db:"channels_failed"`
	ErrorMessage   *string    `json:"error_message,omitempty" db:"error_message"`
}

// ChannelSnapshot is the normalized result of fetching one channel; it is
// what gets archived and announced after the rows are written.
type ChannelSnapshot struct {
	RunID     string    `json:"run_id"`
	FetchedAt time.Time `json:"fetched_at"`
	Channel   Channel   `json:"channel"`
	Videos    []Video   `json:"videos"`
	Comments  []Comment `json:"comments"`
}

// ParseTimestamp converts an RFC 3339 API timestamp. Empty or malformed input yields nil.
func ParseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}
