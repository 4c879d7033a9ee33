package catalog

import (
	"context"
	"io"
	"time"
)

// Source reads channel metadata from the video platform.
type Source interface {
	FetchChannel(ctx context.Context, channelID string) (Channel, error)
	FetchRecentVideoIDs(ctx context.Context, channelID string, limit int) ([]string, error)
	FetchVideo(ctx context.Context, videoID, channelID string) (Video, error)
	FetchComments(ctx context.Context, videoID string, limit int) ([]Comment, error)
}

// Store persists fetched rows using idempotent upserts.
type Store interface {
	UpsertChannel(ctx context.Context, channel Channel) error
	UpsertVideos(ctx context.Context, videos []Video) error
	UpsertComments(ctx context.Context, comments []Comment) error
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	Close()
}

// Reader serves the viewer's read-only queries.
type Reader interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	ListVideos(ctx context.Context, channelID string) ([]Video, error)
	ListComments(ctx context.Context, videoID string) ([]Comment, error)
	LatestRun(ctx context.Context) (Run, error)
	Ping(ctx context.Context) error
}

// BlobStore writes archived snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes sync events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
