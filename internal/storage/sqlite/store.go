// Package sqlite provides a single-file catalog store for running the
// fetcher and viewer on one machine without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/metrics"
)

// Timestamps are stored as fixed-width UTC text so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const bootstrapSQL = `
CREATE TABLE IF NOT EXISTS channels (
	channel_id TEXT PRIMARY KEY,
	title TEXT,
	description TEXT,
	published_at TEXT,
	subscriber_count INTEGER,
	view_count INTEGER,
	video_count INTEGER
);
CREATE TABLE IF NOT EXISTS videos (
	video_id TEXT PRIMARY KEY,
	channel_id TEXT REFERENCES channels(channel_id),
	title TEXT,
	description TEXT,
	published_at TEXT,
	view_count INTEGER,
	like_count INTEGER,
	comment_count INTEGER
);
CREATE TABLE IF NOT EXISTS comments (
	comment_id TEXT PRIMARY KEY,
	video_id TEXT REFERENCES videos(video_id),
	author_display_name TEXT,
	text_display TEXT,
	published_at TEXT
);
CREATE TABLE IF NOT EXISTS fetch_runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	channels_ok INTEGER NOT NULL DEFAULT 0,
	channels_failed INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS videos_channel_id_idx ON videos(channel_id);
CREATE INDEX IF NOT EXISTS comments_video_id_idx ON comments(video_id);
`

// Store implements catalog.Store and catalog.Reader with sqlx over modernc.org/sqlite.
type Store struct {
	db *sqlx.DB
}

var (
	_ catalog.Store  = (*Store)(nil)
	_ catalog.Reader = (*Store)(nil)
)

// Open connects to the database file at path and creates missing tables.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db.path is required")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, bootstrapSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle without creating tables (primarily for testing).
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the database handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

type channelRow struct {
	ChannelID       string         `db:"channel_id"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	PublishedAt     sql.NullString `db:"published_at"`
	SubscriberCount int64          `db:"subscriber_count"`
	ViewCount       int64          `db:"view_count"`
	VideoCount      int64          `db:"video_count"`
}

type videoRow struct {
	VideoID      string         `db:"video_id"`
	ChannelID    string         `db:"channel_id"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	PublishedAt  sql.NullString `db:"published_at"`
	ViewCount    int64          `db:"view_count"`
	LikeCount    int64          `db:"like_count"`
	CommentCount int64          `db:"comment_count"`
}

type commentRow struct {
	CommentID         string         `db:"comment_id"`
	VideoID           string         `db:"video_id"`
	AuthorDisplayName string         `db:"author_display_name"`
	TextDisplay       string         `db:"text_display"`
	PublishedAt       sql.NullString `db:"published_at"`
}

type runRow struct {
	ID             string         `db:"id"`
	StartedAt      string         `db:"started_at"`
	FinishedAt     sql.NullString `db:"finished_at"`
	Status         string         `db:"status"`
	ChannelsOK     int            `db:"channels_ok"`
	ChannelsFailed int            `db:"channels_failed"`
	ErrorMessage   sql.NullString `db:"error_message"`
}

const upsertChannelSQL = `
INSERT INTO channels (channel_id, title, description, published_at, subscriber_count, view_count, video_count)
VALUES (:channel_id, :title, :description, :published_at, :subscriber_count, :view_count, :video_count)
ON CONFLICT (channel_id) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	subscriber_count = excluded.subscriber_count,
	view_count = excluded.view_count,
	video_count = excluded.video_count`

const upsertVideoSQL = `
INSERT INTO videos (video_id, channel_id, title, description, published_at, view_count, like_count, comment_count)
VALUES (:video_id, :channel_id, :title, :description, :published_at, :view_count, :like_count, :comment_count)
ON CONFLICT (video_id) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	view_count = excluded.view_count,
	like_count = excluded.like_count,
	comment_count = excluded.comment_count`

const upsertCommentSQL = `
INSERT INTO comments (comment_id, video_id, author_display_name, text_display, published_at)
VALUES (:comment_id, :video_id, :author_display_name, :text_display, :published_at)
ON CONFLICT (comment_id) DO UPDATE SET
	author_display_name = excluded.author_display_name,
	text_display = excluded.text_display`

// UpsertChannel inserts the channel or refreshes its title, description, and statistics.
func (s *Store) UpsertChannel(ctx context.Context, ch catalog.Channel) error {
	row := channelRow{
		ChannelID:       ch.ChannelID,
		Title:           ch.Title,
		Description:     ch.Description,
		PublishedAt:     formatTime(ch.PublishedAt),
		SubscriberCount: ch.SubscriberCount,
		ViewCount:       ch.ViewCount,
		VideoCount:      ch.VideoCount,
	}
	if _, err := s.db.NamedExecContext(ctx, upsertChannelSQL, row); err != nil {
		return fmt.Errorf("upsert channel %s: %w", ch.ChannelID, err)
	}
	metrics.ObserveUpsert("channels", 1)
	return nil
}

// UpsertVideos writes the batch in one transaction.
func (s *Store) UpsertVideos(ctx context.Context, videos []catalog.Video) error {
	if len(videos) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, v := range videos {
			row := videoRow{
				VideoID:      v.VideoID,
				ChannelID:    v.ChannelID,
				Title:        v.Title,
				Description:  v.Description,
				PublishedAt:  formatTime(v.PublishedAt),
				ViewCount:    v.ViewCount,
				LikeCount:    v.LikeCount,
				CommentCount: v.CommentCount,
			}
			if _, err := tx.NamedExecContext(ctx, upsertVideoSQL, row); err != nil {
				return fmt.Errorf("upsert video %s: %w", v.VideoID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ObserveUpsert("videos", len(videos))
	return nil
}

// UpsertComments writes the batch in one transaction.
func (s *Store) UpsertComments(ctx context.Context, comments []catalog.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, c := range comments {
			row := commentRow{
				CommentID:         c.CommentID,
				VideoID:           c.VideoID,
				AuthorDisplayName: c.AuthorDisplayName,
				TextDisplay:       c.TextDisplay,
				PublishedAt:       formatTime(c.PublishedAt),
			}
			if _, err := tx.NamedExecContext(ctx, upsertCommentSQL, row); err != nil {
				return fmt.Errorf("upsert comment %s: %w", c.CommentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ObserveUpsert("comments", len(comments))
	return nil
}

// StartRun records a new fetch run.
func (s *Store) StartRun(ctx context.Context, run catalog.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun stores the terminal status and channel counts of a run.
func (s *Store) FinishRun(ctx context.Context, run catalog.Run) error {
	var errMsg sql.NullString
	if run.ErrorMessage != nil {
		errMsg = sql.NullString{String: *run.ErrorMessage, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE fetch_runs
		SET finished_at = ?, status = ?, channels_ok = ?, channels_failed = ?, error_message = ?
		WHERE id = ?`,
		formatTime(run.FinishedAt), string(run.Status), run.ChannelsOK, run.ChannelsFailed, errMsg, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, catalog.ErrNotFound)
	}
	return nil
}

// ListChannels returns every channel row in insertion order.
func (s *Store) ListChannels(ctx context.Context) ([]catalog.Channel, error) {
	var rows []channelRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT channel_id, COALESCE(title, '') AS title, COALESCE(description, '') AS description, published_at,
			COALESCE(subscriber_count, 0) AS subscriber_count, COALESCE(view_count, 0) AS view_count,
			COALESCE(video_count, 0) AS video_count
		FROM channels ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	out := make([]catalog.Channel, 0, len(rows))
	for _, r := range rows {
		out = append(out, catalog.Channel{
			ChannelID:       r.ChannelID,
			Title:           r.Title,
			Description:     r.Description,
			PublishedAt:     parseTime(r.PublishedAt),
			SubscriberCount: r.SubscriberCount,
			ViewCount:       r.ViewCount,
			VideoCount:      r.VideoCount,
		})
	}
	return out, nil
}

// ListVideos returns the channel's videos in insertion order.
func (s *Store) ListVideos(ctx context.Context, channelID string) ([]catalog.Video, error) {
	var rows []videoRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT video_id, channel_id, COALESCE(title, '') AS title, COALESCE(description, '') AS description,
			published_at, COALESCE(view_count, 0) AS view_count, COALESCE(like_count, 0) AS like_count,
			COALESCE(comment_count, 0) AS comment_count
		FROM videos WHERE channel_id = ? ORDER BY rowid`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	out := make([]catalog.Video, 0, len(rows))
	for _, r := range rows {
		out = append(out, catalog.Video{
			VideoID:      r.VideoID,
			ChannelID:    r.ChannelID,
			Title:        r.Title,
			Description:  r.Description,
			PublishedAt:  parseTime(r.PublishedAt),
			ViewCount:    r.ViewCount,
			LikeCount:    r.LikeCount,
			CommentCount: r.CommentCount,
		})
	}
	return out, nil
}

// ListComments returns the video's comments in insertion order.
func (s *Store) ListComments(ctx context.Context, videoID string) ([]catalog.Comment, error) {
	var rows []commentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT comment_id, video_id, COALESCE(author_display_name, '') AS author_display_name,
			COALESCE(text_display, '') AS text_display, published_at
		FROM comments WHERE video_id = ? ORDER BY rowid`, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	out := make([]catalog.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, catalog.Comment{
			CommentID:         r.CommentID,
			VideoID:           r.VideoID,
			AuthorDisplayName: r.AuthorDisplayName,
			TextDisplay:       r.TextDisplay,
			PublishedAt:       parseTime(r.PublishedAt),
		})
	}
	return out, nil
}

// LatestRun returns the most recently started fetch run.
func (s *Store) LatestRun(ctx context.Context) (catalog.Run, error) {
	var r runRow
	err := s.db.GetContext(ctx, &r, `
		SELECT id, started_at, finished_at, status, channels_ok, channels_failed, error_message
		FROM fetch_runs ORDER BY started_at DESC LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Run{}, catalog.ErrNotFound
		}
		return catalog.Run{}, fmt.Errorf("failed to get latest run: %w", err)
	}
	run := catalog.Run{
		ID:             r.ID,
		FinishedAt:     parseTime(r.FinishedAt),
		Status:         catalog.RunStatus(r.Status),
		ChannelsOK:     r.ChannelsOK,
		ChannelsFailed: r.ChannelsFailed,
	}
	if started := parseTime(sql.NullString{String: r.StartedAt, Valid: true}); started != nil {
		run.StartedAt = *started
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		run.ErrorMessage = &msg
	}
	return run, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
