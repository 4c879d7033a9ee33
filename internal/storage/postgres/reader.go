package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
)

// ListChannels returns every channel in first-insert order.
func (s *Store) ListChannels(ctx context.Context) ([]catalog.Channel, error) {
	query := `
		SELECT channel_id, COALESCE(title, ''), COALESCE(description, ''), published_at,
			COALESCE(subscriber_count, 0), COALESCE(view_count, 0), COALESCE(video_count, 0)
		FROM channels
		ORDER BY ingest_seq;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []catalog.Channel
	for rows.Next() {
		var ch catalog.Channel
		err := rows.Scan(
			&ch.ChannelID,
			&ch.Title,
			&ch.Description,
			&ch.PublishedAt,
			&ch.SubscriberCount,
			&ch.ViewCount,
			&ch.VideoCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// ListVideos returns the channel's videos in first-insert order.
func (s *Store) ListVideos(ctx context.Context, channelID string) ([]catalog.Video, error) {
	query := `
		SELECT video_id, channel_id, COALESCE(title, ''), COALESCE(description, ''), published_at,
			COALESCE(view_count, 0), COALESCE(like_count, 0), COALESCE(comment_count, 0)
		FROM videos
		WHERE channel_id = $1
		ORDER BY ingest_seq;
	`
	rows, err := s.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []catalog.Video
	for rows.Next() {
		var v catalog.Video
		err := rows.Scan(
			&v.VideoID,
			&v.ChannelID,
			&v.Title,
			&v.Description,
			&v.PublishedAt,
			&v.ViewCount,
			&v.LikeCount,
			&v.CommentCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

// ListComments returns the video's comments in first-insert order.
func (s *Store) ListComments(ctx context.Context, videoID string) ([]catalog.Comment, error) {
	query := `
		SELECT comment_id, video_id, COALESCE(author_display_name, ''), COALESCE(text_display, ''), published_at
		FROM comments
		WHERE video_id = $1
		ORDER BY ingest_seq;
	`
	rows, err := s.pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []catalog.Comment
	for rows.Next() {
		var c catalog.Comment
		err := rows.Scan(
			&c.CommentID,
			&c.VideoID,
			&c.AuthorDisplayName,
			&c.TextDisplay,
			&c.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// LatestRun returns the most recently started fetch run.
func (s *Store) LatestRun(ctx context.Context) (catalog.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, channels_ok, channels_failed, error_message
		FROM fetch_runs
		ORDER BY started_at DESC
		LIMIT 1;
	`
	var (
		run    catalog.Run
		status string
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ChannelsOK,
		&run.ChannelsFailed,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Run{}, catalog.ErrNotFound
		}
		return catalog.Run{}, fmt.Errorf("failed to get latest run: %w", err)
	}
	run.Status = catalog.RunStatus(status)
	return run, nil
}
