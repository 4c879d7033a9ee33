package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/metrics"
)

const upsertChannelSQL = `
INSERT INTO channels (
	channel_id, title, description, published_at,
	subscriber_count, view_count, video_count
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (channel_id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	subscriber_count = EXCLUDED.subscriber_count,
	view_count = EXCLUDED.view_count,
	video_count = EXCLUDED.video_count`

const upsertVideoSQL = `
INSERT INTO videos (
	video_id, channel_id, title, description, published_at,
	view_count, like_count, comment_count
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (video_id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	view_count = EXCLUDED.view_count,
	like_count = EXCLUDED.like_count,
	comment_count = EXCLUDED.comment_count`

const upsertCommentSQL = `
INSERT INTO comments (
	comment_id, video_id, author_display_name, text_display, published_at
) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (comment_id) DO UPDATE SET
	author_display_name = EXCLUDED.author_display_name,
	text_display = EXCLUDED.text_display`

// UpsertChannel inserts the channel or refreshes its title, description, and statistics.
func (s *Store) UpsertChannel(ctx context.Context, ch catalog.Channel) error {
	_, err := s.pool.Exec(ctx, upsertChannelSQL,
		ch.ChannelID,
		ch.Title,
		ch.Description,
		ch.PublishedAt,
		ch.SubscriberCount,
		ch.ViewCount,
		ch.VideoCount,
	)
	if err != nil {
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
	err := s.inTx(ctx, len(videos), func(tx pgx.Tx, i int) error {
		v := videos[i]
		if _, err := tx.Exec(ctx, upsertVideoSQL,
			v.VideoID,
			v.ChannelID,
			v.Title,
			v.Description,
			v.PublishedAt,
			v.ViewCount,
			v.LikeCount,
			v.CommentCount,
		); err != nil {
			return fmt.Errorf("upsert video %s: %w", v.VideoID, err)
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
	err := s.inTx(ctx, len(comments), func(tx pgx.Tx, i int) error {
		c := comments[i]
		if _, err := tx.Exec(ctx, upsertCommentSQL,
			c.CommentID,
			c.VideoID,
			c.AuthorDisplayName,
			c.TextDisplay,
			c.PublishedAt,
		); err != nil {
			return fmt.Errorf("upsert comment %s: %w", c.CommentID, err)
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
	query := `
		INSERT INTO fetch_runs (id, started_at, status, channels_ok, channels_failed)
		VALUES ($1, $2, $3, 0, 0);
	`
	if _, err := s.pool.Exec(ctx, query, run.ID, run.StartedAt, string(run.Status)); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun stores the terminal status and channel counts of a run.
func (s *Store) FinishRun(ctx context.Context, run catalog.Run) error {
	query := `
		UPDATE fetch_runs
		SET finished_at = $1, status = $2, channels_ok = $3, channels_failed = $4, error_message = $5
		WHERE id = $6;
	`
	tag, err := s.pool.Exec(ctx, query,
		run.FinishedAt,
		string(run.Status),
		run.ChannelsOK,
		run.ChannelsFailed,
		run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", run.ID, catalog.ErrNotFound)
	}
	return nil
}
