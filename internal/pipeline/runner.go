// Package pipeline runs one fetcher pass: pull every configured channel from
// the source and upsert it into the store, one channel at a time.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/hash/sha256"
	"github.com/JakeFAU/youtube-etl/internal/metrics"
	"github.com/JakeFAU/youtube-etl/internal/telemetry"
)

// EventType is attached to every sync notification.
const EventType = "channel.synced"

// Config controls the optional side effects of a run.
type Config struct {
	// ArchivePrefix is the first path segment of archived snapshots.
	ArchivePrefix string
	// Topic receives one event per synced channel when a publisher is set.
	Topic string
	// MetricsTextfile, when set, receives the Prometheus registry after the run.
	MetricsTextfile string
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID    string            `json:"run_id"`
	Status   catalog.RunStatus `json:"status"`
	Channels int               `json:"channels"`
	Failed   int               `json:"failed"`
	Videos   int               `json:"videos"`
	Comments int               `json:"comments"`
}

// ChannelSynced is the event published after a channel's rows are written.
type ChannelSynced struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	ChannelID  string    `json:"channel_id"`
	Title      string    `json:"title"`
	Videos     int       `json:"videos"`
	Comments   int       `json:"comments"`
	SyncedAt   time.Time `json:"synced_at"`
	ArchiveURI string    `json:"archive_uri,omitempty"`

	// ArchiveSHA256 is the hex digest of the archived JSON object.
	ArchiveSHA256 string `json:"archive_sha256,omitempty"`
}

// Runner executes fetcher runs. Archive and publisher are optional.
type Runner struct {
	source    catalog.Source
	store     catalog.Store
	archive   catalog.BlobStore
	publisher catalog.Publisher
	clock     catalog.Clock
	ids       catalog.IDGenerator
	cfg       Config
	tracer    trace.Tracer
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	source catalog.Source,
	store catalog.Store,
	archive catalog.BlobStore,
	publisher catalog.Publisher,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "snapshots"
	}
	return &Runner{
		source:    source,
		store:     store,
		archive:   archive,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		tracer:    telemetry.Tracer(),
		logger:    logger,
	}
}

// Run processes channelIDs sequentially. A failing channel is logged and
// counted; the loop moves on to the next one. The returned error is non-nil
// only when the run could not be recorded or the context ended early.
func (r *Runner) Run(ctx context.Context, channelIDs []string) (Summary, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("create run id: %w", err)
	}
	started := r.clock.Now()
	run := catalog.Run{ID: runID, StartedAt: started, Status: catalog.RunRunning}
	if err := r.store.StartRun(ctx, run); err != nil {
		return Summary{RunID: runID, Status: catalog.RunError}, fmt.Errorf("start run: %w", err)
	}

	logger := r.logger.With(zap.String("run_id", runID))
	summary := Summary{RunID: runID}
	for _, channelID := range channelIDs {
		if ctx.Err() != nil {
			break
		}
		stats, err := r.syncChannel(ctx, logger, runID, channelID)
		if err != nil {
			summary.Failed++
			metrics.ObserveChannel(metrics.OutcomeFailed)
			logger.Error("failed to process channel", zap.String("channel_id", channelID), zap.Error(err))
			continue
		}
		summary.Channels++
		summary.Videos += stats.videos
		summary.Comments += stats.comments
		metrics.ObserveChannel(metrics.OutcomeSuccess)
	}

	finished := r.clock.Now()
	summary.Status = runStatus(ctx, summary, len(channelIDs))
	run.FinishedAt = &finished
	run.Status = summary.Status
	run.ChannelsOK = summary.Channels
	run.ChannelsFailed = summary.Failed
	run.ErrorMessage = runMessage(ctx, summary, len(channelIDs))

	// The run row is closed out even when ctx was canceled mid-run.
	if err := r.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("failed to record run result", zap.Error(err))
	}
	metrics.ObserveRun(finished.Sub(started), finished)
	if r.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
			logger.Warn("failed to write metrics textfile", zap.String("path", r.cfg.MetricsTextfile), zap.Error(err))
		}
	}

	logger.Info("all channels processed",
		zap.String("status", string(summary.Status)),
		zap.Int("channels", summary.Channels),
		zap.Int("failed", summary.Failed),
		zap.Int("videos", summary.Videos),
		zap.Int("comments", summary.Comments),
		zap.Duration("duration", finished.Sub(started)),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

type channelStats struct {
	videos   int
	comments int
}

func (r *Runner) syncChannel(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	channelID string,
) (stats channelStats, err error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.sync_channel",
		trace.WithAttributes(attribute.String("channel_id", channelID), attribute.String("run_id", runID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger = logger.With(zap.String("channel_id", channelID))
	logger.Info("fetching data for channel")

	channel, err := r.source.FetchChannel(ctx, channelID)
	if err != nil {
		return stats, fmt.Errorf("fetch channel: %w", err)
	}
	if err := r.store.UpsertChannel(ctx, channel); err != nil {
		return stats, err
	}

	videoIDs, err := r.source.FetchRecentVideoIDs(ctx, channelID, catalog.RecentVideoLimit)
	if err != nil {
		return stats, fmt.Errorf("fetch recent videos: %w", err)
	}
	videos := make([]catalog.Video, 0, len(videoIDs))
	for _, videoID := range videoIDs {
		video, err := r.source.FetchVideo(ctx, videoID, channelID)
		if err != nil {
			return stats, fmt.Errorf("fetch video %s: %w", videoID, err)
		}
		videos = append(videos, video)
	}
	if err := r.store.UpsertVideos(ctx, videos); err != nil {
		return stats, err
	}

	var allComments []catalog.Comment
	for _, video := range videos {
		comments, err := r.source.FetchComments(ctx, video.VideoID, catalog.CommentLimit)
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("fetch comments for %s: %w", video.VideoID, err)
			}
			// Disabled comments are treated as none.
			logger.Warn("could not fetch comments for video", zap.String("video_id", video.VideoID), zap.Error(err))
			continue
		}
		if err := r.store.UpsertComments(ctx, comments); err != nil {
			return stats, err
		}
		allComments = append(allComments, comments...)
	}

	stats = channelStats{videos: len(videos), comments: len(allComments)}
	logger.Info("data inserted for channel", zap.Int("videos", stats.videos), zap.Int("comments", stats.comments))

	snapshot := catalog.ChannelSnapshot{
		RunID:     runID,
		FetchedAt: r.clock.Now(),
		Channel:   channel,
		Videos:    videos,
		Comments:  allComments,
	}
	uri, digest := r.archiveSnapshot(ctx, logger, snapshot)
	r.announce(ctx, logger, snapshot, uri, digest)
	return stats, nil
}

// ArchivePath is where a channel's snapshot is written for a run.
func ArchivePath(prefix, runID, channelID string) string {
	return path.Join(prefix, runID, channelID+".json")
}

// archiveSnapshot returns the object URI and its SHA-256, or empty strings when nothing was archived.
func (r *Runner) archiveSnapshot(ctx context.Context, logger *zap.Logger, snap catalog.ChannelSnapshot) (string, string) {
	if r.archive == nil {
		return "", ""
	}
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Warn("failed to encode snapshot", zap.Error(err))
		return "", ""
	}
	key := ArchivePath(r.cfg.ArchivePrefix, snap.RunID, snap.Channel.ChannelID)
	uri, err := r.archive.PutObject(ctx, key, "application/json", bytes.NewReader(data))
	if err != nil {
		logger.Warn("failed to archive snapshot", zap.String("path", key), zap.Error(err))
		return "", ""
	}
	digest := sha256.Hex(data)
	logger.Debug("archived snapshot", zap.String("uri", uri), zap.String("sha256", digest))
	return uri, digest
}

func (r *Runner) announce(ctx context.Context, logger *zap.Logger, snap catalog.ChannelSnapshot, uri, digest string) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	event := ChannelSynced{
		Type:          EventType,
		RunID:         snap.RunID,
		ChannelID:     snap.Channel.ChannelID,
		Title:         snap.Channel.Title,
		Videos:        len(snap.Videos),
		Comments:      len(snap.Comments),
		SyncedAt:      snap.FetchedAt,
		ArchiveURI:    uri,
		ArchiveSHA256: digest,
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, event)
	if err != nil {
		logger.Warn("failed to publish sync event", zap.String("topic", r.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("published sync event", zap.String("message_id", id))
}

func runStatus(ctx context.Context, s Summary, total int) catalog.RunStatus {
	switch {
	case ctx.Err() != nil:
		return catalog.RunError
	case s.Failed == 0:
		return catalog.RunSuccess
	case s.Channels == 0 && s.Failed == total:
		return catalog.RunError
	default:
		return catalog.RunPartial
	}
}

func runMessage(ctx context.Context, s Summary, total int) *string {
	var msg string
	switch {
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg = fmt.Sprintf("interrupted after %d of %d channels: %v", s.Channels+s.Failed, total, ctx.Err())
	case s.Failed > 0:
		msg = fmt.Sprintf("%d of %d channels failed", s.Failed, total)
	default:
		return nil
	}
	return &msg
}
