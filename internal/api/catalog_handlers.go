package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/dashboard"
)

const (
	maxTop         = 50
	catalogTimeout = 5 * time.Second
)

// CatalogHandler exposes read-only JSON endpoints over the stored rows.
type CatalogHandler struct {
	reader  catalog.Reader
	timeout time.Duration
	logger  *zap.Logger
}

// NewCatalogHandler wires the reader and logger.
func NewCatalogHandler(reader catalog.Reader, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{
		reader:  reader,
		timeout: catalogTimeout,
		logger:  logger,
	}
}

// ListChannels handles GET /api/channels and returns {"channels": [...]}.
func (h *CatalogHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	channels, err := h.reader.ListChannels(ctx)
	if err != nil {
		h.logger.Error("list channels failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": nonNil(channels)})
}

// ListVideos handles GET /api/channels/{channel_id}/videos?top=N. Without top
// the videos come back in load order; with it, the N most viewed.
func (h *CatalogHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	channelID := strings.TrimSpace(chi.URLParam(r, "channel_id"))
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channel_id is required")
		return
	}
	top, err := parseTop(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	videos, err := h.reader.ListVideos(ctx, channelID)
	if err != nil {
		h.logger.Error("list videos failed", zap.String("channel_id", channelID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	if top > 0 {
		videos = dashboard.TopByViews(videos, top)
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": nonNil(videos)})
}

// ListComments handles GET /api/videos/{video_id}/comments.
func (h *CatalogHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(chi.URLParam(r, "video_id"))
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	comments, err := h.reader.ListComments(ctx, videoID)
	if err != nil {
		h.logger.Error("list comments failed", zap.String("video_id", videoID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list comments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": nonNil(comments)})
}

// LatestRun handles GET /api/runs/latest. It returns 404 before the first run.
func (h *CatalogHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.reader.LatestRun(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no runs recorded")
			return
		}
		h.logger.Error("load latest run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func parseTop(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("top")
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid top")
	}
	if val > maxTop {
		val = maxTop
	}
	return val, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
