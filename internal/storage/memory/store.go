// Package memory keeps catalog rows and archived snapshots in process memory
// for tests and demo runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
)

// Store is an in-memory catalog.Store and catalog.Reader. Rows are returned
// in first-insert order, the way a heap table without ORDER BY usually reads back.
type Store struct {
	mu sync.RWMutex

	channels     map[string]catalog.Channel
	channelOrder []string
	videos       map[string]catalog.Video
	videoOrder   []string
	comments     map[string]catalog.Comment
	commentOrder []string
	runs         map[string]catalog.Run
	runOrder     []string
}

var (
	_ catalog.Store  = (*Store)(nil)
	_ catalog.Reader = (*Store)(nil)
)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		channels: make(map[string]catalog.Channel),
		videos:   make(map[string]catalog.Video),
		comments: make(map[string]catalog.Comment),
		runs:     make(map[string]catalog.Run),
	}
}

// UpsertChannel inserts or refreshes a channel. PublishedAt is kept from the first insert.
func (s *Store) UpsertChannel(_ context.Context, ch catalog.Channel) error {
	if ch.ChannelID == "" {
		return errors.New("channel id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.channels[ch.ChannelID]
	if !ok {
		s.channelOrder = append(s.channelOrder, ch.ChannelID)
	} else {
		ch.PublishedAt = existing.PublishedAt
	}
	s.channels[ch.ChannelID] = ch
	return nil
}

// UpsertVideos inserts or refreshes each video. ChannelID and PublishedAt are kept from the first insert.
func (s *Store) UpsertVideos(_ context.Context, videos []catalog.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range videos {
		if v.VideoID == "" {
			return errors.New("video id is required")
		}
	}
	for _, v := range videos {
		existing, ok := s.videos[v.VideoID]
		if !ok {
			s.videoOrder = append(s.videoOrder, v.VideoID)
		} else {
			v.ChannelID = existing.ChannelID
			v.PublishedAt = existing.PublishedAt
		}
		s.videos[v.VideoID] = v
	}
	return nil
}

// UpsertComments inserts or refreshes each comment's author and text.
func (s *Store) UpsertComments(_ context.Context, comments []catalog.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range comments {
		if c.CommentID == "" {
			return errors.New("comment id is required")
		}
	}
	for _, c := range comments {
		existing, ok := s.comments[c.CommentID]
		if !ok {
			s.commentOrder = append(s.commentOrder, c.CommentID)
		} else {
			c.VideoID = existing.VideoID
			c.PublishedAt = existing.PublishedAt
		}
		s.comments[c.CommentID] = c
	}
	return nil
}

// StartRun records a run.
func (s *Store) StartRun(_ context.Context, run catalog.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// FinishRun replaces the stored run with its terminal state.
func (s *Store) FinishRun(_ context.Context, run catalog.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	run.StartedAt = existing.StartedAt
	s.runs[run.ID] = run
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ListChannels returns all channels.
func (s *Store) ListChannels(context.Context) ([]catalog.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Channel, 0, len(s.channelOrder))
	for _, id := range s.channelOrder {
		out = append(out, s.channels[id])
	}
	return out, nil
}

// ListVideos returns the channel's videos.
func (s *Store) ListVideos(_ context.Context, channelID string) ([]catalog.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Video
	for _, id := range s.videoOrder {
		if v := s.videos[id]; v.ChannelID == channelID {
			out = append(out, v)
		}
	}
	return out, nil
}

// ListComments returns the video's comments.
func (s *Store) ListComments(_ context.Context, videoID string) ([]catalog.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Comment
	for _, id := range s.commentOrder {
		if c := s.comments[id]; c.VideoID == videoID {
			out = append(out, c)
		}
	}
	return out, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(context.Context) (catalog.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest catalog.Run
		found  bool
	)
	for _, id := range s.runOrder {
		run := s.runs[id]
		if !found || !run.StartedAt.Before(latest.StartedAt) {
			latest = run
			found = true
		}
	}
	if !found {
		return catalog.Run{}, catalog.ErrNotFound
	}
	return latest, nil
}
