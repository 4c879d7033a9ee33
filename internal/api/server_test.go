package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/config"
	"github.com/JakeFAU/youtube-etl/internal/dashboard"
	"github.com/JakeFAU/youtube-etl/internal/storage/memory"
)

func seededReader(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertChannel(ctx, catalog.Channel{
		ChannelID: "UC1", Title: "Go Talks", Description: "conference videos",
		SubscriberCount: 1200, ViewCount: 98000, VideoCount: 42,
	}))
	require.NoError(t, store.UpsertChannel(ctx, catalog.Channel{ChannelID: "UC2", Title: "Empty Channel"}))
	require.NoError(t, store.UpsertVideos(ctx, []catalog.Video{
		{VideoID: "v1", ChannelID: "UC1", Title: "Generics", ViewCount: 10, PublishedAt: &published},
		{VideoID: "v2", ChannelID: "UC1", Title: "Concurrency", ViewCount: 300, LikeCount: 25, CommentCount: 1},
		{VideoID: "v3", ChannelID: "UC1", Title: "Errors", ViewCount: 20},
	}))
	require.NoError(t, store.UpsertComments(ctx, []catalog.Comment{
		{CommentID: "c1", VideoID: "v2", AuthorDisplayName: "gopher", TextDisplay: "channels are great"},
	}))
	return store
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(seededReader(t), config.Config{}, zap.NewNop())
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type failingReader struct {
	*memory.Store
	pingErr     error
	channelsErr error
	commentsErr error
	runErr      error
}

func (f failingReader) Ping(ctx context.Context) error {
	if f.pingErr != nil {
		return f.pingErr
	}
	return f.Store.Ping(ctx)
}

func (f failingReader) ListChannels(ctx context.Context) ([]catalog.Channel, error) {
	if f.channelsErr != nil {
		return nil, f.channelsErr
	}
	return f.Store.ListChannels(ctx)
}

func (f failingReader) ListComments(ctx context.Context, videoID string) ([]catalog.Comment, error) {
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return f.Store.ListComments(ctx, videoID)
}

func (f failingReader) LatestRun(ctx context.Context) (catalog.Run, error) {
	if f.runErr != nil {
		return catalog.Run{}, f.runErr
	}
	return f.Store.LatestRun(ctx)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := serve(newTestServer(t), req)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	down := NewServer(failingReader{Store: memory.NewStore(), pingErr: errors.New("dial tcp: refused")}, config.Config{}, nil)
	rec = serve(down, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"error":"database unavailable"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_DashboardDefaults(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "<h2>Go Talks</h2>")
	assert.Contains(t, body, "conference videos")
	assert.Contains(t, body, "Subscribers<strong>1200</strong>")
	assert.Contains(t, body, "Top 5 Videos by Views")
	assert.Contains(t, body, "<tr><td>Concurrency</td><td>300</td><td>25</td><td>1</td></tr>")
	assert.Contains(t, body, "2024-03-01 12:00")
	assert.Contains(t, body, `<option value="Go Talks" selected>`)
	assert.Contains(t, body, `<option value="Generics" selected>`)
	assert.Contains(t, body, dashboard.MsgNoComments)
}

func TestServer_DashboardSelections(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/?channel=Go+Talks&video=Concurrency", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="Concurrency" selected>`)
	assert.Contains(t, body, "channels are great")
	assert.NotContains(t, body, dashboard.MsgNoComments)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/?channel=Empty+Channel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), dashboard.MsgNoVideos)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/?channel=Nope", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), dashboard.MsgChannelNotFound)
	assert.NotContains(t, rec.Body.String(), "Top 5 Videos by Views")
}

func TestServer_DashboardShowsLatestRun(t *testing.T) {
	t.Parallel()

	store := seededReader(t)
	started := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.StartRun(context.Background(), catalog.Run{ID: "run-1", StartedAt: started, Status: catalog.RunRunning}))
	finished := started.Add(time.Minute)
	require.NoError(t, store.FinishRun(context.Background(), catalog.Run{
		ID: "run-1", StartedAt: started, FinishedAt: &finished, Status: catalog.RunPartial, ChannelsOK: 9, ChannelsFailed: 1,
	}))

	rec := serve(NewServer(store, config.Config{}, nil), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Last fetch partial at 2024-05-02 08:30 UTC (9 ok, 1 failed)")
}

func TestServer_DashboardEscapesContent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	require.NoError(t, store.UpsertChannel(context.Background(), catalog.Channel{ChannelID: "UC1", Title: "<script>x</script>"}))
	rec := serve(NewServer(store, config.Config{}, nil), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "<script>x</script>")
	require.Contains(t, rec.Body.String(), "&lt;script&gt;x&lt;/script&gt;")
}

func TestServer_DashboardLoadFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	reader := failingReader{Store: memory.NewStore(), channelsErr: errors.New("connection reset")}
	rec := serve(NewServer(reader, config.Config{}, zap.New(core)), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("build dashboard failed").Len())
}

func TestServer_ListChannels(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Channels []catalog.Channel `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Channels, 2)
	require.Equal(t, "UC1", payload.Channels[0].ChannelID)
	require.Equal(t, int64(1200), payload.Channels[0].SubscriberCount)
}

func TestServer_ListChannelsEmpty(t *testing.T) {
	t.Parallel()

	rec := serve(NewServer(memory.NewStore(), config.Config{}, nil), httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"channels":[]}`, rec.Body.String())
}

func TestServer_ListChannelsError(t *testing.T) {
	t.Parallel()

	reader := failingReader{Store: memory.NewStore(), channelsErr: errors.New("boom")}
	rec := serve(NewServer(reader, config.Config{}, nil), httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"failed to list channels"}`, rec.Body.String())
}

func TestServer_ListVideos(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/channels/UC1/videos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Videos []catalog.Video `json:"videos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Videos, 3)
	require.Equal(t, "v1", payload.Videos[0].VideoID)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/channels/UC1/videos?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	payload.Videos = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Videos, 2)
	require.Equal(t, "v2", payload.Videos[0].VideoID)
	require.Equal(t, "v3", payload.Videos[1].VideoID)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/channels/UC404/videos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"videos":[]}`, rec.Body.String())
}

func TestServer_ListVideosInvalidTop(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"abc", "0", "-3"} {
		rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/api/channels/UC1/videos?top="+raw, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, raw)
		require.JSONEq(t, `{"error":"invalid top"}`, rec.Body.String())
	}
}

func TestServer_ListComments(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(t), httptest.NewRequest(http.MethodGet, "/api/videos/v2/comments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Comments []catalog.Comment `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Comments, 1)
	require.Equal(t, "gopher", payload.Comments[0].AuthorDisplayName)

	reader := failingReader{Store: memory.NewStore(), commentsErr: errors.New("timeout")}
	rec = serve(NewServer(reader, config.Config{}, nil), httptest.NewRequest(http.MethodGet, "/api/videos/v2/comments", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_LatestRun(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	s := NewServer(store, config.Config{}, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.StartRun(context.Background(), catalog.Run{ID: "run-9", StartedAt: time.Unix(100, 0).UTC(), Status: catalog.RunRunning}))
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"run-9"`)
	require.Contains(t, rec.Body.String(), `"status":"running"`)

	broken := failingReader{Store: store, runErr: errors.New("boom")}
	rec = serve(NewServer(broken, config.Config{}, nil), httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_APIKeyGuard(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	s := NewServer(seededReader(t), cfg, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("X-API-Key", "secret")
	require.Equal(t, http.StatusOK, serve(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("X-API-Key", "secreT")
	require.Equal(t, http.StatusForbidden, serve(s, req).Code)

	require.Equal(t, http.StatusForbidden, serve(s, httptest.NewRequest(http.MethodGet, "/?api_key=secre", nil)).Code)
	require.Equal(t, http.StatusForbidden, serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	require.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestServer_APIKeyQueryBecomesCookie(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	s := NewServer(seededReader(t), cfg, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/?channel=Go+Talks&api_key=secret", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/?channel=Go+Talks", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, apiKeyCookie, cookies[0].Name)
	require.Equal(t, "secret", cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/?channel=Go+Talks", nil)
	req.AddCookie(cookies[0])
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "<h2>Go Talks</h2>")
	require.NotContains(t, body, "api_key")
	require.NotContains(t, body, "secret")

	req = httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.AddCookie(&http.Cookie{Name: apiKeyCookie, Value: "wrong"})
	require.Equal(t, http.StatusForbidden, serve(s, req).Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	handler := recoverMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	handler := loggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, int64(http.StatusTeapot), fields["status"])
	require.Equal(t, "/brew", fields["path"])
}
