package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-etl/internal/dashboard"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTemplate = template.Must(
	template.New("dashboard.html").Funcs(template.FuncMap{"ts": formatTimestamp}).
		ParseFS(templateFS, "templates/dashboard.html"),
)

type dashboardView struct {
	Page            dashboard.Page
	SelectedChannel string
	SelectedVideo   string
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request) {
	// Keep the key out of browser history once the cookie carries it.
	if q := r.URL.Query(); q.Has("api_key") {
		q.Del("api_key")
		target := *r.URL
		target.RawQuery = q.Encode()
		http.Redirect(w, r, target.RequestURI(), http.StatusSeeOther)
		return
	}

	sel := dashboard.Selection{
		ChannelTitle: r.URL.Query().Get("channel"),
		VideoTitle:   r.URL.Query().Get("video"),
	}
	page, err := s.dashboard.Build(r.Context(), sel)
	if err != nil {
		s.logger.Error("build dashboard failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}

	view := dashboardView{Page: page}
	if page.Channel != nil {
		view.SelectedChannel = page.Channel.Title
	}
	if page.Video != nil {
		view.SelectedVideo = page.Video.Title
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, view); err != nil {
		s.logger.Error("render dashboard failed", zap.Error(err))
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("write dashboard failed", zap.Error(err))
	}
}

func formatTimestamp(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02 15:04")
}
