// Package api hosts the viewer's HTTP server, middleware, and handlers.
// Notable routes:
//   - GET / renders the dashboard; ?channel= and ?video= carry the picks.
//   - GET /api/channels, /api/channels/{channel_id}/videos and
//     /api/videos/{video_id}/comments return JSON.
//   - GET /api/runs/latest reports the most recent fetcher run.
//   - GET /healthz and /readyz for probes, /metrics for Prometheus.
package api
