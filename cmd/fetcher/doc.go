// Package main hosts the fetcher entrypoint: one pass over the configured
// YouTube channels, written into the database, then exit.
//
// Architecture overview:
//   - Source: internal/source/youtube wraps the Data API v3 with a static API key, a token-bucket pacer
//     (youtube.requests_per_second) and bounded retries for 5xx and network errors. Quota (403/429) errors are not
//     retried.
//   - Pipeline: internal/pipeline processes channels one at a time. A failing channel is logged and counted; the
//     run continues with the next channel. Comment fetch failures (disabled comments) only produce a warning.
//   - Persistence: rows go through the catalog.Store selected by db.driver (postgres by default, sqlite or memory for
//     local use). Every write is an idempotent upsert keyed by the platform ID, so reruns refresh counters in place.
//   - Side effects: when configured, each channel's snapshot is archived as JSON (local dir or GCS) and a
//     channel.synced event is published to Pub/Sub. Failures here never fail the channel.
//   - Observability: zap logs carry run and channel IDs; Prometheus counters can be dumped to a node_exporter
//     textfile (metrics.textfile); one OpenTelemetry span per channel goes to Cloud Trace when telemetry.project_id is
//     set.
//
// Quick checklist:
//   - Set YOUTUBE_API_KEY plus DB_HOST, DB_NAME, DB_USER, DB_PASSWORD (or YTETL_DB_DSN). Apply schema.sql once.
//   - Run: go run ./cmd/fetcher --config config.yaml [--channel UC... --channel UC...]
//   - Schedule it (cron, Cloud Scheduler); SIGINT/SIGTERM stop the run after the current request and still close out
//     the fetch_runs row.
package main
