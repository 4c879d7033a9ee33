// Package main hosts the viewer entrypoint: a read-only dashboard over the
// channels, videos, and comments tables written by the fetcher.
//
// The server renders the dashboard at / (channel and video pickers travel as
// ?channel= and ?video= query parameters), serves the same rows as JSON under
// /api, and exposes /healthz, /readyz, and /metrics for probes and scraping.
// Set auth.enabled and auth.api_key to require the key on everything except
// the probes. API clients send an X-API-Key header; a browser opens
// /?api_key=... once, receives an HttpOnly cookie, and is redirected to the
// same page without the key in the URL.
//
// Run locally: go run ./cmd/viewer --config config.yaml --port 8501
package main
