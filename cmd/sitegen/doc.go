// Package main hosts the sitegen service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, the site records the frontend lists, and the
//     generate route that streams a page as chunked text/plain.
//   - Orchestration: internal/orchestrator acquires an image search client and a text client per request, forwards
//     generated chunks to the caller and, once the page is complete, uploads the HTML and hands a screenshot task
//     to the detached pool. A caller that disconnects mid-stream stops delivery only.
//   - Screenshots: internal/screenshot runs a bounded queue drained by a fixed set of workers. Tasks render the
//     stored HTML with headless Chrome (or a remote renderer) and upload the PNG next to it.
//   - Persistence: artifacts go to the configured ContentSink (S3-compatible, GCS, local disk or memory); site rows
//     live in Postgres when a DSN is configured and in memory otherwise.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler; OpenTelemetry spans wrap generation,
//     uploads and screenshot tasks; the progress Hub batches pipeline events for log, metric and Pub/Sub sinks.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM stops the HTTP server, then drains queued screenshots for up to
//     screenshots.drain_timeout_seconds before cancelling what is left.
//   - Admission: generate requests are rate limited per site; a full screenshot queue drops the task with a
//     warning since screenshots are best-effort.
//
// Quick checklist:
//   - Configure env vars: SITEGEN_SERVER_PORT or PORT, SITEGEN_GENERATOR_API_KEY, SITEGEN_IMAGES_API_KEY,
//     storage (SITEGEN_STORAGE_*), SITEGEN_DATABASE_DSN, and SITEGEN_DEBUG=true to serve canned pages offline.
//   - Run locally: go run ./cmd/sitegen serve --config config.yaml (or rely solely on env overrides).
package main
