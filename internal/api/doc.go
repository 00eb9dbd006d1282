// Package api hosts the HTTP server, middleware, and handlers behind the
// frontend. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /frontend-api/sites/create and GET /frontend-api/sites/... for
//     site records.
//   - POST /frontend-api/sites/{site_id}/generate streams generated HTML as
//     chunked text/plain while the page is persisted in the background.
package api
