// Package api hosts the HTTP server, middleware, and REST handlers for the
// menu cache. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - /vendors for registration, listing, detail, status, and delete.
//   - GET /vendors/{id}/meals answers 202 while a background scrape runs;
//     GET /vendors/{id}/menu scrapes inline on a miss.
//   - POST /vendors/{id}/scrape replaces meals only after a good scrape.
//   - /meals for the cross-vendor listing and single meal delete.
//
// Every error body is {"code": "...", "error": "..."}.
package api
