// Package main hosts the menu cache service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes vendor and meal routes plus health and metrics. Handlers call the
//     coordinator and translate its error taxonomy into {"code","error"} bodies.
//   - Coordinator: serves cached meals from the store. On a miss GET /vendors/{id}/meals queues a scrape and
//     answers 202, while GET /vendors/{id}/menu scrapes inline under scraper.sync_timeout_seconds. Force rescrape
//     swaps a vendor's meals in one transaction only after a good scrape.
//   - Queue & worker: a bounded in-memory FIFO sized by queue.depth, with an optional per-vendor pending guard.
//     One worker takes at most one job per queue.poll_interval_seconds tick.
//   - Scraper gateway: runs scraper.command with the meal or vendor script and parses one JSON array from stdout.
//     Invocation, parse, and empty-result failures are told apart in logs and metrics.
//   - Persistence: Postgres (pgx, golang-migrate), SQLite (modernc), or an in-memory store, selected by
//     database.backend.
//
// Quick checklist:
//   - Configure env vars: MENUCACHE_SERVER_PORT or --port, MENUCACHE_DATABASE_BACKEND, MENUCACHE_DATABASE_DSN,
//     MENUCACHE_SCRAPER_MEAL_SCRIPT, MENUCACHE_SCRAPER_VENDOR_SCRIPT, MENUCACHE_AUTH_ENABLED/API_KEY.
//   - Run locally: go run ./cmd/menucache --config config.yaml
//   - The process drains the worker and waits for metadata scrapes on SIGINT or SIGTERM.
package main
