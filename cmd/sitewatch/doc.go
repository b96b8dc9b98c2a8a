// Package main hosts the sitewatch service entrypoint.
//
// Architecture overview:
//   - Registry: sites and their check history live in SQLite (default), Postgres, or memory, selected by
//     database.driver. Every write runs in its own transaction.
//   - Scheduling: internal/scheduler keeps one robfig/cron entry per site at the site's frequency plus the daily
//     retention sweep. Ad-hoc probes (site added, "check now") go through a bounded in-memory queue served by
//     dispatcher.concurrency workers; a full queue drops the trigger.
//   - Probe: internal/probe launches an isolated chromedp session for the site's device profile, waits for network
//     idle, classifies the page, stores a full-page screenshot, and commits the status with one log row. Anything
//     not Healthy is sent to the webhook and/or Pub/Sub topic. probe.mode=static swaps Chrome for a colly fetch
//     without screenshots.
//   - Admin API: internal/api serves JSON endpoints and screenshots behind HTTP Basic, plus /healthz, /readyz, and
//     /metrics.
//
// Quick checklist:
//   - Configure env vars: SITEWATCH_SERVER_PORT, ADMIN_USERNAME/ADMIN_PASSWORD (or SITEWATCH_AUTH_*),
//     SITEWATCH_DATABASE_DRIVER and SITEWATCH_DATABASE_DSN, DISCORD_WEBHOOK, SITEWATCH_NOTIFY_PUBSUB_PROJECT_ID and
//     SITEWATCH_NOTIFY_PUBSUB_TOPIC.
//   - Run locally: go run ./cmd/sitewatch -config config.yaml, or rely on a .env file.
//   - Postgres: apply db/schema.sql first; SQLite bootstraps its own tables.
package main
