// Package api hosts the admin HTTP server. Notable routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - /api/sites and /api/dashboard for site management, behind HTTP Basic.
//   - GET /screenshots/* for captured evidence, behind HTTP Basic.
package api
