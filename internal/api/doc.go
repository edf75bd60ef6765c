// Package api implements the agent's local diagnostics HTTP server.
//
// This package provides:
//   - Read-only endpoints for stored attribute values and supervised task status
//   - A health endpoint aggregating the agent's component health checks
//   - The Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// The server never changes device state. Desired state arrives only through
// the shadow; local changes go through sensorctl.
//
// Routes:
//
//	GET /api/v1/health
//	GET /api/v1/attributes
//	GET /api/v1/attributes/{name}
//	GET /api/v1/tasks
//	GET /metrics
package api
