// Package api implements the operational HTTP endpoints of the meter logger.
//
// This package provides:
//   - /health: database reachability, session state, stored reading totals
//     and the last WAL checkpoint
//   - /metrics: Prometheus exposition of the ingest counters
//   - /status: process runtime and connection pool statistics
//   - Middleware stack (request ID, logging, recovery)
//
// The server is optional and disabled by default. It never exposes stored
// readings; querying the database is left to external tools.
package api
