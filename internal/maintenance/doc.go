// Package maintenance runs periodic upkeep against the SQLite store.
//
// The only job today is the WAL checkpoint: every interval (60s by default)
// the Task checks out a pooled connection, runs PRAGMA wal_checkpoint and
// returns the connection. A failed run is logged and the next one happens
// on schedule; there is no out-of-cycle retry.
package maintenance
