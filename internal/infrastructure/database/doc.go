// Package database provides the pooled SQLite store used by glowmarkt-logger.
//
// This package manages:
//   - A database/sql pool with WAL mode, busy timeout and foreign keys
//   - Exclusive connection checkout with a bounded wait (ErrPoolExhausted)
//   - Embedded, additive schema migrations
//   - WAL checkpointing for the maintenance task
//
// Performance Characteristics:
//   - WAL mode allows readers to proceed while the ingest path writes
//   - Transactions begin IMMEDIATE so concurrent writers queue on busy_timeout
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "data/glowmarkt.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
