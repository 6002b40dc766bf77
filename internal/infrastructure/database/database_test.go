package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestOpen verifies database connection establishment.
func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})

	t.Run("sizes the pool", func(t *testing.T) {
		db := openTestDB(t, Config{PoolSize: 3})
		if got := db.Stats().MaxOpenConnections; got != 3 {
			t.Errorf("MaxOpenConnections = %d, want 3", got)
		}
	})

	t.Run("zero pool size means one", func(t *testing.T) {
		db := openTestDB(t, Config{})
		if got := db.Stats().MaxOpenConnections; got != 1 {
			t.Errorf("MaxOpenConnections = %d, want 1", got)
		}
	})
}

func TestDSN(t *testing.T) {
	got := dsn(Config{Path: "/data/x.db", BusyTimeout: 5, WALMode: true})
	for _, want := range []string{
		"file:/data/x.db?",
		"_busy_timeout=5000",
		"_foreign_keys=on",
		"_txlock=immediate",
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}

	if got := dsn(Config{Path: "x.db"}); strings.Contains(got, "WAL") {
		t.Errorf("dsn() without WALMode = %q, should not enable WAL", got)
	}
}

// TestHealthCheck verifies the health check functionality.
func TestHealthCheck(t *testing.T) {
	db := openTestDB(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

// TestClose verifies graceful shutdown.
func TestClose(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "close.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestConn(t *testing.T) {
	t.Run("returns connection", func(t *testing.T) {
		db := openTestDB(t, Config{PoolSize: 2})

		conn, err := db.Conn(context.Background())
		if err != nil {
			t.Fatalf("Conn() error = %v", err)
		}
		if err := conn.Close(); err != nil {
			t.Errorf("conn.Close() error = %v", err)
		}
	})

	t.Run("pool exhausted after acquire timeout", func(t *testing.T) {
		db := openTestDB(t, Config{PoolSize: 1, AcquireTimeout: 50 * time.Millisecond})

		held, err := db.Conn(context.Background())
		if err != nil {
			t.Fatalf("Conn() error = %v", err)
		}
		defer held.Close() //nolint:errcheck // Test cleanup

		start := time.Now()
		_, err = db.Conn(context.Background())
		if !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("Conn() error = %v, want ErrPoolExhausted", err)
		}
		if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
			t.Errorf("Conn() returned after %v, expected to wait for the acquire timeout", elapsed)
		}
	})

	t.Run("caller cancellation is not pool exhaustion", func(t *testing.T) {
		db := openTestDB(t, Config{PoolSize: 1, AcquireTimeout: time.Second})

		held, err := db.Conn(context.Background())
		if err != nil {
			t.Fatalf("Conn() error = %v", err)
		}
		defer held.Close() //nolint:errcheck // Test cleanup

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = db.Conn(ctx)
		if errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("Conn() error = %v, want context error", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Conn() error = %v, want context.Canceled", err)
		}
	})
}

func TestForeignKeysEnabled(t *testing.T) {
	db := openTestDB(t, Config{})

	var enabled int
	if err := db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("PRAGMA foreign_keys error = %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", enabled)
	}
}

// openTestDB opens a temporary WAL database, filling unset fields with test defaults.
func openTestDB(t *testing.T, cfg Config) *DB {
	t.Helper()

	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "test.db")
	}
	cfg.WALMode = true
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5
	}

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})

	return db
}
