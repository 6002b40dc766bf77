package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// useMigrations swaps MigrationsFS for the duration of a test.
func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = files
	MigrationsDir = "."
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20240101_000000_create_things.up.sql": {
			Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT NOT NULL);"),
		},
		"20240101_000000_create_things.down.sql": {
			Data: []byte("DROP TABLE things;"),
		},
		"20240201_000000_add_index.up.sql": {
			Data: []byte("CREATE UNIQUE INDEX idx_things_name ON things(name);"),
		},
		"README.md": {Data: []byte("not a migration")},
	}
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_things_name'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("index idx_things_name not created: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureRollsBackThatMigration(t *testing.T) {
	files := testMigrations()
	files["20240301_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE oops (")}
	useMigrations(t, files)
	db := openTestDB(t, Config{})
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected earlier migrations to stay applied, got %d", len(applied))
	}
	if len(pending) != 1 || pending[0].Version != "20240301_000000" {
		t.Errorf("pending = %+v, want only the broken migration", pending)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t, Config{})
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	useMigrations(t, testMigrations())

	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	first := migrations[0]
	if first.Version != "20240101_000000" || first.Name != "create_things" {
		t.Errorf("first migration = %s/%s", first.Version, first.Name)
	}
	if first.DownSQL == "" {
		t.Error("first migration should carry its down SQL")
	}
	if migrations[1].DownSQL != "" {
		t.Error("second migration has no down file")
	}
}

func TestLoadMigrations_DownWithoutUp(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20240101_000000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	})

	if _, err := LoadMigrations(); err == nil {
		t.Error("LoadMigrations() expected error for down-only migration")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		version  string
		name     string
		up       bool
		ok       bool
	}{
		{"20240101_000000_meter_readings.up.sql", "20240101_000000", "meter_readings", true, true},
		{"20240101_000000_meter_readings.down.sql", "20240101_000000", "meter_readings", false, true},
		{"20240101_000000.up.sql", "20240101_000000", "", true, true},
		{"20240101_000000_x.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
		{"single.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if version != tt.version || up != tt.up {
				t.Errorf("got (%q, %v), want (%q, %v)", version, up, tt.version, tt.up)
			}
			if !tt.up {
				return
			}
			if name != tt.name {
				t.Errorf("name = %q, want %q", name, tt.name)
			}
		})
	}
}
