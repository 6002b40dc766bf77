package meter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/database"
)

// Repository defines the persistence operations for meter readings.
type Repository interface {
	// RecordReading stores a reading as one record set.
	// Returns false with a nil error when a reading with the same
	// timestamp is already stored.
	RecordReading(ctx context.Context, r Reading) (bool, error)

	// GetByTimestamp retrieves the stored record set for a timestamp, for
	// checking what was written (tests, operator tooling). It is not a
	// query API. Returns ErrReadingNotFound if none exists.
	GetByTimestamp(ctx context.Context, ts time.Time) (Reading, error)

	// Count returns the number of stored record sets.
	Count(ctx context.Context) (int, error)

	// Latest returns the newest stored timestamp. The bool is false when
	// nothing has been stored yet.
	Latest(ctx context.Context) (time.Time, bool, error)
}

// SQLiteRepository implements Repository on the pooled SQLite store.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const (
	selectMessageIDQuery = `
		SELECT electricity_meter_message_id
		FROM electricity_meter_messages
		WHERE timestamp = ?`

	insertMessageQuery = `
		INSERT INTO electricity_meter_messages (timestamp)
		VALUES (?)
		RETURNING electricity_meter_message_id`

	insertExportQuery = `
		INSERT INTO energy_export_data (electricity_meter_message_id, cumulative, units)
		VALUES (?, ?, ?)`

	insertImportQuery = `
		INSERT INTO energy_import_data (
			electricity_meter_message_id, cumulative, day, week, month,
			units, mpan, supplier, unitrate, standingcharge
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertPowerQuery = `
		INSERT INTO power_readings (electricity_meter_message_id, value, units)
		VALUES (?, ?, ?)`
)

// RecordReading stores a reading exactly once.
//
// Within a single transaction on a checked-out connection it:
//  1. Looks up the parent row by timestamp; if found, rolls back and returns false
//  2. Inserts the parent row and takes its generated id
//  3. Inserts the export, import and power rows referencing that id
//  4. Commits
//
// Any failure rolls back the whole record set. A unique-constraint
// violation on the parent row means another writer stored the same
// timestamp first, and is reported as a duplicate.
//
// Numeric values are narrowed to float32 before binding.
func (r *SQLiteRepository) RecordReading(ctx context.Context, reading Reading) (bool, error) {
	if reading.Timestamp.IsZero() {
		return false, &PersistError{
			Kind: PersistTimestampParse,
			Op:   "format timestamp",
			Err:  errors.New("reading has no timestamp"),
		}
	}
	ts := reading.StorageTimestamp()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		if errors.Is(err, database.ErrPoolExhausted) {
			return false, fmt.Errorf("%w: %v", ErrPoolExhausted, err)
		}
		return false, storageError("acquire connection", err)
	}
	defer conn.Close() //nolint:errcheck // Returning connection to pool

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, storageError("begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var existingID int64
	err = tx.QueryRowContext(ctx, selectMessageIDQuery, ts).Scan(&existingID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, storageError("select electricity_meter_messages", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, insertMessageQuery, ts).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, storageError("insert electricity_meter_messages", err)
	}

	exp := reading.Export
	if _, err := tx.ExecContext(ctx, insertExportQuery,
		id, float32(exp.Cumulative), exp.Units,
	); err != nil {
		return false, storageError("insert energy_export_data", err)
	}

	imp := reading.Import
	if _, err := tx.ExecContext(ctx, insertImportQuery,
		id,
		float32(imp.Cumulative),
		float32(imp.Day),
		float32(imp.Week),
		float32(imp.Month),
		imp.Units,
		imp.MPAN,
		imp.Supplier,
		float32(imp.Price.UnitRate),
		float32(imp.Price.StandingCharge),
	); err != nil {
		return false, storageError("insert energy_import_data", err)
	}

	pow := reading.Power
	if _, err := tx.ExecContext(ctx, insertPowerQuery,
		id, float32(pow.Value), pow.Units,
	); err != nil {
		return false, storageError("insert power_readings", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, storageError("commit", err)
	}

	return true, nil
}

// GetByTimestamp reads back the record set stored for ts, joined across
// all four tables. It exists to verify stored rows; ingestion never reads.
func (r *SQLiteRepository) GetByTimestamp(ctx context.Context, ts time.Time) (Reading, error) {
	query := `
		SELECT m.timestamp,
			e.cumulative, e.units,
			i.cumulative, i.day, i.week, i.month, i.units, i.mpan, i.supplier,
			i.unitrate, i.standingcharge,
			p.value, p.units
		FROM electricity_meter_messages m
		JOIN energy_export_data e ON e.electricity_meter_message_id = m.electricity_meter_message_id
		JOIN energy_import_data i ON i.electricity_meter_message_id = m.electricity_meter_message_id
		JOIN power_readings p ON p.electricity_meter_message_id = m.electricity_meter_message_id
		WHERE m.timestamp = ?`

	var (
		reading Reading
		stored  string
	)
	err := r.db.QueryRowContext(ctx, query, ts.UTC().Format(StorageTimestampLayout)).Scan(
		&stored,
		&reading.Export.Cumulative, &reading.Export.Units,
		&reading.Import.Cumulative, &reading.Import.Day, &reading.Import.Week, &reading.Import.Month,
		&reading.Import.Units, &reading.Import.MPAN, &reading.Import.Supplier,
		&reading.Import.Price.UnitRate, &reading.Import.Price.StandingCharge,
		&reading.Power.Value, &reading.Power.Units,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Reading{}, ErrReadingNotFound
		}
		return Reading{}, storageError("select record set", err)
	}

	reading.Timestamp, err = parseStoredTimestamp(stored)
	if err != nil {
		return Reading{}, err
	}
	return reading, nil
}

// Count returns the number of stored record sets.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM electricity_meter_messages",
	).Scan(&n); err != nil {
		return 0, storageError("count electricity_meter_messages", err)
	}
	return n, nil
}

// Latest returns the newest stored timestamp.
func (r *SQLiteRepository) Latest(ctx context.Context) (time.Time, bool, error) {
	var stored sql.NullString
	if err := r.db.QueryRowContext(ctx,
		"SELECT MAX(timestamp) FROM electricity_meter_messages",
	).Scan(&stored); err != nil {
		return time.Time{}, false, storageError("select latest timestamp", err)
	}
	if !stored.Valid {
		return time.Time{}, false, nil
	}

	ts, err := parseStoredTimestamp(stored.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func parseStoredTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(StorageTimestampLayout, s)
	if err != nil {
		return time.Time{}, &PersistError{Kind: PersistTimestampParse, Op: "parse stored timestamp", Err: err}
	}
	return ts, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
