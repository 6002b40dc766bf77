// Package meter decodes and stores electricity meter readings.
//
// A smart-meter bridge publishes one JSON document per reading. Decode turns
// that payload into an immutable Reading, and SQLiteRepository records it as
// a record set: one row in electricity_meter_messages plus exactly one row in
// each of energy_export_data, energy_import_data and power_readings.
//
// # Deduplication
//
// The reading timestamp is the dedup key. RecordReading checks for an
// existing parent row inside the insert transaction, and the UNIQUE
// constraint on the timestamp column backs that check up under concurrent
// writers. A redelivered reading is reported as not inserted, never as an
// error.
//
// # Precision
//
// Numeric values are narrowed to float32 before they are bound, so a stored
// value equals float64(float32(v)) for the decoded v.
//
// # Usage
//
//	reading, err := meter.Decode(payload)
//	if err != nil {
//	    // *meter.DecodeError: log and drop
//	}
//	inserted, err := repo.RecordReading(ctx, reading)
package meter
