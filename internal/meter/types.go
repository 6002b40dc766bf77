package meter

import "time"

// Timestamp layouts.
const (
	// WireTimestampLayout is the only timestamp format accepted in payloads.
	WireTimestampLayout = "2006-01-02T15:04:05Z"

	// StorageTimestampLayout is how timestamps are written to the
	// electricity_meter_messages table (naive UTC wall clock).
	StorageTimestampLayout = "2006-01-02 15:04:05"
)

// Reading is one decoded meter message. It is a value type and is never
// modified after decoding.
type Reading struct {
	// Timestamp is the meter's reading time in UTC, at one-second resolution.
	Timestamp time.Time

	Export ExportEnergy
	Import ImportEnergy
	Power  Power
}

// ExportEnergy is energy exported to the grid.
type ExportEnergy struct {
	Cumulative float64
	Units      string
}

// ImportEnergy is energy imported from the grid along with tariff details.
type ImportEnergy struct {
	Cumulative float64
	Day        float64
	Week       float64
	Month      float64
	Units      string

	// MPAN is the meter point administration number.
	MPAN     string
	Supplier string
	Price    Price
}

// Price is the import tariff.
type Price struct {
	UnitRate       float64
	StandingCharge float64
}

// Power is the instantaneous demand.
type Power struct {
	Value float64
	Units string
}

// StorageTimestamp returns the dedup key as written to storage.
func (r Reading) StorageTimestamp() string {
	return r.Timestamp.UTC().Format(StorageTimestampLayout)
}
