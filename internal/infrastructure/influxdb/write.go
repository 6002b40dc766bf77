package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/glowmarkt-logger/internal/meter"
)

// measurementElectricity is the measurement that holds meter readings.
const measurementElectricity = "electricity_meter"

// WriteReading writes a stored reading to InfluxDB.
//
// The point is stamped with the meter's own timestamp, not the time of
// writing, so a late mirror still lines up with the SQLite record. The
// write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteReading(r meter.Reading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(r))
}

// readingPoint converts a reading into a line-protocol point.
//
// Tags carry the low-cardinality identity of the meter; every numeric
// value becomes a field, narrowed to float32 precision exactly as the
// SQLite record stores it, so both stores hold the same numbers.
func readingPoint(r meter.Reading) *write.Point {
	return write.NewPoint(
		measurementElectricity,
		map[string]string{
			"mpan":         r.Import.MPAN,
			"supplier":     r.Import.Supplier,
			"energy_units": r.Import.Units,
			"power_units":  r.Power.Units,
		},
		map[string]interface{}{
			"export_cumulative": narrow(r.Export.Cumulative),
			"import_cumulative": narrow(r.Import.Cumulative),
			"import_day":        narrow(r.Import.Day),
			"import_week":       narrow(r.Import.Week),
			"import_month":      narrow(r.Import.Month),
			"unit_rate":         narrow(r.Import.Price.UnitRate),
			"standing_charge":   narrow(r.Import.Price.StandingCharge),
			"power":             narrow(r.Power.Value),
		},
		r.Timestamp,
	)
}

// narrow rounds v to float32 precision.
func narrow(v float64) float64 {
	return float64(float32(v))
}
