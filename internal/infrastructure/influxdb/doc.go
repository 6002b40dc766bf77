// Package influxdb mirrors stored meter readings into InfluxDB.
//
// SQLite stays the system of record. When enabled, every reading the ingest
// pipeline stores for the first time is also written to InfluxDB as one
// point of the electricity_meter measurement, for dashboards and long-range
// queries. Duplicates and failed readings are never mirrored.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//	pipeline.SetSink(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes, and write
// errors are delivered to the SetOnError callback.
package influxdb
