// Package influxdb provides the time-series telemetry archive for fleetstate.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, event writing, and health monitoring. State records keep only
// the most recent events per device; the archive retains the full history
// for trend analysis and reporting.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "fleetstate",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteMeasurement("device-7", "assignment-1", "temperature", 21.5, eventDate)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead for high-frequency event
// streams.
package influxdb
