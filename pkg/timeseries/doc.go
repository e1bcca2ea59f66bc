// Package timeseries stores and queries historical sensor readings.
//
// The InfluxDB backend is the production implementation; the in-memory
// backend serves tests and instances running without external storage.
// Schedule progress checks read windowed series, the ingest path writes
// one point per accepted reading.
package timeseries
