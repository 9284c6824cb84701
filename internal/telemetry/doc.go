// Package telemetry exposes the fixed operation counters and latency
// histograms of the knowledge store over a private Prometheus registry.
// It also implements the storage layer's metrics hook so Pebble read and
// commit latencies land in the same registry.
package telemetry
