// Package telemetry turns player events into Prometheus metrics and,
// when InfluxDB is enabled, scene_activation points.
//
// Metrics live on a private registry served at /metrics, labelled with the
// player ID so several walls can be scraped by one Prometheus.
package telemetry
