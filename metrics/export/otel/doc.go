// Package otel mirrors codepass engine metrics into an OpenTelemetry meter.
//
// [NewExporter] creates one observable counter per engine counter and, for
// each latency histogram, a cumulative bucket gauge keyed by the "le"
// attribute plus a count gauge. A single callback reads the engine snapshot
// on every collection. The caller owns the MeterProvider.
package otel
