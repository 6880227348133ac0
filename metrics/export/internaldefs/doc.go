// Package internaldefs holds the metric names shared by the Prometheus and
// OpenTelemetry exporters so both expose the same families.
package internaldefs
