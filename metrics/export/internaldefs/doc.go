// Package internaldefs holds the metric names, help strings and bucket
// layout shared by the Prometheus and OpenTelemetry exporters, so both expose
// identical series.
//
// It must not perform I/O or import an exporter package.
package internaldefs
