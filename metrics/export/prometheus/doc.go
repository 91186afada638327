// Package prometheus exposes goIAM engine counters and the VerifyAccess
// latency histogram as a prometheus.Collector.
//
// Counter names are goiam_*_total; the histogram is
// goiam_verify_access_latency_seconds. Callers either mount [Exporter.Handler]
// or register the exporter on their own registry. The package never touches
// the global default registry.
package prometheus
