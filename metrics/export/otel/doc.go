// Package otel binds goIAM engine metrics to OpenTelemetry observable
// instruments.
//
// Counters are grouped by flow: goiam.auth.login carries one data point per
// outcome (success, failure, rate_limited). The VerifyAccess latency
// histogram is a gauge keyed by its "le" bound. A single callback reads
// [goIAM.Engine.MetricsSnapshot] on each collection. Callers own the
// MeterProvider.
package otel
