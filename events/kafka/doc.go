// Package kafka publishes goIAM audit events and refresh-token reuse signals
// to Kafka topics through an idempotent synchronous sarama producer.
//
// [Publisher] implements both goIAM.AuditSink and goIAM.SecurityResponder, so
// one value can be passed to Builder.WithAuditSink and
// Builder.WithSecurityResponder. Messages are JSON envelopes keyed by account
// id; delivery errors are logged and never surface to the calling flow.
package kafka
