// Package audit carries security events from the engine to pluggable sinks.
//
// # Components
//
//   - [Event] is the record: type, account id, client IP, outcome, metadata.
//   - [Sink] consumes events (channel, JSON lines, fan-out, Kafka adapter).
//   - [Dispatcher] is a bounded async relay with drop-if-full or block-if-full
//     behaviour and a dropped-event counter.
//
// # Architecture boundaries
//
// The engine decides which events to emit. This package only buffers and
// delivers them.
//
// # What this package must NOT do
//
//   - Import goIAM or any sibling internal package.
//   - Carry secrets: events hold ids and outcomes, never credentials.
package audit
