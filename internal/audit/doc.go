// Package audit delivers audit events for code issuance, verification,
// token validation, refresh and admin login.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: buffered async relay, drop-if-full or block-if-full.
//   - [Event]: timestamp, type, subject, role, IP, request id, metadata.
//
// # Architecture boundaries
//
// This package buffers and delivers. Which events exist and when they fire
// is decided by the engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import codepass or any sibling internal package.
package audit
