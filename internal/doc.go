// Package internal holds code generation and token id helpers shared by the
// engine and its flows.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - httpapi: chi router and handlers for the HTTP transport
//   - metrics: lock-free counters and latency histograms
//   - platform: config, logging and tracing bootstrap for the server binary
//   - rate: Redis-backed fixed-window throttles
//   - registry: Redis heartbeat service registration
//   - security: posture report derived from the frozen config
//   - stores: Redis code store and refresh ledger
package internal
