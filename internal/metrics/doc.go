// Package metrics provides lock-free counters and latency histograms for the
// codepass engine.
//
// # Design
//
// Counters live in cache-line-padded uint64 slots and are incremented with
// [sync/atomic.AddUint64]. The two latency histograms (validate, verify) use
// 8 fixed buckets (≤5ms … +Inf). The write path does not allocate.
//
// # Architecture boundaries
//
// This package owns storage and snapshots. Exporters in metrics/export read
// snapshots through the root package.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import codepass or any sibling package.
package metrics
