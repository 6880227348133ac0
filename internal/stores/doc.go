// Package stores provides the Redis-backed records behind code verification
// and refresh rotation.
//
// # Design
//
// CodeStore persists a versioned, binary-encoded record per outstanding code
// with a TTL. Put and Consume each run as one Lua script, so a collision
// check and its write, or a match and its consumption, can never interleave
// with another caller on the same key. Consumed records stay behind as
// tombstones until their TTL runs out.
//
// RefreshLedger tracks which refresh-token ids are still redeemable. Redeeming
// is a single GETDEL.
//
// # Architecture boundaries
//
// This package owns persistence and atomicity only. It does not generate
// codes, sign tokens, enforce rate limits or decide what a failure means to
// a client; those belong to internal/flows and the root engine.
//
// # What this package must NOT do
//
//   - Import codepass or any sibling internal package.
//   - Log code values or token ids.
package stores
