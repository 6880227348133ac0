// Package rate provides the Redis-backed fixed-window counters that throttle
// code issuance, code verification, refresh and admin login.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit. Key prefixes:
//   - rci: code issuance per IP
//   - rcv: code verification per IP
//   - rrf: refresh per IP
//   - ral: admin login per login id
//   - rali: admin login per IP
//
// Every window keyed by IP is skipped when the caller's IP is unknown.
//
// # What this package must NOT do
//
//   - Decide what a limited request looks like to a client.
//   - Be imported outside the codepass module.
package rate
