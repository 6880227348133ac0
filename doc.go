// Package codepass issues one-time verification codes and the signed token
// pairs they unlock, for registrants and for administrators.
//
// A code is issued with [Engine.IssueCode], handed to a person out of band and
// redeemed once with [Engine.Verify]. A successful redemption creates (or
// fetches) the registrant in the [Directory], optionally asks [Reservations]
// for a pre-reservation, and returns an access token and a refresh token.
// Access tokens are checked offline with [Engine.Validate]; refresh tokens
// are exchanged with [Engine.Reissue]. Administrators obtain admin-flagged
// pairs through [Engine.AdminLogin].
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// codepass is the public surface. Flow orchestration, Redis scripts, rate
// limiting, metrics and audit dispatch live under internal/ and are never
// exported.
//
// # Denials
//
// Verify reports every denial as [ErrVerificationFailed] and Validate as
// [ErrTokenInvalid]. The precise reason goes to logs and audit events only.
// Backend failures are reported as [ErrStoreUnavailable] or
// [ErrDirectoryUnavailable] and are never turned into denials.
package codepass
