// Package flows contains the orchestration behind every Engine operation.
//
// Each Run function (RunIssue, RunVerify, RunValidate, RunRefresh,
// RunAdminLogin) takes a typed dependency struct and returns a result
// carrying a FailureKind. The root engine maps each kind to a public error,
// a metric and an audit event, so the flows never decide what a client sees.
//
// # Architecture boundaries
//
// Flows coordinate the code store, the refresh ledger, the token manager,
// the rate limiter and the directories. They own none of them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import codepass (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through the dependency structs.
package flows
