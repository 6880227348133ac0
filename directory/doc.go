// Package directory holds the registrant and admin stores behind
// codepass.Directory and codepass.AdminDirectory.
//
// Subpackages:
//
//   - sqlite: a single-file store for development and tests (modernc.org/sqlite).
//   - postgres: a pgx pool backed store for deployments.
//
// Both create registrants with create-or-fetch semantics keyed by the
// verification code, so a retried verification returns the stored record.
package directory
