// Package jwt signs and verifies the access and refresh tokens handed out
// after a successful code verification or admin login. Both kinds carry the
// subject, the admin flag and a kind claim; Parse refuses a token whose kind
// differs from the one the caller asked for.
package jwt
