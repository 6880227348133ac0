// Package middleware adapts codepass token validation to net/http.
//
// [Guard] reads the Authorization header, validates the Bearer access token
// and stores the resulting [codepass.Claims] in the request context, where
// [ClaimsFromContext] finds them. [RequireAdmin] narrows a guarded route to
// admin tokens.
package middleware
