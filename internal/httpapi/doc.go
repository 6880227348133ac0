// Package httpapi exposes a codepass engine over HTTP with a chi router.
//
// Routes:
//
//	POST /auth/code            issue a verification code
//	POST /auth/verify          redeem a code for a token pair
//	POST /auth/validate/token  report whether a token's subject still exists
//	POST /auth/verify/header   resolve the Bearer token's subject
//	POST /auth/reissue         rotate a refresh token
//	GET  /auth/me              claims of the Bearer token
//	POST /admin/login          admin password login
//	GET  /healthz
//	GET  /metrics              when a metrics handler is configured
//
// Every denial answers 401 with the same body for a given route, so callers
// cannot tell an unknown code from a consumed one.
package httpapi
