package flows

import (
	"context"

	"github.com/MrEthical07/codepass/jwt"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Issue    IssueDeps
	Verify   VerifyDeps
	Validate ValidateDeps
	Refresh  RefreshDeps
	Login    LoginDeps
}

// PairIssuer mints a token pair and records whatever the refresh side needs.
type PairIssuer func(ctx context.Context, subject string, isAdmin bool) (jwt.Pair, error)
