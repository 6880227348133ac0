package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/codepass/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMalformed
	ValidateFailureSignature
	ValidateFailureExpired
	ValidateFailureWrongKind
	ValidateFailureClaims
	ValidateFailureDirectory
)

// ValidateResult returns claims or a classified failure. Exists is only set
// by RunValidateExistence.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
	Exists  bool
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	Parse            func(string, jwt.Kind) (*jwt.Claims, error)
	RegistrantExists func(context.Context, string) (bool, error)
	AdminExists      func(context.Context, string) (bool, error)
}

// ClassifyTokenError maps a token manager error onto a failure kind.
func ClassifyTokenError(err error) ValidateFailureKind {
	switch {
	case err == nil:
		return ValidateFailureNone
	case errors.Is(err, jwt.ErrMalformed):
		return ValidateFailureMalformed
	case errors.Is(err, jwt.ErrSignature):
		return ValidateFailureSignature
	case errors.Is(err, jwt.ErrExpired):
		return ValidateFailureExpired
	case errors.Is(err, jwt.ErrWrongKind):
		return ValidateFailureWrongKind
	default:
		return ValidateFailureClaims
	}
}

// RunValidate verifies an access token without any store round trip.
func RunValidate(_ context.Context, token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Parse(token, jwt.KindAccess)
	if err != nil {
		return ValidateResult{Failure: ClassifyTokenError(err), Err: err}
	}
	return ValidateResult{Claims: claims}
}

// RunValidateExistence validates token and then checks that its subject is
// still known to the directory matching its role.
func RunValidateExistence(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	res := RunValidate(ctx, token, deps)
	if res.Failure != ValidateFailureNone {
		return res
	}

	lookup := deps.RegistrantExists
	if res.Claims.Admin {
		lookup = deps.AdminExists
	}
	if lookup == nil {
		return ValidateResult{Failure: ValidateFailureDirectory, Err: errors.New("directory not configured"), Claims: res.Claims}
	}

	exists, err := lookup(ctx, res.Claims.Subject)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureDirectory, Err: err, Claims: res.Claims}
	}
	res.Exists = exists
	return res
}
