package flows

import "context"

// Service is the flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired.
func (s Service) Initialized() bool {
	return s.deps.Verify.Store != nil && s.deps.Validate.Parse != nil
}

func (s Service) Issue(ctx context.Context, req IssueRequest) IssueResult {
	return RunIssue(ctx, req, s.deps.Issue)
}

func (s Service) Verify(ctx context.Context, code string) VerifyResult {
	return RunVerify(ctx, code, s.deps.Verify)
}

func (s Service) Validate(ctx context.Context, token string) ValidateResult {
	return RunValidate(ctx, token, s.deps.Validate)
}

func (s Service) ValidateExistence(ctx context.Context, token string) ValidateResult {
	return RunValidateExistence(ctx, token, s.deps.Validate)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) AdminLogin(ctx context.Context, loginID, password string) LoginResult {
	return RunAdminLogin(ctx, loginID, password, s.deps.Login)
}
