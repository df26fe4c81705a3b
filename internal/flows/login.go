package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSyncAuth/jwt"
)

// LoginResult is the authorization result plus the issued token, if any.
type LoginResult struct {
	Auth  AuthorizeResult
	Token jwt.Token
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	DuplicateSession int
	TokenIssued      int
	AuthUnknownError int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	DuplicateSession string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Authorize   func(context.Context, AuthorizeInput) (AuthorizeResult, error)
	IsActive    func(context.Context, string) (bool, error)
	IssueToken  func(jwt.ClaimsInput) (jwt.Token, error)
	RecordLogin func(context.Context, string, time.Time) error
	Now         func() time.Time

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, uid, ip string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics        LoginMetrics
	Events         LoginEvents
	EngineNotReady error
}

// RunLogin authorizes the request, rejects accounts that already hold a live
// session, and issues a token. The session claim itself is taken later, when
// the real-time connection is established.
func RunLogin(ctx context.Context, in AuthorizeInput, deps LoginDeps) (LoginResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.Authorize == nil || deps.IsActive == nil || deps.IssueToken == nil {
		return LoginResult{}, deps.EngineNotReady
	}

	auth, err := deps.Authorize(ctx, in)
	if err != nil {
		return LoginResult{}, err
	}
	if auth.Outcome != AuthOutcomeSuccess {
		return LoginResult{Auth: auth}, nil
	}

	claims := jwt.ClaimsInput{
		CharacterIdentity: in.CharacterIdentity,
		AccessType:        auth.AccessType,
	}
	if auth.AccessType == jwt.AccessSecretKey {
		active, err := deps.IsActive(ctx, auth.UID)
		if err != nil {
			deps.MetricInc(deps.Metrics.AuthUnknownError)
			deps.Warn("session guard check failed", "uid", auth.UID, "err", err)
			return LoginResult{Auth: AuthorizeResult{Outcome: AuthOutcomeUnknownError, Err: err}}, nil
		}
		if active {
			deps.MetricInc(deps.Metrics.DuplicateSession)
			deps.EmitAudit(ctx, deps.Events.DuplicateSession, false, auth.UID, in.IP, nil, func() map[string]string {
				return map[string]string{"ident": in.CharacterIdentity}
			})
			auth.Outcome = AuthOutcomeAlreadyLoggedIn
			return LoginResult{Auth: auth}, nil
		}
		claims.UID = auth.UID
		claims.Alias = auth.Alias
	}

	tok, err := deps.IssueToken(claims)
	if err != nil {
		deps.MetricInc(deps.Metrics.AuthUnknownError)
		deps.Warn("token issuance failed", "uid", auth.UID, "err", err)
		return LoginResult{Auth: AuthorizeResult{Outcome: AuthOutcomeUnknownError, Err: err}}, nil
	}
	deps.MetricInc(deps.Metrics.TokenIssued)

	if auth.UID != "" && deps.RecordLogin != nil {
		if err := deps.RecordLogin(ctx, auth.UID, deps.Now()); err != nil {
			deps.Warn("last-login update failed", "uid", auth.UID, "err", err)
		}
	}
	return LoginResult{Auth: auth, Token: tok}, nil
}
