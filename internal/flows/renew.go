package flows

import (
	"context"

	"github.com/MrEthical07/goSyncAuth/jwt"
)

// RenewErrors carries host-level sentinel errors used by the renew flow.
type RenewErrors struct {
	EngineNotReady error
	InvalidToken   error
	IdentityBanned error
}

// RenewDeps captures renew dependencies.
type RenewDeps struct {
	Parse            func(string) (*jwt.SessionClaims, error)
	Renew            func(*jwt.SessionClaims) (jwt.Token, error)
	IsIdentityBanned func(context.Context, string) (bool, error)
	Warn             func(string, ...any)
	Errors           RenewErrors
}

// RunRenew re-stamps a still-valid client token with a fresh lifetime. A
// banned identity cannot extend its session, and internal tokens are refused.
func RunRenew(ctx context.Context, token string, deps RenewDeps) (jwt.Token, *jwt.SessionClaims, error) {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.Parse == nil || deps.Renew == nil {
		return jwt.Token{}, nil, deps.Errors.EngineNotReady
	}

	claims, err := deps.Parse(token)
	if err != nil {
		return jwt.Token{}, nil, deps.Errors.InvalidToken
	}
	// Only client sessions renew; shard-to-shard tokens are minted fresh.
	if !renewable(claims.AccessType) {
		return jwt.Token{}, claims, deps.Errors.InvalidToken
	}

	if deps.IsIdentityBanned != nil {
		banned, err := deps.IsIdentityBanned(ctx, claims.CharacterIdentity)
		if err != nil {
			// Lookup failures do not block renewal.
			deps.Warn("identity ban check during renew failed", "err", err)
		} else if banned {
			return jwt.Token{}, claims, deps.Errors.IdentityBanned
		}
	}

	tok, err := deps.Renew(claims)
	if err != nil {
		return jwt.Token{}, claims, deps.Errors.InvalidToken
	}
	return tok, claims, nil
}

func renewable(access jwt.AccessType) bool {
	return access == jwt.AccessSecretKey || access == jwt.AccessLocalContent
}
