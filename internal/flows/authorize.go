package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSyncAuth/jwt"
	"github.com/MrEthical07/goSyncAuth/store"
)

// AuthOutcome classifies an authorization attempt for root-level mapping.
type AuthOutcome int

const (
	AuthOutcomeSuccess AuthOutcome = iota
	AuthOutcomeInvalidCredentials
	AuthOutcomeTempBanned
	AuthOutcomePermaBanned
	AuthOutcomeIdentityBanned
	AuthOutcomeAlreadyLoggedIn
	AuthOutcomeUnknownError
)

// AuthorizeInput is one authentication request.
type AuthorizeInput struct {
	IP                string
	HashedSecretKey   string
	LocalContentID    string
	CharacterIdentity string
}

// AuthorizeResult carries the identity or failure metadata. Err holds the
// infrastructure error behind AuthOutcomeUnknownError.
type AuthorizeResult struct {
	Outcome    AuthOutcome
	AccessType jwt.AccessType
	UID        string
	PrimaryUID string
	Alias      string
	ExternalID string
	Attempts   int
	Err        error
}

// AuthorizeMetrics carries metric IDs needed by the authorize flow.
type AuthorizeMetrics struct {
	AuthAttempt        int
	AuthSuccess        int
	AuthFailure        int
	AuthTempBanned     int
	AuthPermaBanned    int
	AuthIdentityBanned int
	AuthLocalContent   int
	AuthUnknownError   int
}

// AuthorizeEvents carries audit event names used by the authorize flow.
type AuthorizeEvents struct {
	AuthSuccess        string
	AuthFailure        string
	AuthTempBanned     string
	AuthPermaBanned    string
	AuthIdentityBanned string
}

// AuthorizeErrors carries host-level sentinel errors for client-input faults.
type AuthorizeErrors struct {
	EngineNotReady    error
	MissingIdentity   error
	MissingSecretKey  error
	InvalidLocalToken error
}

// AuthorizeDeps captures authorize flow dependencies.
type AuthorizeDeps struct {
	IsTempBanned  func(ip string) (bool, int)
	RecordFailure func(ip string)

	LookupCredential     func(context.Context, string) (store.Credential, error)
	IsIdentityBanned     func(context.Context, string) (bool, error)
	BanIdentity          func(context.Context, string, string) error
	MarkCredentialBanned func(context.Context, string) error
	BanRegistration      func(context.Context, string) error
	ValidLocalContentID  func(string) bool

	StoreTimeout time.Duration

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, uid, ip string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics AuthorizeMetrics
	Events  AuthorizeEvents
	Errors  AuthorizeErrors
}

// RunAuthorize validates one request. The returned error is non-nil only for
// client-input faults; every other failure is an outcome in the result.
func RunAuthorize(ctx context.Context, in AuthorizeInput, deps AuthorizeDeps) (AuthorizeResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ValidLocalContentID == nil {
		deps.ValidLocalContentID = func(id string) bool { return id != "" }
	}
	if deps.IsTempBanned == nil ||
		deps.RecordFailure == nil ||
		deps.LookupCredential == nil ||
		deps.IsIdentityBanned == nil {
		return AuthorizeResult{}, deps.Errors.EngineNotReady
	}

	if in.CharacterIdentity == "" {
		return AuthorizeResult{}, deps.Errors.MissingIdentity
	}
	if in.LocalContentID == "" && in.HashedSecretKey == "" {
		return AuthorizeResult{}, deps.Errors.MissingSecretKey
	}
	if in.LocalContentID != "" && !deps.ValidLocalContentID(in.LocalContentID) {
		return AuthorizeResult{}, deps.Errors.InvalidLocalToken
	}

	deps.MetricInc(deps.Metrics.AuthAttempt)

	if banned, attempts := deps.IsTempBanned(in.IP); banned {
		deps.MetricInc(deps.Metrics.AuthTempBanned)
		deps.EmitAudit(ctx, deps.Events.AuthTempBanned, false, "", in.IP, nil, func() map[string]string {
			return map[string]string{"ident": in.CharacterIdentity}
		})
		return AuthorizeResult{Outcome: AuthOutcomeTempBanned, Attempts: attempts}, nil
	}

	identityBanned, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (bool, error) {
		return deps.IsIdentityBanned(ctx, in.CharacterIdentity)
	})
	if err != nil {
		return unknownError(ctx, deps, in, "identity_ban_lookup", err), nil
	}

	if in.LocalContentID != "" {
		if identityBanned {
			return rejectIdentity(ctx, deps, in, "", ""), nil
		}
		deps.MetricInc(deps.Metrics.AuthLocalContent)
		deps.MetricInc(deps.Metrics.AuthSuccess)
		return AuthorizeResult{Outcome: AuthOutcomeSuccess, AccessType: jwt.AccessLocalContent}, nil
	}

	cred, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (store.Credential, error) {
		return deps.LookupCredential(ctx, in.HashedSecretKey)
	})
	if errors.Is(err, store.ErrNotFound) {
		deps.RecordFailure(in.IP)
		_, attempts := deps.IsTempBanned(in.IP)
		deps.MetricInc(deps.Metrics.AuthFailure)
		deps.EmitAudit(ctx, deps.Events.AuthFailure, false, "", in.IP, nil, func() map[string]string {
			return map[string]string{"ident": in.CharacterIdentity, "reason": "unknown_secret_key"}
		})
		return AuthorizeResult{Outcome: AuthOutcomeInvalidCredentials, Attempts: attempts}, nil
	}
	if err != nil {
		return unknownError(ctx, deps, in, "credential_lookup", err), nil
	}

	res := AuthorizeResult{
		AccessType: jwt.AccessSecretKey,
		UID:        cred.UID,
		PrimaryUID: cred.EffectivePrimaryUID(),
		Alias:      cred.Alias,
		ExternalID: cred.ExternalID,
	}

	if cred.IsBanned() {
		propagatePermaBan(ctx, deps, in, cred)
		deps.MetricInc(deps.Metrics.AuthPermaBanned)
		deps.EmitAudit(ctx, deps.Events.AuthPermaBanned, false, cred.UID, in.IP, nil, func() map[string]string {
			return map[string]string{"ident": in.CharacterIdentity, "primary_uid": res.PrimaryUID}
		})
		res.Outcome = AuthOutcomePermaBanned
		return res, nil
	}

	if identityBanned {
		if deps.MarkCredentialBanned != nil {
			if _, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, deps.MarkCredentialBanned(ctx, in.HashedSecretKey)
			}); err != nil {
				deps.Warn("identity ban propagation failed", "uid", cred.UID, "err", err)
			}
		}
		r := rejectIdentity(ctx, deps, in, cred.UID, res.PrimaryUID)
		res.Outcome = r.Outcome
		return res, nil
	}

	res.Outcome = AuthOutcomeSuccess
	deps.MetricInc(deps.Metrics.AuthSuccess)
	deps.EmitAudit(ctx, deps.Events.AuthSuccess, true, cred.UID, in.IP, nil, nil)
	return res, nil
}

func rejectIdentity(ctx context.Context, deps AuthorizeDeps, in AuthorizeInput, uid, primaryUID string) AuthorizeResult {
	deps.MetricInc(deps.Metrics.AuthIdentityBanned)
	deps.EmitAudit(ctx, deps.Events.AuthIdentityBanned, false, uid, in.IP, nil, func() map[string]string {
		return map[string]string{"ident": in.CharacterIdentity, "primary_uid": primaryUID}
	})
	return AuthorizeResult{Outcome: AuthOutcomeIdentityBanned, UID: uid, PrimaryUID: primaryUID}
}

// propagatePermaBan bans the presenting identity and the lineage's external
// identity. Failures are logged; the request is rejected either way.
func propagatePermaBan(ctx context.Context, deps AuthorizeDeps, in AuthorizeInput, cred store.Credential) {
	if deps.BanIdentity != nil {
		if _, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deps.BanIdentity(ctx, in.CharacterIdentity, "perma-banned account "+cred.EffectivePrimaryUID())
		}); err != nil {
			deps.Warn("identity ban write failed", "uid", cred.UID, "err", err)
		}
	}
	if deps.BanRegistration != nil && cred.ExternalID != "" {
		if _, err := withTimeout(ctx, deps.StoreTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deps.BanRegistration(ctx, cred.ExternalID)
		}); err != nil {
			deps.Warn("registration ban write failed", "uid", cred.UID, "err", err)
		}
	}
}

func unknownError(ctx context.Context, deps AuthorizeDeps, in AuthorizeInput, stage string, err error) AuthorizeResult {
	deps.MetricInc(deps.Metrics.AuthUnknownError)
	deps.Warn("authorization failed on infrastructure error", "stage", stage, "ip", in.IP, "err", err)
	deps.EmitAudit(ctx, deps.Events.AuthFailure, false, "", in.IP, err, func() map[string]string {
		return map[string]string{"ident": in.CharacterIdentity, "reason": stage}
	})
	return AuthorizeResult{Outcome: AuthOutcomeUnknownError, Err: err}
}

func withTimeout[T any](parent context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(parent)
	}
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
