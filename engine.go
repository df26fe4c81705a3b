package goSyncAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goSyncAuth/configsync"
	internalaudit "github.com/MrEthical07/goSyncAuth/internal/audit"
	internalflows "github.com/MrEthical07/goSyncAuth/internal/flows"
	"github.com/MrEthical07/goSyncAuth/internal/throttle"
	"github.com/MrEthical07/goSyncAuth/jwt"
	"github.com/MrEthical07/goSyncAuth/presence"
	"github.com/MrEthical07/goSyncAuth/session"
	"github.com/MrEthical07/goSyncAuth/store"
)

// Engine authenticates clients and coordinates their sessions. It is safe
// for concurrent use once built.
type Engine struct {
	config   Config
	records  store.CredentialStore
	source   configsync.Source
	tokens   *jwt.Manager
	guard    *session.Guard
	presence *presence.Cache
	tracker  *throttle.Tracker
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	flows internalflows.Deps
}

// Close stops ban-reset timers and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.tracker != nil {
		e.tracker.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Guard returns the cross-shard single-session guard.
func (e *Engine) Guard() *session.Guard { return e.guard }

// Presence returns the per-owner peer presence cache.
func (e *Engine) Presence() *presence.Cache { return e.presence }

// Tokens returns the session token manager.
func (e *Engine) Tokens() *jwt.Manager { return e.tokens }

// Authorize resolves req to an outcome. The error is non-nil only for
// client-input faults (wrapping ErrBadRequest) or an unbuilt engine; store
// and cache failures surface as OutcomeUnknownError.
func (e *Engine) Authorize(ctx context.Context, req AuthRequest) (AuthResult, error) {
	if e == nil || e.records == nil {
		return AuthResult{}, ErrEngineNotReady
	}
	res, err := e.runAuthorize(ctx, toFlowAuthorizeInput(req))
	if err != nil {
		return AuthResult{}, clientError(err)
	}
	return fromFlowAuthorizeResult(res), nil
}

// Login authorizes req, refuses accounts that already hold a live session on
// any shard, and issues a session token. The session claim itself is taken
// when the real-time connection is established.
func (e *Engine) Login(ctx context.Context, req AuthRequest) (LoginResponse, error) {
	if e == nil || e.records == nil {
		return LoginResponse{}, ErrEngineNotReady
	}
	res, err := internalflows.RunLogin(ctx, toFlowAuthorizeInput(req), e.flows.Login)
	if err != nil {
		return LoginResponse{}, clientError(err)
	}

	auth := fromFlowAuthorizeResult(res.Auth)
	return LoginResponse{
		AuthResult: auth,
		Message:    auth.Outcome.Message(),
		Token:      res.Token.Value,
		ExpiresAt:  res.Token.ExpiresAt,
	}, nil
}

// RenewToken re-stamps a still-valid token with a fresh lifetime.
func (e *Engine) RenewToken(ctx context.Context, token string) (RenewResponse, error) {
	if e == nil || e.tokens == nil {
		return RenewResponse{}, ErrEngineNotReady
	}
	tok, claims, err := internalflows.RunRenew(ctx, token, e.flows.Renew)
	if err != nil {
		e.metricInc(MetricTokenRenewFailure)
		uid := ""
		if claims != nil {
			uid = claims.UID
		}
		e.emitAudit(ctx, auditEventTokenRenewFailure, false, uid, clientIPFromContext(ctx), err, nil)
		return RenewResponse{}, err
	}
	e.metricInc(MetricTokenRenewed)
	return RenewResponse{
		Token:      tok.Value,
		ExpiresAt:  tok.ExpiresAt,
		UID:        claims.UID,
		AccessType: claims.AccessType,
	}, nil
}

// ParseToken verifies a session token and returns its claims.
func (e *Engine) ParseToken(token string) (*jwt.SessionClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

// IssueInternalToken mints a shard-to-shard bearer token naming shard.
func (e *Engine) IssueInternalToken(shard string) (string, error) {
	if e == nil || e.tokens == nil {
		return "", ErrEngineNotReady
	}
	tok, err := e.tokens.Issue(jwt.ClaimsInput{
		CharacterIdentity: shard,
		AccessType:        jwt.AccessInternal,
	})
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// ParseInternalToken verifies a shard-to-shard bearer token.
func (e *Engine) ParseInternalToken(token string) (*jwt.SessionClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.tokens.ParseInternal(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

func (e *Engine) runAuthorize(ctx context.Context, in internalflows.AuthorizeInput) (internalflows.AuthorizeResult, error) {
	if !e.metrics.LatencyEnabled() {
		return internalflows.RunAuthorize(ctx, in, e.flows.Authorize)
	}
	start := time.Now()
	res, err := internalflows.RunAuthorize(ctx, in, e.flows.Authorize)
	e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	return res, err
}

func (e *Engine) initFlowDeps() {
	warn := func(msg string, args ...any) { e.logger.Warn(msg, args...) }
	inc := func(id int) { e.metricInc(MetricID(id)) }

	e.flows.Authorize = internalflows.AuthorizeDeps{
		IsTempBanned:         e.tracker.IsBanned,
		RecordFailure:        e.tracker.RecordFailure,
		LookupCredential:     e.records.CredentialByHashedKey,
		IsIdentityBanned:     e.records.IsIdentityBanned,
		BanIdentity:          e.records.BanIdentity,
		MarkCredentialBanned: e.records.MarkCredentialBanned,
		BanRegistration:      e.records.BanRegistration,
		ValidLocalContentID:  e.validLocalContentID,
		StoreTimeout:         e.config.Timeouts.Store,
		MetricInc:            inc,
		EmitAudit:            e.emitAudit,
		Warn:                 warn,
		Metrics: internalflows.AuthorizeMetrics{
			AuthAttempt:        int(MetricAuthAttempt),
			AuthSuccess:        int(MetricAuthSuccess),
			AuthFailure:        int(MetricAuthFailure),
			AuthTempBanned:     int(MetricAuthTempBanned),
			AuthPermaBanned:    int(MetricAuthPermaBanned),
			AuthIdentityBanned: int(MetricAuthIdentityBanned),
			AuthLocalContent:   int(MetricAuthLocalContent),
			AuthUnknownError:   int(MetricAuthUnknownError),
		},
		Events: internalflows.AuthorizeEvents{
			AuthSuccess:        auditEventAuthSuccess,
			AuthFailure:        auditEventAuthFailure,
			AuthTempBanned:     auditEventAuthTempBanned,
			AuthPermaBanned:    auditEventAuthPermaBanned,
			AuthIdentityBanned: auditEventAuthIdentityBanned,
		},
		Errors: internalflows.AuthorizeErrors{
			EngineNotReady:    ErrEngineNotReady,
			MissingIdentity:   ErrMissingIdentity,
			MissingSecretKey:  ErrMissingSecretKey,
			InvalidLocalToken: ErrInvalidLocalContent,
		},
	}

	e.flows.Login = internalflows.LoginDeps{
		Authorize:   e.runAuthorize,
		IsActive:    e.isSessionActive,
		IssueToken:  e.tokens.Issue,
		RecordLogin: e.recordLogin,
		Now:         e.now,
		MetricInc:   inc,
		EmitAudit:   e.emitAudit,
		Warn:        warn,
		Metrics: internalflows.LoginMetrics{
			DuplicateSession: int(MetricDuplicateSession),
			TokenIssued:      int(MetricTokenIssued),
			AuthUnknownError: int(MetricAuthUnknownError),
		},
		Events: internalflows.LoginEvents{
			DuplicateSession: auditEventDuplicateSession,
		},
		EngineNotReady: ErrEngineNotReady,
	}

	e.flows.Renew = internalflows.RenewDeps{
		Parse:            e.tokens.Parse,
		Renew:            e.tokens.Renew,
		IsIdentityBanned: e.isIdentityBannedBounded,
		Warn:             warn,
		Errors: internalflows.RenewErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidToken:   ErrTokenInvalid,
			IdentityBanned: ErrIdentityBanned,
		},
	}
}

func (e *Engine) isSessionActive(ctx context.Context, uid string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Redis)
	defer cancel()
	return e.guard.IsActive(ctx, uid)
}

func (e *Engine) isIdentityBannedBounded(ctx context.Context, ident string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Store)
	defer cancel()
	return e.records.IsIdentityBanned(ctx, ident)
}

func (e *Engine) recordLogin(ctx context.Context, uid string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Store)
	defer cancel()
	return e.records.RecordLogin(ctx, uid, at)
}

// validLocalContentID is a shape check only; local-content ids are not
// looked up anywhere.
func (e *Engine) validLocalContentID(id string) bool {
	if id == "" || len(id) > e.config.LocalContent.MaxIDLength {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return r <= ' ' || r == 0x7f
	}) < 0
}

func clientError(err error) error {
	if errors.Is(err, ErrEngineNotReady) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBadRequest, err)
}

func toFlowAuthorizeInput(req AuthRequest) internalflows.AuthorizeInput {
	return internalflows.AuthorizeInput{
		IP:                strings.TrimSpace(req.IP),
		HashedSecretKey:   strings.TrimSpace(req.HashedSecretKey),
		LocalContentID:    strings.TrimSpace(req.LocalContentID),
		CharacterIdentity: strings.TrimSpace(req.CharacterIdentity),
	}
}

func fromFlowAuthorizeResult(res internalflows.AuthorizeResult) AuthResult {
	out := AuthResult{
		Outcome:        fromFlowOutcome(res.Outcome),
		AccessType:     res.AccessType,
		UID:            res.UID,
		PrimaryUID:     res.PrimaryUID,
		Alias:          res.Alias,
		FailedAttempts: res.Attempts,
	}
	out.Success = out.Outcome == OutcomeSuccess
	out.TempBanned = out.Outcome == OutcomeTempBanned
	out.PermaBanned = out.Outcome == OutcomePermaBanned
	return out
}

func fromFlowOutcome(o internalflows.AuthOutcome) Outcome {
	switch o {
	case internalflows.AuthOutcomeSuccess:
		return OutcomeSuccess
	case internalflows.AuthOutcomeInvalidCredentials:
		return OutcomeInvalidCredentials
	case internalflows.AuthOutcomeTempBanned:
		return OutcomeTempBanned
	case internalflows.AuthOutcomePermaBanned:
		return OutcomePermaBanned
	case internalflows.AuthOutcomeIdentityBanned:
		return OutcomeIdentityBanned
	case internalflows.AuthOutcomeAlreadyLoggedIn:
		return OutcomeAlreadyLoggedIn
	default:
		return OutcomeUnknownError
	}
}
