package goSyncAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSyncAuth/store"
)

const (
	auditEventAuthSuccess        = "auth_success"
	auditEventAuthFailure        = "auth_failure"
	auditEventAuthTempBanned     = "auth_temp_banned"
	auditEventAuthPermaBanned    = "auth_perma_banned"
	auditEventAuthIdentityBanned = "auth_identity_banned"
	auditEventDuplicateSession   = "duplicate_session"
	auditEventTokenRenewFailure  = "token_renew_failure"
)

// AuditErrorCode is the coarse error classification stored in audit events.
// Raw error text never reaches a sink.
type AuditErrorCode string

const (
	auditErrInvalidToken   AuditErrorCode = "invalid_token"
	auditErrIdentityBanned AuditErrorCode = "identity_banned"
	auditErrBadRequest     AuditErrorCode = "bad_request"
	auditErrUnavailable    AuditErrorCode = "backend_unavailable"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	uid string,
	ip string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    uid,
		IP:        ip,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrIdentityBanned):
		return auditErrIdentityBanned
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrMissingIdentity),
		errors.Is(err, ErrMissingSecretKey),
		errors.Is(err, ErrInvalidLocalContent):
		return auditErrBadRequest
	case errors.Is(err, ErrGuardUnavailable),
		errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
