package goSyncAuth

import (
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goSyncAuth/internal/audit"
	"github.com/MrEthical07/goSyncAuth/jwt"
)

// Outcome is the enumerated result of an authentication attempt. It is the
// only failure detail ever returned to clients.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidCredentials
	OutcomeTempBanned
	OutcomePermaBanned
	OutcomeIdentityBanned
	OutcomeAlreadyLoggedIn
	OutcomeUnknownError
)

// String returns a stable machine-readable name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeTempBanned:
		return "temp_banned"
	case OutcomePermaBanned:
		return "perma_banned"
	case OutcomeIdentityBanned:
		return "identity_banned"
	case OutcomeAlreadyLoggedIn:
		return "already_logged_in"
	default:
		return "unknown_error"
	}
}

// Message returns the human-readable text shown to the client.
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return ""
	case OutcomeInvalidCredentials:
		return "The provided secret key is invalid."
	case OutcomeTempBanned:
		return "Too many failed attempts. Try again in a few minutes."
	case OutcomePermaBanned:
		return "This account is banned."
	case OutcomeIdentityBanned:
		return "This character is banned."
	case OutcomeAlreadyLoggedIn:
		return "Already logged in. Close other clients or wait a moment and retry."
	default:
		return "Authentication is temporarily unavailable. Try again later."
	}
}

// AuthRequest is one authentication attempt. Exactly one of HashedSecretKey
// and LocalContentID is expected; LocalContentID wins when both are set.
type AuthRequest struct {
	IP                string
	HashedSecretKey   string
	LocalContentID    string
	CharacterIdentity string
}

// AuthResult describes an authorization decision.
type AuthResult struct {
	Success     bool
	Outcome     Outcome
	AccessType  jwt.AccessType
	UID         string
	PrimaryUID  string
	Alias       string
	TempBanned  bool
	PermaBanned bool

	// FailedAttempts is the caller IP's failure count after this attempt.
	FailedAttempts int
}

// LoginResponse is returned by Engine.Login. Token is empty unless Outcome
// is OutcomeSuccess.
type LoginResponse struct {
	AuthResult
	Message   string
	Token     string
	ExpiresAt time.Time
}

// RenewResponse carries a re-stamped session token.
type RenewResponse struct {
	Token      string
	ExpiresAt  time.Time
	UID        string
	AccessType jwt.AccessType
}

// AuditEvent is the public audit event payload emitted by Engine operations.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs audit events through a structured logger.
type SlogSink = internalaudit.SlogSink

// MultiSink fans each audit event out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink that logs each event through l.
func NewSlogSink(l *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(l)
}
