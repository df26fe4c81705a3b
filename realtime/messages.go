package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType names a server-to-client message.
type MessageType string

const (
	TypeSystemInfo       MessageType = "system_info"
	TypeServerMessage    MessageType = "server_message"
	TypeForcedReconnect  MessageType = "forced_reconnect"
	TypeVerificationCode MessageType = "verification_code"
)

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SystemInfo is pushed periodically to every connection.
type SystemInfo struct {
	OnlineUsers int    `json:"online_users"`
	ShardName   string `json:"shard_name,omitempty"`
}

// Severity of a ServerMessage.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ServerMessage is an operator notice.
type ServerMessage struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ForcedReconnect tells the client its connection is being closed and it
// should reconnect later.
type ForcedReconnect struct {
	Reason string `json:"reason"`
}

// VerificationCode carries an account-claim verification code.
type VerificationCode struct {
	Code string `json:"code"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(typ MessageType, payload any) (Envelope, error) {
	env := Envelope{Type: typ, ID: uuid.NewString(), TS: time.Now().UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = b
	}
	return env, nil
}

// Pusher delivers envelopes to connected accounts.
type Pusher interface {
	// SendAll enqueues env on every connection and returns how many accepted it.
	SendAll(ctx context.Context, env Envelope) int
	// SendTo enqueues env on uid's connection.
	SendTo(ctx context.Context, uid string, env Envelope) bool
	IsOnline(uid string) bool
}
