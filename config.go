package goSyncAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSyncAuth/jwt"
	"github.com/MrEthical07/goSyncAuth/presence"
	"github.com/MrEthical07/goSyncAuth/session"
)

const minSecretLength = 32

// Config holds engine settings fixed at build time. Thresholds that operators
// change at runtime (temp-ban policy, allow-list) come from the configuration
// source instead; see Builder.WithConfigSource.
type Config struct {
	Token        TokenConfig
	Session      SessionConfig
	Presence     PresenceConfig
	Timeouts     TimeoutConfig
	LocalContent LocalContentConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures session-token signing. Every shard of a fleet must
// share Secret.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Lifetime time.Duration

	// KeyID names Secret in the token header. PreviousKeys keeps accepting
	// tokens signed with retired secrets during rotation.
	KeyID        string
	PreviousKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the cross-shard single-session guard.
type SessionConfig struct {
	// Scope prefixes guard keys: "<Scope>:UID:<uid>".
	Scope string
	// ClaimTTL bounds how long a claim outlives an abrupt disconnect.
	ClaimTTL time.Duration
}

// PresenceConfig configures the per-owner peer presence cache.
type PresenceConfig struct {
	TTL time.Duration
}

// TimeoutConfig bounds every backend call made on a request path.
type TimeoutConfig struct {
	Store time.Duration
	Redis time.Duration
}

// LocalContentConfig bounds the shallow shape check applied to
// local-content ids.
type LocalContentConfig struct {
	MaxIDLength int
}

/*
====================================
AUDIT / METRICS
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Token.Secret is left empty
// and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:   "gosyncauth",
			Lifetime: jwt.DefaultLifetime,
		},
		Session: SessionConfig{
			Scope:    "gosyncauth",
			ClaimTTL: session.DefaultClaimTTL,
		},
		Presence: PresenceConfig{
			TTL: presence.DefaultTTL,
		},
		Timeouts: TimeoutConfig{
			Store: 5 * time.Second,
			Redis: 2 * time.Second,
		},
		LocalContent: LocalContentConfig{
			MaxIDLength: 128,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	if cfg.Token.PreviousKeys != nil {
		out.Token.PreviousKeys = make(map[string][]byte, len(cfg.Token.PreviousKeys))
		for kid, key := range cfg.Token.PreviousKeys {
			out.Token.PreviousKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) < minSecretLength {
		return fmt.Errorf("Token Secret must be at least %d bytes", minSecretLength)
	}
	if c.Token.Lifetime <= 0 {
		return errors.New("Token Lifetime must be > 0")
	}
	if strings.TrimSpace(c.Token.Issuer) == "" {
		return errors.New("Token Issuer must not be empty")
	}
	if len(c.Token.PreviousKeys) > 0 && strings.TrimSpace(c.Token.KeyID) == "" {
		return errors.New("Token KeyID is required when PreviousKeys is set")
	}
	for kid, key := range c.Token.PreviousKeys {
		if kid == c.Token.KeyID {
			return errors.New("Token PreviousKeys must not contain the active KeyID")
		}
		if len(key) < minSecretLength {
			return fmt.Errorf("Token PreviousKeys[%q] must be at least %d bytes", kid, minSecretLength)
		}
	}

	// Session
	if c.Session.Scope == "" || strings.ContainsAny(c.Session.Scope, ": \t\n*") {
		return errors.New("Session Scope must be non-empty and contain no ':', '*' or whitespace")
	}
	if c.Session.ClaimTTL <= 0 {
		return errors.New("Session ClaimTTL must be > 0")
	}
	if c.Session.ClaimTTL >= c.Token.Lifetime {
		return errors.New("Session ClaimTTL must be shorter than Token Lifetime")
	}

	// Presence
	if c.Presence.TTL <= 0 {
		return errors.New("Presence TTL must be > 0")
	}

	// Timeouts
	if c.Timeouts.Store <= 0 {
		return errors.New("Timeouts Store must be > 0")
	}
	if c.Timeouts.Redis <= 0 {
		return errors.New("Timeouts Redis must be > 0")
	}

	if c.LocalContent.MaxIDLength <= 0 {
		return errors.New("LocalContent MaxIDLength must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func (c *Config) jwtConfig() jwt.Config {
	out := jwt.Config{
		Secret:   cloneBytes(c.Token.Secret),
		Lifetime: c.Token.Lifetime,
		Issuer:   c.Token.Issuer,
		KeyID:    c.Token.KeyID,
	}
	if len(c.Token.PreviousKeys) > 0 {
		out.VerifyKeys = make(map[string][]byte, len(c.Token.PreviousKeys)+1)
		out.VerifyKeys[c.Token.KeyID] = cloneBytes(c.Token.Secret)
		for kid, key := range c.Token.PreviousKeys {
			out.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}
