package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultLifetime is the fixed validity window of every issued token.
const DefaultLifetime = 6 * time.Hour

const minSecretLength = 32

var (
	// ErrInvalidClaims is returned when the claims handed to Issue or Renew are
	// incomplete for their access type.
	ErrInvalidClaims = errors.New("invalid session claims")
	// ErrTokenExpired is returned by Renew for claims that are already past expiry.
	ErrTokenExpired = errors.New("session token expired")
	// ErrWrongAccessType is returned when a token is valid but not of the kind required.
	ErrWrongAccessType = errors.New("wrong token access type")
)

// AccessType distinguishes full secret-key sessions from restricted ones.
type AccessType string

const (
	// AccessSecretKey marks a session established with a secret key.
	AccessSecretKey AccessType = "secret_key"
	// AccessLocalContent marks a short-lived restricted session with no persistent identity.
	AccessLocalContent AccessType = "local_content"
	// AccessInternal marks shard-to-shard bearer tokens.
	AccessInternal AccessType = "internal"
)

// Config holds the signing parameters shared by the fleet.
type Config struct {
	Secret   []byte
	Lifetime time.Duration
	Issuer   string

	// KeyID is stamped into the token header. VerifyKeys, when set, lets a
	// shard accept tokens signed with previous secrets during rotation.
	KeyID      string
	VerifyKeys map[string][]byte

	// Now overrides the clock used for issuance and verification.
	Now func() time.Time
}

// SessionClaims are the immutable claims carried by a session token.
type SessionClaims struct {
	UID               string     `json:"uid,omitempty"`
	CharacterIdentity string     `json:"ident"`
	Alias             string     `json:"alias,omitempty"`
	AccessType        AccessType `json:"access_type"`
	jwt.RegisteredClaims
}

// ClaimsInput is the identity a token is minted for.
type ClaimsInput struct {
	UID               string
	CharacterIdentity string
	Alias             string
	AccessType        AccessType
}

// Token is a signed token together with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Manager signs and verifies session tokens. It holds no mutable state and
// is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", minSecretLength)
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Lifetime < 0 {
		return nil, errors.New("invalid token lifetime")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < minSecretLength {
			return nil, fmt.Errorf("verify key for kid %q is too short", kid)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// Lifetime returns the validity window applied to issued tokens.
func (m *Manager) Lifetime() time.Duration {
	return m.config.Lifetime
}

// Issue mints a token for in. Local-content tokens never carry a UID or alias.
func (m *Manager) Issue(in ClaimsInput) (Token, error) {
	in.CharacterIdentity = strings.TrimSpace(in.CharacterIdentity)
	if in.CharacterIdentity == "" {
		return Token{}, ErrInvalidClaims
	}

	switch in.AccessType {
	case AccessSecretKey:
		if strings.TrimSpace(in.UID) == "" {
			return Token{}, ErrInvalidClaims
		}
	case AccessLocalContent:
		in.UID = ""
		in.Alias = ""
	case AccessInternal:
		in.Alias = ""
	default:
		return Token{}, ErrInvalidClaims
	}

	now := m.now()
	expires := now.Add(m.config.Lifetime)

	claims := SessionClaims{
		UID:               in.UID,
		CharacterIdentity: in.CharacterIdentity,
		Alias:             in.Alias,
		AccessType:        in.AccessType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Renew re-stamps a fresh lifetime onto claims taken from a previously
// verified token. Expired claims are refused.
func (m *Manager) Renew(claims *SessionClaims) (Token, error) {
	if claims == nil || claims.ExpiresAt == nil {
		return Token{}, ErrInvalidClaims
	}
	if !m.now().Before(claims.ExpiresAt.Time) {
		return Token{}, ErrTokenExpired
	}
	return m.Issue(ClaimsInput{
		UID:               claims.UID,
		CharacterIdentity: claims.CharacterIdentity,
		Alias:             claims.Alias,
		AccessType:        claims.AccessType,
	})
}

// Parse verifies the signature and expiry of tokenStr and returns its claims.
func (m *Manager) Parse(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(m.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := m.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return key, nil
		}

		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	switch claims.AccessType {
	case AccessSecretKey:
		if claims.UID == "" || claims.CharacterIdentity == "" {
			return nil, jwt.ErrTokenInvalidClaims
		}
	case AccessLocalContent, AccessInternal:
		if claims.CharacterIdentity == "" {
			return nil, jwt.ErrTokenInvalidClaims
		}
	default:
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ParseInternal verifies tokenStr and requires it to be a shard-to-shard token.
func (m *Manager) ParseInternal(tokenStr string) (*SessionClaims, error) {
	claims, err := m.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.AccessType != AccessInternal {
		return nil, ErrWrongAccessType
	}
	return claims, nil
}
