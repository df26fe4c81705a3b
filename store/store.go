// Package store defines the record-store contracts the authentication core
// borrows from: credentials, bans, account-claim rows and their change feed.
//
// Implementations live in sub-packages; see store/postgres.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("record store unavailable")

// Credential is a secret-key row joined with its ownership lineage.
type Credential struct {
	HashedKey string
	UID       string
	// PrimaryUID is empty for an account's original credential and set to the
	// root of the lineage for secondary credentials.
	PrimaryUID    string
	Alias         string
	Banned        bool
	PrimaryBanned bool
	// ExternalID is the external identity linked to the lineage, if any.
	ExternalID string
}

// EffectivePrimaryUID returns the UID every credential of the lineage
// resolves to.
func (c Credential) EffectivePrimaryUID() string {
	if c.PrimaryUID != "" {
		return c.PrimaryUID
	}
	return c.UID
}

// IsBanned combines the credential's own ban flag with its primary's.
func (c Credential) IsBanned() bool {
	return c.Banned || c.PrimaryBanned
}

// CredentialStore is what the authenticator needs from the record store.
type CredentialStore interface {
	CredentialByHashedKey(ctx context.Context, hashedKey string) (Credential, error)
	IsIdentityBanned(ctx context.Context, characterIdentity string) (bool, error)
	BanIdentity(ctx context.Context, characterIdentity, reason string) error
	MarkCredentialBanned(ctx context.Context, hashedKey string) error
	BanRegistration(ctx context.Context, externalID string) error
	RecordLogin(ctx context.Context, uid string, at time.Time) error
}

// Subscription delivers raw change payloads from one feed connection.
type Subscription interface {
	Next(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// ChangeFeed opens subscriptions to the store's account-claim change events.
type ChangeFeed interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// ClaimOwnerResolver maps an account-claim link key to the UID that owns it.
type ClaimOwnerResolver interface {
	ResolveClaimOwner(ctx context.Context, linkKey string) (string, error)
}

// RecordStore is the full surface a shard's record store exposes.
type RecordStore interface {
	CredentialStore
	ClaimOwnerResolver
	ChangeFeed
}
