package goSyncAuth

import (
	"errors"

	"github.com/MrEthical07/goSyncAuth/session"
)

var (
	// ErrBadRequest wraps every client-input fault. Client-input faults are
	// never charged to the failed-attempt tracker.
	ErrBadRequest = errors.New("bad request")
	// ErrMissingIdentity is returned when the request carries no character identity.
	ErrMissingIdentity = errors.New("character identity is required")
	// ErrMissingSecretKey is returned when neither a hashed secret key nor a
	// local-content id is supplied.
	ErrMissingSecretKey = errors.New("hashed secret key is required")
	// ErrInvalidLocalContent is returned when a local-content id fails the shape check.
	ErrInvalidLocalContent = errors.New("invalid local content id")

	// ErrEngineNotReady is returned by methods of an Engine not built through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreRequired is returned by Build when no credential store was configured.
	ErrStoreRequired = errors.New("credential store required")
	// ErrRedisRequired is returned by Build when no Redis client was configured.
	ErrRedisRequired = errors.New("redis client required")

	// ErrTokenInvalid is returned for tokens that fail signature, expiry, or claim checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrIdentityBanned is returned by RenewToken for permanently banned identities.
	ErrIdentityBanned = errors.New("identity banned")

	// ErrGuardUnavailable is the session guard's backend failure. Callers must
	// treat it as "claim denied".
	ErrGuardUnavailable = session.ErrRedisUnavailable
)
