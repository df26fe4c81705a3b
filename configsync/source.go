package configsync

import (
	"errors"
	"time"
)

// ErrUnknownKey is returned for keys that are not part of the schema.
var ErrUnknownKey = errors.New("unknown configuration key")

// Source serves configuration values on one shard.
type Source interface {
	// IsMain reports whether this shard is the primary.
	IsMain() bool
	// Lookup returns the current value for name. ok is false when the key is
	// unknown or, on a secondary, when a remote field has not been fetched yet.
	Lookup(name string) (value any, ok bool)
}

// GetValue returns the value of f from s, falling back to the compiled
// default when s has nothing for it.
func GetValue[T any](s Source, f Field[T]) T {
	return GetValueOrDefault(s, f, f.def)
}

// GetValueOrDefault returns the value of f from s, or def when s has nothing
// for it.
func GetValueOrDefault[T any](s Source, f Field[T], def T) T {
	if s == nil {
		return def
	}
	v, ok := s.Lookup(f.name)
	if !ok {
		return def
	}
	typed, ok := v.(T)
	if !ok {
		return def
	}
	return typed
}

// Minutes reads an integer field holding minutes as a duration.
func Minutes(s Source, f Field[int]) time.Duration {
	return time.Duration(GetValue(s, f)) * time.Minute
}

// Hours reads an integer field holding hours as a duration.
func Hours(s Source, f Field[int]) time.Duration {
	return time.Duration(GetValue(s, f)) * time.Hour
}

// Days reads an integer field holding days as a duration.
func Days(s Source, f Field[int]) time.Duration {
	return time.Duration(GetValue(s, f)) * 24 * time.Hour
}

// Primary serves authoritative values straight from local settings.
type Primary struct {
	settings Settings
}

// NewPrimary creates a Primary over settings.
func NewPrimary(settings Settings) *Primary {
	return &Primary{settings: settings}
}

// IsMain always reports true.
func (p *Primary) IsMain() bool { return true }

// Lookup implements Source.
func (p *Primary) Lookup(name string) (any, bool) {
	f, ok := schema[name]
	if !ok {
		return nil, false
	}
	return f.localValue(&p.settings), true
}

// RemoteValue returns the value of a remote-marked field. Non-remote and
// unknown keys return ErrUnknownKey so they are never exposed to other shards.
func (p *Primary) RemoteValue(name string) (any, error) {
	f, ok := schema[name]
	if !ok || !f.Remote() {
		return nil, ErrUnknownKey
	}
	return f.localValue(&p.settings), nil
}
