package configsync

import (
	"encoding/json"
	"strings"
)

// ConfigName is the configuration set name used in the primary's endpoint path.
const ConfigName = "ServerConfiguration"

// Role is fixed at process start from deployment configuration.
type Role int

const (
	// RolePrimary owns the record store and is authoritative for remote fields.
	RolePrimary Role = iota
	// RoleSecondary polls the primary for remote fields.
	RoleSecondary
)

// String returns "primary" or "secondary".
func (r Role) String() string {
	if r == RolePrimary {
		return "primary"
	}
	return "secondary"
}

// Settings is the shard's local copy of its configuration as loaded from
// file and environment.
type Settings struct {
	MainServerAddress string `koanf:"main_server_address"`
	ShardName         string `koanf:"shard_name"`

	FailedAuthForTempBan     int      `koanf:"failed_auth_for_temp_ban"`
	TempBanDurationInMinutes int      `koanf:"temp_ban_duration_in_minutes"`
	WhitelistedIPs           []string `koanf:"whitelisted_ips"`

	PurgeUnusedAccounts             bool `koanf:"purge_unused_accounts"`
	PurgeUnusedAccountsPeriodInDays int  `koanf:"purge_unused_accounts_period_in_days"`
	UploadCounterWindowInHours      int  `koanf:"upload_counter_window_in_hours"`

	ServerMessage string `koanf:"server_message"`
}

// DefaultSettings returns the compiled defaults for every field.
func DefaultSettings() Settings {
	return Settings{
		FailedAuthForTempBan:            FailedAuthForTempBan.def,
		TempBanDurationInMinutes:        TempBanDurationInMinutes.def,
		WhitelistedIPs:                  WhitelistedIPs.def,
		PurgeUnusedAccounts:             PurgeUnusedAccounts.def,
		PurgeUnusedAccountsPeriodInDays: PurgeUnusedAccountsPeriodInDays.def,
		UploadCounterWindowInHours:      UploadCounterWindowInHours.def,
		ServerMessage:                   ServerMessage.def,
	}
}

// Role derives the shard role from the presence of a main server address.
func (s Settings) Role() Role {
	if strings.TrimSpace(s.MainServerAddress) != "" {
		return RoleSecondary
	}
	return RolePrimary
}

// Field is one typed configuration entry.
type Field[T any] struct {
	name   string
	remote bool
	def    T
	local  func(*Settings) T
}

// Name returns the wire key of the field.
func (f Field[T]) Name() string { return f.name }

// Remote reports whether the primary is authoritative for the field.
func (f Field[T]) Remote() bool { return f.remote }

// Default returns the compiled default.
func (f Field[T]) Default() T { return f.def }

func (f Field[T]) localValue(s *Settings) any { return f.local(s) }

func (f Field[T]) defaultValue() any { return f.def }

func (f Field[T]) decode(data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type fieldDef interface {
	Name() string
	Remote() bool
	localValue(*Settings) any
	defaultValue() any
	decode([]byte) (any, error)
}

var (
	MainServerAddress = Field[string]{name: "main_server_address", local: func(s *Settings) string { return s.MainServerAddress }}
	ShardName         = Field[string]{name: "shard_name", local: func(s *Settings) string { return s.ShardName }}

	FailedAuthForTempBan = Field[int]{name: "failed_auth_for_temp_ban", remote: true, def: 5,
		local: func(s *Settings) int { return s.FailedAuthForTempBan }}
	TempBanDurationInMinutes = Field[int]{name: "temp_ban_duration_in_minutes", remote: true, def: 5,
		local: func(s *Settings) int { return s.TempBanDurationInMinutes }}
	WhitelistedIPs = Field[[]string]{name: "whitelisted_ips", remote: true, def: nil,
		local: func(s *Settings) []string { return s.WhitelistedIPs }}

	PurgeUnusedAccounts = Field[bool]{name: "purge_unused_accounts", remote: true, def: false,
		local: func(s *Settings) bool { return s.PurgeUnusedAccounts }}
	PurgeUnusedAccountsPeriodInDays = Field[int]{name: "purge_unused_accounts_period_in_days", remote: true, def: 14,
		local: func(s *Settings) int { return s.PurgeUnusedAccountsPeriodInDays }}
	UploadCounterWindowInHours = Field[int]{name: "upload_counter_window_in_hours", remote: true, def: 24,
		local: func(s *Settings) int { return s.UploadCounterWindowInHours }}

	ServerMessage = Field[string]{name: "server_message", remote: true, def: "",
		local: func(s *Settings) string { return s.ServerMessage }}
)

var fields = []fieldDef{
	MainServerAddress,
	ShardName,
	FailedAuthForTempBan,
	TempBanDurationInMinutes,
	WhitelistedIPs,
	PurgeUnusedAccounts,
	PurgeUnusedAccountsPeriodInDays,
	UploadCounterWindowInHours,
	ServerMessage,
}

var schema = buildSchema(fields)

func buildSchema(fields []fieldDef) map[string]fieldDef {
	out := make(map[string]fieldDef, len(fields))
	for _, f := range fields {
		out[f.Name()] = f
	}
	return out
}

// RemoteFields lists the names of every remote-marked field in declaration order.
func RemoteFields() []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Remote() {
			out = append(out, f.Name())
		}
	}
	return out
}
