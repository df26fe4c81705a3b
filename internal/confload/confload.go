// Package confload loads the process configuration of a gosyncauth shard.
//
// Sources are applied in order, later ones winning: compiled defaults, an
// optional YAML file, then environment variables. Environment keys drop the
// prefix, are lowercased, and use "__" as the section separator:
//
//	GOSYNCAUTH_HTTP__ADDRESS=:9000           -> http.address
//	GOSYNCAUTH_SYNC__MAIN_SERVER_ADDRESS=... -> sync.main_server_address
package confload

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSyncAuth/configsync"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment prefix read by Load.
const DefaultEnvPrefix = "GOSYNCAUTH_"

// Validation errors returned by Load.
var (
	ErrMissingDatabaseURL = errors.New("confload: database.url is required")
	ErrMissingRedisAddrs  = errors.New("confload: redis.addrs is required")
	ErrMissingHTTPAddress = errors.New("confload: http.address is required")
	ErrMissingShardName   = errors.New("confload: sync.shard_name is required on a secondary")
)

// Config is the shard process configuration.
type Config struct {
	Log      LogConfig           `koanf:"log"`
	HTTP     HTTPConfig          `koanf:"http"`
	Database DatabaseConfig      `koanf:"database"`
	Redis    RedisConfig         `koanf:"redis"`
	Token    TokenConfig         `koanf:"token"`
	SysInfo  SysInfoConfig       `koanf:"sysinfo"`
	Sync     configsync.Settings `koanf:"sync"`
}

// LogConfig selects the slog level and handler format (json or text).
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig configures the public listener.
type HTTPConfig struct {
	Address         string        `koanf:"address"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// AllowedOrigins feeds the websocket origin check.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DatabaseConfig locates the record store and sizes its pool.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// RedisConfig locates the shared session store. Several addresses select a
// cluster client.
type RedisConfig struct {
	Addrs    []string `koanf:"addrs"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	DB       int      `koanf:"db"`
}

// TokenConfig carries the signing secret shared by every shard.
type TokenConfig struct {
	Secret   string        `koanf:"secret"`
	Issuer   string        `koanf:"issuer"`
	KeyID    string        `koanf:"key_id"`
	Lifetime time.Duration `koanf:"lifetime"`
}

// SysInfoConfig sets how often online counts are broadcast.
type SysInfoConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Default returns the compiled defaults. Database and Redis locations have
// no default.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "json"},
		HTTP:     HTTPConfig{Address: ":8080", ShutdownTimeout: 10 * time.Second},
		Database: DatabaseConfig{Schema: "public", MaxConns: 10},
		Token:    TokenConfig{Issuer: "gosyncauth", Lifetime: 6 * time.Hour},
		SysInfo:  SysInfoConfig{Interval: 30 * time.Second},
		Sync:     configsync.DefaultSettings(),
	}
}

// Loader reads configuration through koanf.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile adds a YAML file below the environment.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// NewLoader returns a Loader reading DefaultEnvPrefix and no file.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load applies every source over Default and validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	prefix := l.envPrefix
	transform := func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := l.k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if err := l.k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is NewLoader(WithConfigFile(path)).Load().
func Load(path string) (Config, error) {
	return NewLoader(WithConfigFile(path)).Load()
}

// Validate checks the fields a shard cannot start without. Token and sync
// values are validated by the engine and configsync respectively.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Address) == "" {
		return ErrMissingHTTPAddress
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return ErrMissingDatabaseURL
	}
	if len(c.Redis.Addrs) == 0 {
		return ErrMissingRedisAddrs
	}
	if c.Sync.Role() == configsync.RoleSecondary && strings.TrimSpace(c.Sync.ShardName) == "" {
		return ErrMissingShardName
	}
	return nil
}
