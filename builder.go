package goSyncAuth

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSyncAuth/configsync"
	internalaudit "github.com/MrEthical07/goSyncAuth/internal/audit"
	"github.com/MrEthical07/goSyncAuth/internal/throttle"
	"github.com/MrEthical07/goSyncAuth/jwt"
	"github.com/MrEthical07/goSyncAuth/presence"
	"github.com/MrEthical07/goSyncAuth/session"
	"github.com/MrEthical07/goSyncAuth/store"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config  Config
	redis   redis.UniversalClient
	records store.CredentialStore
	source  configsync.Source

	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store backing the single-session guard. Cluster
// and sentinel clients are accepted.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the record store used for credential and ban lookups.
func (b *Builder) WithCredentialStore(records store.CredentialStore) *Builder {
	b.records = records
	return b
}

// WithConfigSource sets where runtime thresholds (temp-ban policy,
// allow-listed IPs) are read from. Without it the compiled defaults apply.
func (b *Builder) WithConfigSource(src configsync.Source) *Builder {
	b.source = src
	return b
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit sink. When audit is enabled and no sink is
// set, events are logged through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authorize latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source used for token issuance, presence
// expiry and last-login stamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, ErrRedisRequired
	}
	if b.records == nil {
		return nil, ErrStoreRequired
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	src := b.source
	if src == nil {
		src = configsync.NewPrimary(configsync.DefaultSettings())
	}

	// -------- TOKENS --------
	jwtCfg := cfg.jwtConfig()
	jwtCfg.Now = now
	tokens, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		records:  b.records,
		source:   src,
		tokens:   tokens,
		guard:    session.NewGuard(b.redis, cfg.Session.Scope, cfg.Session.ClaimTTL),
		presence: presence.New(presence.WithTTL(cfg.Presence.TTL), presence.WithClock(now)),
		tracker:  throttle.New(throttlePolicy(src)),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger.With("component", "engine"),
		now:      now,
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = NewSlogSink(logger)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     engine.logger,
	}, sink)

	engine.initFlowDeps()

	b.built = true

	return engine, nil
}

// throttlePolicy reads the temp-ban thresholds from src on every call so
// values fetched from the primary apply without a restart.
func throttlePolicy(src configsync.Source) throttle.PolicyFunc {
	return func() throttle.Policy {
		return throttle.Policy{
			FailedAuthForTempBan: configsync.GetValue(src, configsync.FailedAuthForTempBan),
			TempBanDuration:      configsync.Minutes(src, configsync.TempBanDurationInMinutes),
			AllowList:            configsync.GetValue(src, configsync.WhitelistedIPs),
		}
	}
}
