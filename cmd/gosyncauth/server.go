package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goSyncAuth "github.com/MrEthical07/goSyncAuth"
	"github.com/MrEthical07/goSyncAuth/cleanup"
	"github.com/MrEthical07/goSyncAuth/configsync"
	"github.com/MrEthical07/goSyncAuth/internal/confload"
	"github.com/MrEthical07/goSyncAuth/internal/logging"
	"github.com/MrEthical07/goSyncAuth/internal/sysinfo"
	promexport "github.com/MrEthical07/goSyncAuth/metrics/export/prometheus"
	"github.com/MrEthical07/goSyncAuth/middleware"
	"github.com/MrEthical07/goSyncAuth/notify"
	"github.com/MrEthical07/goSyncAuth/realtime"
	"github.com/MrEthical07/goSyncAuth/store/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	redisPingTimeout  = 3 * time.Second
	configReadyWait   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func run(parent context.Context, configPath string, dry bool) error {
	cfg, err := confload.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	role := cfg.Sync.Role()
	log = log.With("shard", cfg.Sync.ShardName, "role", role.String())
	log.Info("starting gosyncauth", "version", version, "commit", commit, "config", configPath)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewDBPool(ctx, postgres.PoolConfig{
		DatabaseURL: cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	records, err := postgres.NewPostgresStore(pool, postgres.WithSchema(cfg.Database.Schema))
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	if dry {
		log.Info("dry run complete")
		return nil
	}

	// The secondary's token source closes over engine, which is built below
	// and assigned before the secondary starts polling.
	var (
		engine    *goSyncAuth.Engine
		source    configsync.Source
		primary   *configsync.Primary
		secondary *configsync.Secondary
	)
	if role == configsync.RoleSecondary {
		secondary, err = configsync.NewSecondary(cfg.Sync, func() (string, error) {
			return engine.IssueInternalToken(cfg.Sync.ShardName)
		}, configsync.WithLogger(log))
		if err != nil {
			return fmt.Errorf("init config sync: %w", err)
		}
		source = secondary
	} else {
		primary = configsync.NewPrimary(cfg.Sync)
		source = primary
	}

	engineCfg := goSyncAuth.DefaultConfig()
	engineCfg.Token.Secret = []byte(cfg.Token.Secret)
	engineCfg.Token.Issuer = cfg.Token.Issuer
	engineCfg.Token.KeyID = cfg.Token.KeyID
	engineCfg.Token.Lifetime = cfg.Token.Lifetime
	engineCfg.Audit.Enabled = true

	engine, err = goSyncAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithCredentialStore(records).
		WithConfigSource(source).
		WithLogger(log).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	reg := prometheus.NewRegistry()
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gosyncauth",
		Name:      "connections",
		Help:      "Real-time connections held by this shard.",
	})
	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gosyncauth",
		Name:      "online_players",
		Help:      "Live sessions across every shard.",
	})
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		connections,
		online,
		promexport.NewPrometheusExporter(engine),
	)

	hub, err := realtime.NewHub(engine.Tokens(), engine.Guard(), engine.Presence(),
		realtime.WithLogger(log),
		realtime.WithConnectionGauge(connections),
		realtime.WithOriginPatterns(cfg.HTTP.AllowedOrigins...),
	)
	if err != nil {
		return fmt.Errorf("init realtime hub: %w", err)
	}

	bridge, err := notify.New(records, records, hub, notify.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init notify bridge: %w", err)
	}

	info, err := sysinfo.New(engine.Guard(), hub,
		sysinfo.WithInterval(cfg.SysInfo.Interval),
		sysinfo.WithShardName(cfg.Sync.ShardName),
		sysinfo.WithGauge(online),
		sysinfo.WithServerMessage(func() string {
			return configsync.GetValue(source, configsync.ServerMessage)
		}),
		sysinfo.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("init sysinfo: %w", err)
	}

	rt := routes{
		auth:     engine,
		ws:       hub,
		internal: middleware.RequireInternal(engine),
		metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		log:      log,
	}
	if primary != nil {
		rt.config = primary.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           rt.router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error("background worker stopped", "worker", name, "error", err)
			}
		}()
	}

	if secondary != nil {
		spawn("configsync", secondary.Run)
		if !secondary.WaitReady(ctx, configReadyWait) {
			log.Warn("remote configuration not fetched yet, serving local values")
		}
	} else {
		sched, err := cleanup.New(records, cleanupPolicy(source), cleanup.WithLogger(log))
		if err != nil {
			return fmt.Errorf("init cleanup: %w", err)
		}
		spawn("cleanup", sched.Run)
	}
	spawn("notify", bridge.Run)
	spawn("sysinfo", info.Run)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTP.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case runErr = <-serveErr:
		log.Error("http server failed", "error", runErr)
	}
	stop()

	shutdown(log, srv, hub, cfg.HTTP.ShutdownTimeout)
	wg.Wait()

	log.Info("gosyncauth stopped")
	return runErr
}

func shutdown(log *slog.Logger, srv *http.Server, hub *realtime.Hub, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Hijacked websocket handlers are not waited on by srv.Shutdown; the hub
	// drains them so their claims are released while Redis is still open.
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	n, err := hub.Shutdown(ctx, "server shutting down")
	if err != nil {
		log.Error("real-time drain incomplete", "connections", n, "error", err)
		return
	}
	if n > 0 {
		log.Info("closed real-time connections", "count", n)
	}
}

func cleanupPolicy(src configsync.Source) cleanup.PolicyFunc {
	return func() cleanup.Policy {
		return cleanup.Policy{
			UploadWindow:        configsync.Hours(src, configsync.UploadCounterWindowInHours),
			PurgeUnusedAccounts: configsync.GetValue(src, configsync.PurgeUnusedAccounts),
			PurgeInactiveAfter:  configsync.Days(src, configsync.PurgeUnusedAccountsPeriodInDays),
		}
	}
}
