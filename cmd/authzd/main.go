package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l0p7/repoauthz/internal/authzfile"
	"github.com/l0p7/repoauthz/internal/config"
	"github.com/l0p7/repoauthz/internal/logging"
	"github.com/l0p7/repoauthz/internal/memocache"
	"github.com/l0p7/repoauthz/internal/metrics"
	"github.com/l0p7/repoauthz/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "AUTHZD", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	authzCfg, err := authzfile.LoadMerged(cfg.Server.Authz.Source, cfg.Server.Authz.GroupsSource, cfg.Server.Authz.MustExist)
	if err != nil {
		metricsRecorder.ObserveValidationFailure("load")
		logger.Error("failed to load authz source", slog.Any("error", err))
		os.Exit(1)
	}

	authz, err := authzfile.New(authzCfg)
	if err != nil {
		metricsRecorder.ObserveValidationFailure("validate")
		logger.Error("authz configuration invalid", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("authz configuration loaded", slog.String("version", authz.Version()))

	principalCache := buildPrincipalCache(logger, cfg.Server.Cache)
	if principalCache != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := principalCache.Close(shutdownCtx); err != nil {
				logger.Error("principal cache shutdown failed", slog.Any("error", err))
			}
		}()
	}
	tries := memocache.NewTrieCache(time.Duration(cfg.Server.Cache.TTLSeconds) * time.Second)

	engine, err := server.NewAuthzEngine(authz, tries, principalCache, metricsRecorder, logger)
	if err != nil {
		logger.Error("unable to construct authz engine", slog.Any("error", err))
		os.Exit(1)
	}

	var watcher *authzfile.Watcher
	if cfg.Server.Authz.Watch {
		watcher, err = authzfile.Watch(ctx, cfg.Server.Authz.Source, cfg.Server.Authz.GroupsSource, func(a *authzfile.Authz) {
			engine.SetAuthz(a)
		}, func(err error) {
			metricsRecorder.ObserveValidationFailure("reload")
			metricsRecorder.ObserveReload(false)
			logger.Error("authz reload failed", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("authz watch setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	mux := http.NewServeMux()
	if cfg.Server.Metrics.Enabled {
		mux.Handle("/metrics", metricsRecorder.Handler())
	}
	mux.Handle("/", server.NewEngineHandler(engine))

	srv, err := server.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

func buildPrincipalCache(logger *slog.Logger, cfg config.CacheConfig) memocache.PrincipalCache {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory principal cache", slog.Duration("ttl", ttl))
		return memocache.NewMemoryPrincipalCache(ttl)
	case "redis":
		redisCache, err := memocache.NewRedisPrincipalCache(memocache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: memocache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis principal cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory principal cache")
			return memocache.NewMemoryPrincipalCache(ttl)
		}
		logger.Info("using redis principal cache", slog.String("address", cfg.Redis.Address))
		return redisCache
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return memocache.NewMemoryPrincipalCache(ttl)
	}
}
