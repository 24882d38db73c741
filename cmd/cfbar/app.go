package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
	"github.com/sushaantu/CloudflareStatusBar/internal/config"
	"github.com/sushaantu/CloudflareStatusBar/internal/credentials"
	"github.com/sushaantu/CloudflareStatusBar/internal/diag"
	"github.com/sushaantu/CloudflareStatusBar/internal/notify"
	"github.com/sushaantu/CloudflareStatusBar/internal/orchestrator"
	"github.com/sushaantu/CloudflareStatusBar/internal/prefs"
	"github.com/sushaantu/CloudflareStatusBar/internal/profile"
	"github.com/sushaantu/CloudflareStatusBar/internal/secrets"
	"github.com/sushaantu/CloudflareStatusBar/internal/usage"
)

// app wires the collaborators for one invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	secretStore secrets.Store
	redisStore  *secrets.Redis // non-nil when the redis backend is active
	prefStore   prefs.Store
	profiles    *profile.Store
	resolver    *credentials.Resolver
	diagLogger  *diag.Logger
	client      *cloudflare.Client
	orch        *orchestrator.Orchestrator
}

func buildApp(ctx context.Context, configPath, logLevel string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := setupLogger(cfg)

	secretStore, redisStore, err := newSecretStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	prefStore := prefs.NewFile(cfg.PrefsPath)
	profiles := profile.NewStore(profile.StoreOptions{
		Secrets: secretStore,
		Prefs:   prefStore,
		Logger:  logger,
	})

	wranglerPaths := credentials.WranglerConfigPaths()
	if cfg.WranglerConfig != "" {
		wranglerPaths = append([]string{cfg.WranglerConfig}, wranglerPaths...)
	}
	resolver := credentials.NewResolver(credentials.ResolverOptions{
		Profiles:      profiles,
		WranglerPaths: wranglerPaths,
		Logger:        logger,
	})

	diagEnabled := cfg.Diagnostics.Enabled
	if v, ok := prefStore.Get(prefs.KeyDiagnosticsEnable); ok {
		diagEnabled = v == "true" || v == "1"
	}
	diagLogger := diag.NewLogger(diag.LoggerOptions{
		Path:       cfg.Diagnostics.Path,
		Enabled:    diagEnabled,
		MaxSizeMB:  cfg.Diagnostics.MaxSizeMB,
		MaxBackups: cfg.Diagnostics.MaxBackups,
		MaxAgeDays: cfg.Diagnostics.MaxAgeDays,
		Logger:     logger,
	})

	client := cloudflare.NewClient(cloudflare.ClientOptions{
		BaseURL:         cfg.APIBaseURL,
		Credentials:     resolver,
		Diagnostics:     diagLogger,
		Logger:          logger,
		RequestTimeout:  cfg.RequestTimeout.Std(),
		TransferTimeout: cfg.TransferTimeout.Std(),
		MaxConns:        cfg.MaxConns,
	})

	usageFetcher := usage.NewFetcher(usage.FetcherOptions{
		Client: client,
		Logger: logger,
	})

	tracker := notify.NewDeploymentTracker(notify.DeploymentTrackerOptions{
		Notifier: notify.NewLogNotifier(logger),
		Logger:   logger,
	})

	orch := orchestrator.New(orchestrator.Options{
		API:             client,
		Usage:           usageFetcher,
		Resolver:        resolver,
		Profiles:        profiles,
		Prefs:           prefStore,
		Tracker:         tracker,
		Logger:          logger,
		AutoRefreshSpec: cfg.AutoRefresh,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		secretStore: secretStore,
		redisStore:  redisStore,
		prefStore:   prefStore,
		profiles:    profiles,
		resolver:    resolver,
		diagLogger:  diagLogger,
		client:      client,
		orch:        orch,
	}, nil
}

func newSecretStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (secrets.Store, *secrets.Redis, error) {
	switch cfg.Secrets.Backend {
	case config.BackendRedis:
		store, err := secrets.NewRedis(secrets.RedisOptions{
			URL:       cfg.Secrets.RedisURL,
			KeyPrefix: cfg.Secrets.RedisKeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.Connect(connectCtx); err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendMemory:
		logger.Warn("using in-memory secret store, profiles will not persist")
		return secrets.NewMemory(), nil, nil
	default:
		return secrets.NewKeyring(cfg.Secrets.KeyringService), nil, nil
	}
}

func (a *app) Close() {
	a.orch.Close()
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			a.logger.Error("failed to close redis secret store", "error", err)
		}
	}
	_ = a.diagLogger.Close()
}

func setupLogger(cfg config.Config) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Logging.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
