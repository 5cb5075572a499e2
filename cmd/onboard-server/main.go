package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/yndnr/onboard-go/internal/core/service"
	"github.com/yndnr/onboard-go/internal/infra/buildinfo"
	"github.com/yndnr/onboard-go/internal/infra/confloader"
	"github.com/yndnr/onboard-go/internal/infra/shutdown"
	"github.com/yndnr/onboard-go/internal/server/config"
	"github.com/yndnr/onboard-go/internal/server/httpserver"
	"github.com/yndnr/onboard-go/internal/storage"
	"github.com/yndnr/onboard-go/internal/storage/remote"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
	"github.com/yndnr/onboard-go/internal/telemetry/metric"
	"github.com/yndnr/onboard-go/pkg/crypto/adaptive"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("onboard-server %s\n", buildinfo.String())
		return nil
	}

	// 1. Configuration and logging
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.Log.LoggerConfig()
	logCfg.Output = os.Stdout
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting onboard-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	// 2. Storage
	engine, err := initStorage(cfg, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	metrics := metric.Global()
	engine.RegisterMetrics(metrics.Registerer())
	if err := metrics.Registerer().Register(metric.NewCollector(engine.Usage)); err != nil {
		log.Warn("storage usage collector not registered", "error", err)
	}

	// 3. Optional remote mirror
	var saver *remote.RedisSaver
	if cfg.Remote.Enabled {
		saver, err = remote.NewRedisSaver(cfg.Remote.RemoteConfig(), log)
		if err != nil {
			engine.Close()
			return fmt.Errorf("init remote: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Remote.Timeout)
		if err := saver.Ping(pingCtx); err != nil {
			log.Warn("remote store unreachable at startup; saves will degrade to local only", "error", err)
		}
		cancel()
	}

	// 4. Auto-save registry
	regCfg := &service.RegistryConfig{
		SavedDisplay:  cfg.Autosave.SavedDisplay,
		IdleDispose:   cfg.Autosave.IdleDispose,
		SweepInterval: cfg.Autosave.SweepInterval,
		Logger:        log,
		Metrics:       metrics,
	}
	if saver != nil {
		regCfg.Remote = saver
	}
	registry := service.NewRegistry(engine.Store(), regCfg)

	// 5. HTTP
	httpCfg := cfg.Server.HTTP
	var limiter *httpserver.RateLimiter
	if httpCfg.RateLimit.Enabled {
		limiter = httpserver.NewRateLimiter(httpCfg.RateLimit.RPS, httpCfg.RateLimit.Burst)
	}
	streamsDone := make(chan struct{})
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Registry:           registry,
		Store:              engine.Store(),
		Ready:              engine.Ping,
		MetricsHandler:     metrics.Handler(),
		Metrics:            metrics,
		Logger:             log,
		CORSAllowedOrigins: httpCfg.CORSOrigins,
		RateLimiter:        limiter,
		ObserverPoll:       cfg.Observer.PollInterval,
		MaxBodyBytes:       httpCfg.MaxBodyBytes,
		StreamsDone:        streamsDone,
	})
	httpServer := httpserver.New(httpserver.Config{
		Addr:        httpCfg.Addr,
		TLSCertFile: httpCfg.TLSCertFile,
		TLSKeyFile:  httpCfg.TLSKeyFile,
		ReadTimeout: httpCfg.ReadTimeout,
		IdleTimeout: httpCfg.IdleTimeout,
		RateLimiter: limiter,
		Logger:      log,
	}, router)
	httpServer.RegisterOnShutdown(func() { close(streamsDone) })
	if err := httpServer.Listen(); err != nil {
		registry.Close()
		engine.Close()
		return fmt.Errorf("listen %s: %w", httpCfg.Addr, err)
	}

	// 6. Shutdown hooks run in reverse: flush, http, registry, remote, storage, watcher
	shutdownHandler := shutdown.NewHandler(httpCfg.ShutdownTimeout, log)

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("config watch disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})
	if saver != nil {
		shutdownHandler.OnShutdown("remote", func(context.Context) error {
			return saver.Close()
		})
	}
	shutdownHandler.OnShutdown("autosave registry", func(context.Context) error {
		registry.Close()
		return nil
	})
	shutdownHandler.OnShutdown("http server", httpServer.Shutdown)
	if cfg.Autosave.FlushOnShutdown {
		shutdownHandler.OnShutdown("autosave flush", func(ctx context.Context) error {
			if _, failed := registry.FlushAll(ctx); failed > 0 {
				return fmt.Errorf("%d sessions still have unsaved data", failed)
			}
			return nil
		})
	}

	// 7. Serve until signalled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := httpServer.Serve(); err != nil {
			log.Error("http server error", "error", err)
			cancel()
		}
	}()

	log.Info("server started, press Ctrl+C to stop", "addr", httpServer.Addr())
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initStorage opens the backend with optional at-rest encryption.
func initStorage(cfg *config.ServerConfig, log *slog.Logger) (*storage.Engine, error) {
	storageCfg := storage.DefaultConfig()
	storageCfg.KV = cfg.Storage.KVConfig()
	storageCfg.UsageCheckInterval = cfg.Storage.UsageCheckInterval
	storageCfg.UsageWarnRatio = cfg.Storage.UsageWarnRatio
	storageCfg.Logger = log

	if cfg.Security.EncryptionKey != "" {
		key, err := adaptive.ParseKey(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, err
		}
		cipher, err := adaptive.NewWithType(key, adaptive.CipherType(cfg.Security.Cipher))
		if err != nil {
			return nil, err
		}
		log.Info("snapshot encryption enabled", "cipher", cipher.Type())
		storageCfg.Cipher = cipher
	}

	return storage.New(storageCfg)
}

// watchConfig re-applies the log level whenever the config file changes.
// Other settings take effect on restart.
func watchConfig(path string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(path, confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	watcher.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("log level not applied", "error", err)
			return
		}
		log.Info("log level updated", "level", cfg.Log.Level)
	})
	watcher.StartAsync()
	return watcher, nil
}
