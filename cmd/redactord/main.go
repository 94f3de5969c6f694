package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/log-redactor/internal/audit"
	"github.com/raaihank/log-redactor/internal/config"
	"github.com/raaihank/log-redactor/internal/logger"
	"github.com/raaihank/log-redactor/internal/ratelimit"
	"github.com/raaihank/log-redactor/internal/reload"
	"github.com/raaihank/log-redactor/internal/rulestore"
	"github.com/raaihank/log-redactor/internal/server"
	"github.com/raaihank/log-redactor/internal/watcher"
	"github.com/raaihank/log-redactor/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = server.Version
	commit  = "dev"
	date    = "unknown"
)

const (
	statusInterval   = 30 * time.Second
	limiterSweep     = time.Minute
	limiterIdleAfter = 10 * time.Minute
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the health endpoint at this address (e.g. localhost:8080) and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (commit: %s, built: %s)\n", server.Name, version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := newLoggerConfig(cfg)
	bootLog, err := logger.New(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer bootLog.Sync()

	// Redis is needed before the first load when it is the rule source
	var store *rulestore.Store
	if cfg.Redis.Enabled {
		store, err = rulestore.New(&rulestore.Config{
			URL:            cfg.Redis.URL,
			Key:            cfg.Redis.Key,
			Channel:        cfg.Redis.Channel,
			MaxConnections: cfg.Redis.MaxConnections,
		}, bootLog.WithComponent("rulestore").Logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var source reload.Source = reload.FileSource{Path: cfg.Rules.Path}
	if store != nil && cfg.Redis.UseAsSource {
		source = store
	}

	manager := reload.NewManager(source, bootLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The daemon must not run without rules
	if _, err := manager.Reload(ctx, reload.TriggerStartup); err != nil {
		return fmt.Errorf("cannot start without redaction rules: %w", err)
	}

	// From here on every log line passes through the live rules. The
	// redacting logger shares bootLog's outputs and level.
	log := bootLog.Redacting(manager.Engine(), cfg.Logging.RedactFields)

	ips, err := ratelimit.NewIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}

	log.Info("Starting log redactor",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("rules_source", source.Name()),
		zap.Int("port", cfg.Server.Port),
	)

	deps := server.Deps{Manager: manager, IPs: ips}

	if cfg.Audit.Enabled {
		history, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer history.Close()

		manager.Subscribe(history.Listener())
		if last, ok := manager.Last(); ok {
			if _, err := history.Record(ctx, last); err != nil {
				log.Warn("Failed to record startup reload", zap.Error(err))
			}
		}
		deps.History = history
	}

	if cfg.WebSocket.Enabled {
		hub := websocket.NewHub(&websocket.HubConfig{
			BroadcastReloads:     cfg.WebSocket.Events.BroadcastReloads,
			BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
			ClientIP:             ips.ClientIP,
		}, log.WithComponent("websocket").Logger)
		go hub.Run(ctx)
		manager.Subscribe(hub.ReloadListener())
		deps.Hub = hub
	}

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit)
		go limiter.Run(ctx, limiterSweep, limiterIdleAfter)
		deps.Limiter = limiter
	}

	if cfg.Rules.Watch {
		if _, ok := source.(reload.FileSource); ok {
			w, err := watcher.New(cfg.Rules.Path, cfg.Rules.Debounce, manager, log)
			if err != nil {
				return fmt.Errorf("failed to watch rules file: %w", err)
			}
			defer w.Close()
			go func() {
				if err := w.Run(ctx); err != nil {
					log.Error("Rules watcher stopped", zap.Error(err))
				}
			}()
		} else {
			log.Warn("rules.watch ignored: rules are loaded from Redis")
		}
	}

	if store != nil && cfg.Redis.UseAsSource {
		go subscribeRemote(ctx, store, manager, log)
	}

	srv, err := server.New(cfg, log, deps)
	if err != nil {
		return err
	}
	go srv.RunStatusBroadcast(ctx, statusInterval)

	if loader.ConfigFile() != "" {
		watchConfig(loader, log)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// SIGHUP reopens the log file, for external log rotation
	rotate := make(chan os.Signal, 1)
	signal.Notify(rotate, syscall.SIGHUP)

wait:
	for {
		select {
		case err := <-serverErrors:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			break wait
		case <-rotate:
			if err := log.Rotate(); err != nil {
				log.Warn("Failed to rotate log file", zap.Error(err))
			}
		case sig := <-shutdown:
			log.Info("Shutdown signal received", zap.String("signal", sig.String()))
			break wait
		}
	}

	// Stop background work before draining requests
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	log.Info("Server shutdown complete")
	return nil
}

// subscribeRemote reloads whenever a new rule document is published
func subscribeRemote(ctx context.Context, store *rulestore.Store, manager *reload.Manager, log *logger.Logger) {
	err := store.Subscribe(ctx, func(ctx context.Context, checksum string) {
		// our own publish and duplicate notifications are skipped
		if _, _, err := manager.ReloadIfChanged(ctx, reload.TriggerRemote, checksum); err != nil {
			log.Warn("Remote reload failed", zap.String("checksum", checksum), zap.Error(err))
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Error("Redis subscription stopped", zap.Error(err))
	}
}

// watchConfig applies log level changes from the configuration file
func watchConfig(loader *config.Loader, log *logger.Logger) {
	loader.Watch(func(next *config.Config) {
		if next.Logging.Level == log.Level() {
			return
		}
		if err := log.SetLevel(next.Logging.Level); err != nil {
			log.Warn("Failed to apply log level", zap.Error(err))
			return
		}
		log.Info("Log level changed", zap.String("level", next.Logging.Level))
	}, func(err error) {
		log.Warn("Ignoring configuration change", zap.Error(err))
	})
}

func newLoggerConfig(cfg *config.Config) logger.Config {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxAge:     cfg.Logging.File.MaxAge,
			MaxBackups: cfg.Logging.File.MaxBackups,
			Compress:   cfg.Logging.File.Compress,
		}
	}
	return loggerConfig
}

// performHealthCheck performs a health check against a running daemon
func performHealthCheck(addr string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}
