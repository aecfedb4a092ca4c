// Package main provides the entry point for meshsync-server.
//
// The server is the authoritative simulation host: it listens for the
// binary datagram protocol over UDP, optionally bridges browser peers
// over WebSocket, serves metrics and health over a separate HTTP
// listener, and checkpoints world state to Badger.
//
// Configuration comes from defaults, an optional YAML file, and
// MESHSYNC_* environment variables, in that order.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/unknownsaying/meshsync/internal/infra/confloader"
	"github.com/unknownsaying/meshsync/internal/infra/shutdown"
	"github.com/unknownsaying/meshsync/internal/infra/tlsroots"
	"github.com/unknownsaying/meshsync/internal/server"
	"github.com/unknownsaying/meshsync/internal/server/config"
	"github.com/unknownsaying/meshsync/internal/server/httpserver"
	"github.com/unknownsaying/meshsync/internal/server/localserver"
	"github.com/unknownsaying/meshsync/internal/storage"
	"github.com/unknownsaying/meshsync/internal/telemetry/logger"
	"github.com/unknownsaying/meshsync/internal/telemetry/metric"
	"github.com/unknownsaying/meshsync/internal/transport"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// udpPoll is the receive poll interval of the UDP listener.
const udpPoll = time.Millisecond

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
		fmt.Printf("meshsync-server %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	log.Info("starting meshsync-server",
		"version", version,
		"commit", commit,
		"config", *configFile)

	metrics := metric.New()

	store, err := storage.Open(storage.Config{
		Dir:           cfg.Storage.DataDir,
		SyncWrites:    cfg.Storage.SyncWrites,
		GCInterval:    cfg.Storage.GCInterval,
		EncryptionKey: cfg.Storage.EncryptionKeyBytes(),
		Cipher:        cfg.Storage.Cipher,
	}, logger.Slog(log), metrics.Registerer())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	ep, wsBridge, err := buildEndpoint(cfg)
	if err != nil {
		store.Close()
		return fmt.Errorf("open endpoint: %w", err)
	}

	srv, err := server.New(server.Options{
		Config:   cfg,
		Endpoint: ep,
		Log:      log,
		Metrics:  metrics,
		Store:    store,
	})
	if err != nil {
		ep.Close()
		store.Close()
		return fmt.Errorf("init server: %w", err)
	}

	extra := map[string]http.Handler{}
	if wsBridge != nil {
		extra["/connect"] = wsBridge
	}
	if cfg.Admin.TokenHash != "" {
		extra["/api/"] = httpserver.NewRouter(httpserver.RouterConfig{
			Directory: srv,
			Profiles:  store,
			Logger:    logger.Slog(log),
			TokenHash: cfg.Admin.TokenHash,
			AllowList: cfg.Admin.AllowList,
			RateLimit: cfg.Admin.RateLimit,
		})
	}
	obs := server.NewObservability(cfg.Server.ObservabilityAddr, srv, metrics, extra)

	if cfg.Server.TLSCertFile != "" {
		certWatcher, err := tlsroots.NewWatcher(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile,
			tlsroots.WithLogger(logger.Slog(log)))
		if err != nil {
			ep.Close()
			store.Close()
			return fmt.Errorf("load tls certificate: %w", err)
		}
		certWatcher.StartAsync()
		defer certWatcher.Stop()
		obs.EnableTLS(certWatcher.GetCertificate)
	}

	runDone := make(chan error, 1)

	// Hooks run in reverse registration order: admin surfaces close
	// first, then the server takes its final checkpoint, then storage
	// closes.
	shutdownHandler := shutdown.NewHandler(30 * time.Second)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing storage")
		return store.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down server")
		srv.Stop()
		select {
		case err := <-runDone:
			if err != nil && err != context.Canceled {
				return err
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down observability listener")
		return obs.Shutdown(ctx)
	})

	if cfg.Admin.LocalSocket != "" {
		local := localserver.New(cfg.Admin.LocalSocket, httpserver.NewRouter(httpserver.RouterConfig{
			Directory: srv,
			Profiles:  store,
			Logger:    logger.Slog(log),
		}))
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down admin socket")
			return local.Shutdown(ctx)
		})
		go func() {
			log.Info("admin socket listening", "path", cfg.Admin.LocalSocket)
			if err := local.ListenAndServe(); err != nil {
				log.Error("admin socket failed", "error", err)
			}
		}()
	}

	if *configFile != "" {
		if err := watchConfig(*configFile, log); err != nil {
			log.Warn("config watch unavailable", "error", err)
		}
	}

	go func() {
		log.Info("observability listening", "addr", cfg.Server.ObservabilityAddr)
		if err := obs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("observability listener failed", "error", err)
		}
	}()

	go func() {
		runDone <- srv.Run(context.Background())
	}()

	log.Info("server started", "addr", cfg.Server.Addr)
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// watchConfig reapplies the log level when the config file changes.
// Settings that shape running state (addresses, tick rate, limits)
// still require a restart.
func watchConfig(path string, log logger.Logger) error {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.Slog(log)))
	if err != nil {
		return err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return err
	}
	watcher.OnChange(func(changed string) {
		fresh, err := loadConfig(changed)
		if err != nil {
			log.Warn("config reload failed", "path", changed, "error", err)
			return
		}
		if fresh.Log.Level != logger.GetLevel() {
			logger.SetLevel(fresh.Log.Level)
			log.Info("log level changed", "level", fresh.Log.Level)
		}
	})
	watcher.StartAsync()
	return nil
}

func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildEndpoint opens the UDP listener and, when configured, the
// WebSocket bridge, merged into one endpoint.
func buildEndpoint(cfg *config.ServerConfig) (transport.Endpoint, *transport.WSBridge, error) {
	udp, err := transport.ListenUDP(cfg.Server.Addr, udpPoll)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Server.WebSocketAddr == "" {
		return udp, nil, nil
	}
	bridge := transport.NewWSBridge()
	return transport.Merge(udp, bridge), bridge, nil
}
