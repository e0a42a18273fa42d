package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/config"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/engine"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/rpc"
)

func serveCommand() *cobra.Command {
	var configPath string
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serves the engine over HTTP, reading DEXGRAPH_* env vars when --config is not given",
		RunE: func(c *cobra.Command, args []string) error {
			var path *string
			if configPath != "" {
				path = &configPath
			}
			return serve(c.Context(), path)
		},
	}
	c.Flags().StringVar(&configPath, "config", "", "toml config file for the server")
	return c
}

func serve(ctx context.Context, configPath *string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}

	e, closeEngine, err := loadEngine(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer closeEngine()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server, err := rpc.NewServer(ctx, buildServerConfig(cfg), e)
	if err != nil {
		return err
	}

	// the API answers while the dexes are still being indexed, /server/ready flips once done
	go func() {
		if err := e.Initialize(ctx, cfg.InitLimit); err != nil {
			log.Error().Err(err).Msg("Engine initialization failed")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// loadEngine downloads (when remote) and loads the registry, then builds the engine from it
func loadEngine(ctx context.Context, src string) (*engine.Engine, func(), error) {
	dir, err := os.MkdirTemp("", "dexgraph-registry-")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(dir)

	path, err := config.FetchRegistry(ctx, src, dir)
	if err != nil {
		return nil, nil, err
	}
	registry, err := config.LoadRegistry(path)
	if err != nil {
		return nil, nil, err
	}
	return config.BuildEngine(registry)
}

// buildServerConfig converts the loaded ServerConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.ServerConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.MaxConcurrentRequests
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     defaultString(cfg.ServiceName, "spectra-dexgraph"),
			ServiceVersion:  defaultString(cfg.ServiceVersion, Version),
			Environment:     defaultString(cfg.Environment, "development"),
			EnableTracing:   cfg.EnableTracing,
			UseOTLPTraces:   cfg.UseOTLPTraces,
			OTLPTracesURL:   cfg.OTLPTracesURL,
			EnableMetrics:   cfg.EnableMetrics,
			UsePrometheus:   cfg.UsePrometheus,
			UseOTLPMetrics:  cfg.UseOTLPMetrics,
			OTLPMetricsURL:  cfg.OTLPMetricsURL,
			InsecureOTLP:    cfg.InsecureOTLP,
			DevelopmentMode: cfg.DevelopmentMode,
		}
	}

	return serverConfig
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
