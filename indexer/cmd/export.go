package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/config"
	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/rpc"
)

func exportCommand() *cobra.Command {
	var (
		registry string
		out      string
		limit    int
		timeout  time.Duration
		otlp     bool
	)
	c := &cobra.Command{
		Use:   "export",
		Short: "Initializes every dex once and writes the pair graph as JSON",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			if otlp {
				otelConfig := rpc.DefaultOTelConfig()
				otelConfig.ServiceVersion = Version
				otelConfig.EnableTracing = true
				otelConfig.UsePrometheus = false
				otelConfig.UseOTLPMetrics = true
				shutdown, err := rpc.NewOTelSDK(ctx, otelConfig)
				if err != nil {
					return err
				}
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						log.Error().Err(err).Msg("Failed to flush telemetry")
					}
				}()
			}

			e, closeEngine, err := loadEngine(ctx, registry)
			if err != nil {
				return err
			}
			defer closeEngine()

			if err := e.Initialize(ctx, limit); err != nil {
				return err
			}
			return e.WriteGraph(out)
		},
	}

	flags := c.Flags()
	flags.StringVar(&registry, "registry", "", "registry file or go-getter source")
	flags.StringVar(&out, "out", "graph.json", "file the graph is written to")
	flags.IntVar(&limit, "limit", 0, "pairs fetched per dex, 0 uses the dex default")
	flags.DurationVar(&timeout, "timeout", 10*time.Minute, "overall time allowed for the export")
	flags.BoolVar(&otlp, "otlp", false, "push traces and metrics of the run to an OTLP collector")
	_ = c.MarkFlagRequired("registry")
	return c
}

func validateCommand() *cobra.Command {
	var registry string
	c := &cobra.Command{
		Use:   "validate",
		Short: "Validates a registry without contacting any chain or indexer",
		RunE: func(c *cobra.Command, args []string) error {
			dir, err := os.MkdirTemp("", "dexgraph-registry-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			path, err := config.FetchRegistry(c.Context(), registry, dir)
			if err != nil {
				return err
			}
			loaded, err := config.LoadRegistry(path)
			if err != nil {
				return err
			}

			result := config.Validate(loaded)
			if !result.IsValid {
				for _, err := range result.Errors {
					log.Error().Err(err).Msg("Invalid registry")
				}
				return fmt.Errorf("registry %s has %d errors", registry, len(result.Errors))
			}

			log.Info().
				Int("chains", len(loaded.Chains)).
				Int("dexes", len(loaded.Dexes)).
				Int("bridges", len(loaded.Bridges)).
				Msg("Registry is valid")
			return nil
		},
	}
	c.Flags().StringVar(&registry, "registry", "", "registry file or go-getter source")
	_ = c.MarkFlagRequired("registry")
	return c
}
