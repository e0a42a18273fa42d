package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/rpc"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func rootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:           "dexgraph",
		Short:         "Indexes DEX pairs and bridged assets across chains",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.AddCommand(
		serveCommand(),
		exportCommand(),
		validateCommand(),
		versionCommand(),
	)
	return c
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the version",
		Run: func(c *cobra.Command, args []string) {
			c.Println(Version)
		},
	}
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("dexgraph failed")
	}
}
