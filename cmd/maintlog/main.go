package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maintlog/maintlog/cmd/maintlog/commands"
	"github.com/maintlog/maintlog/pkg/config"
	"github.com/maintlog/maintlog/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// Cancelling stops running exports before the next report and ends watch.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		stop()
		commands.PrintError(err)
		os.Exit(1)
	}
}

// setupLogging configures the global zerolog logger used before the
// configuration is read. The level follows MAINTLOG_TELEMETRY_LOG_LEVEL,
// then LOG_LEVEL.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level := os.Getenv(config.EnvPrefix + "_TELEMETRY_LOG_LEVEL")
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	zerolog.SetGlobalLevel(telemetry.ParseLogLevel(level))
}
