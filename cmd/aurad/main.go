package main

import (
	"flag"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/app"
	"github.com/eb2tech/aura/internal/broker"
	"github.com/eb2tech/aura/internal/config"
)

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	resetPreferences := flag.Bool("reset-preferences", false, "Clear stored preferences on startup")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	var logs *broker.LogForwarder
	if cfg.Log.Forward {
		logs = broker.NewLogForwarder(cfg.Log.Buffer)
	}
	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors, logs)

	log.Info().Str("config", configPath).Msg("Starting aurad")

	// Create application
	application, err := app.New(cfg, app.Options{
		ResetPreferences: *resetPreferences,
		Logs:             logs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

func setupLogging(level string, useJSON bool, colors bool, forward *broker.LogForwarder) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if !useJSON {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		}
	}
	if forward != nil {
		// Forwarded lines stay JSON regardless of the console format
		out = zerolog.MultiLevelWriter(out, forward)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
