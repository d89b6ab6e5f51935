package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sparkalerts/nwws-ingest/internal/builder"
	"github.com/sparkalerts/nwws-ingest/internal/config"
	"github.com/sparkalerts/nwws-ingest/internal/geo"
	"github.com/sparkalerts/nwws-ingest/internal/httpapi"
	"github.com/sparkalerts/nwws-ingest/internal/nwws"
	"github.com/sparkalerts/nwws-ingest/internal/store"
	"github.com/sparkalerts/nwws-ingest/internal/zones"
)

const (
	defaultConfigPath   = "config.json"
	defaultStorePath    = "alerts.json"
	defaultCountiesPath = "fips_county_geometry.json"
	sweepInterval       = 60 * time.Second
)

func main() {
	_ = godotenv.Load()

	if isatty.IsTerminal(os.Stdout.Fd()) {
		consoleWriter := zerolog.NewConsoleWriter()
		consoleWriter.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	// Set log level from environment variable, default to Info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	configPath := envOr("CONFIG_PATH", defaultConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}
	if err := cfg.ValidateCredentials(); err != nil {
		log.Fatal().Err(err).Msg("Missing NWWS_USERNAME or NWWS_PASSWORD")
	}

	bus := store.NewBus()
	defer bus.Close()

	st := store.Open(envOr("ALERTS_PATH", defaultStorePath), bus)
	counties := geo.LoadCountyLookup(envOr("COUNTIES_PATH", defaultCountiesPath))

	bld := builder.New(builder.Options{
		AllowedAlerts:   cfg.AllowedAlerts,
		AllowNoGeometry: cfg.AllowNoGeometry,
	}, zones.NewResolver(), counties, st)

	supervisor := nwws.NewSupervisor(nwws.Options{
		Username:             cfg.XMPPUsername,
		Password:             cfg.XMPPPassword,
		Resource:             cfg.NWWSOI.Resource,
		MaxReconnectAttempts: cfg.NWWSOI.MaxReconnectAttempts,
		InitialReconnectWait: cfg.InitialReconnectDelayDuration(),
	}, bld, st)

	server := httpapi.NewServer(cfg, st, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	log.Info().Msg("Starting NWWS-OI ingest")
	g.Go(func() error {
		return supervisor.Run(gctx)
	})

	g.Go(func() error {
		store.RunSweeper(gctx, st, sweepInterval)
		return nil
	})

	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Service failed")
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
