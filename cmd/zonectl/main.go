package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zonectl: %v\n", err)
		os.Exit(2)
	}
	logging.ConfigureRuntime(opts.Name)
	defer logging.Close()

	reg, err := config.LoadRegistry(opts.ConfigPath)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("path", opts.ConfigPath).
			Bool("missing", errors.Is(err, config.ErrConfigurationMissing)).
			Msg("failed to load registry")
	}
	log.Info().Str("path", opts.ConfigPath).Int("zones", len(reg.ZoneIDs())).Msg("loaded registry")

	svc, sink, err := buildService(opts, reg)
	if err != nil {
		log.Fatal().Err(err).Str("zone", opts.ZoneID).Msg("failed to build zone node")
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Str("zone", opts.ZoneID).Msg("zone node stopped")
		return
	}
	log.Info().Str("zone", opts.ZoneID).Int64("balance", svc.Node().Balance()).Msg("zone node shut down")
}
