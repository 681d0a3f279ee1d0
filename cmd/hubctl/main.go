package main

import (
	"context"
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
		fmt.Fprintf(os.Stderr, "hubctl: %v\n", err)
		os.Exit(2)
	}
	logging.ConfigureRuntime(opts.Name)
	defer logging.Close()

	reg, err := config.LoadRegistry(opts.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", opts.ConfigPath).Msg("failed to load registry")
	}
	log.Info().Strs("zones", config.SortedZoneIDs(reg)).Msg("hub routing table loaded")

	svc, err := buildService(opts, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build hub")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Str("hub", opts.Name).Msg("hub stopped")
		return
	}
	log.Info().Str("hub", opts.Name).Msg("hub shut down")
}
