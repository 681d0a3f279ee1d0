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
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(2)
	}
	app := opts.Name
	if app == "" {
		app = "r" + opts.ZoneID
	}
	logging.ConfigureRuntime(app)
	defer logging.Close()

	reg, err := config.LoadRegistry(opts.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", opts.ConfigPath).Msg("failed to load registry")
	}
	svc, err := buildService(opts, reg)
	if err != nil {
		log.Fatal().Err(err).Str("zone", opts.ZoneID).Msg("failed to build relayer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Str("relayer", svc.Relayer().NodeID()).Msg("relayer stopped")
		return
	}
	log.Info().Str("relayer", svc.Relayer().NodeID()).Msg("relayer shut down")
}
