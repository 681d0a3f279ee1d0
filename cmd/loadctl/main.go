package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/ibcsim/internal/cluster"
	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/loadgen"
	"github.com/danmuck/ibcsim/internal/logging"
	"github.com/danmuck/ibcsim/internal/records"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadctl: %v\n", err)
		os.Exit(2)
	}
	logging.ConfigureRuntime("loadgen")
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", opts.OutDir).Msg("failed to create output dir")
	}

	var lookup config.Lookup
	var local *cluster.Cluster
	if opts.Local > 0 {
		local, err = cluster.Start(ctx, cluster.Options{Zones: opts.Local, RecordsDir: opts.OutDir})
		if err != nil {
			log.Fatal().Err(err).Int("zones", opts.Local).Msg("failed to start local cluster")
		}
		defer local.Close()
		lookup = local.Registry
	} else {
		reg, err := config.LoadRegistry(opts.ConfigPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", opts.ConfigPath).Msg("failed to load registry")
		}
		lookup = reg
	}

	issued, err := records.Open(opts.issuancePath(), opts.KafkaBrokers, opts.KafkaTopic)
	if err != nil {
		log.Fatal().Err(err).Str("path", opts.issuancePath()).Msg("failed to open issuance log")
	}
	defer issued.Close()

	gen, err := loadgen.NewGenerator(opts.Run, lookup, loadgen.WithIssuanceSink(issued))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build generator")
	}
	sum, err := gen.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("generator run failed")
		return
	}
	if err := writeReports(opts, sum); err != nil {
		log.Error().Err(err).Str("dir", opts.OutDir).Msg("failed to write run reports")
	}
	for _, line := range sum.Errors {
		log.Warn().Str("run", sum.RunID).Msg(line)
	}

	if local != nil {
		settled := cluster.WaitFor(10*time.Second, func() bool {
			var n uint64
			for _, mem := range local.Completions {
				n += uint64(len(mem.Records()))
			}
			return n >= sum.Completed
		})
		log.Info().Bool("settled", settled).Interface("balances", local.Balances()).Interface("ledger", local.Hub.Ledger()).Msg("local cluster final state")
	}
}
