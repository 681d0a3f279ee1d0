package main

import (
	"flag"
	"fmt"
	"math"
	"path/filepath"

	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/loadgen"
	"github.com/danmuck/ibcsim/internal/records"
)

type options struct {
	ConfigPath   string
	Run          loadgen.Config
	OutDir       string
	Local        int
	KafkaBrokers []string
	KafkaTopic   string
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("loadctl", flag.ContinueOnError)
	var opts options
	var brokers string
	fs.StringVar(&opts.ConfigPath, "config", config.DefaultPath(getenv), "registry TOML path")
	fs.DurationVar(&opts.Run.Duration, "duration", loadgen.DefaultDuration, "run duration")
	fs.Float64Var(&opts.Run.Rate, "rate", loadgen.DefaultRate, "target transfers per second")
	fs.IntVar(&opts.Run.Workers, "workers", loadgen.DefaultWorkers, "maximum concurrent sends")
	fs.Int64Var(&opts.Run.Seed, "seed", 0, "random seed; 0 seeds from the clock")
	fs.Int64Var(&opts.Run.MinAmount, "min-amount", loadgen.DefaultMinAmount, "smallest transfer amount")
	fs.Int64Var(&opts.Run.MaxAmount, "max-amount", loadgen.DefaultMaxAmount, "largest transfer amount")
	fs.StringVar(&opts.OutDir, "out", ".", "directory for issuance, detailed and error logs")
	fs.IntVar(&opts.Local, "local", 0, "run against an in-process loopback cluster of N zones instead of -config")
	fs.StringVar(&brokers, "kafka-brokers", "", "comma-separated kafka brokers for record export")
	fs.StringVar(&opts.KafkaTopic, "kafka-topic", records.DefaultKafkaTopic, "kafka topic for record export")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.KafkaBrokers = records.ParseBrokers(brokers)
	if opts.Run.Duration <= 0 {
		return options{}, fmt.Errorf("duration must be positive: %s", opts.Run.Duration)
	}
	if opts.Run.Rate <= 0 || math.IsNaN(opts.Run.Rate) || math.IsInf(opts.Run.Rate, 0) {
		return options{}, fmt.Errorf("rate must be positive and finite: %v", opts.Run.Rate)
	}
	if opts.Local == 1 || opts.Local < 0 {
		return options{}, fmt.Errorf("local cluster needs at least two zones: %d", opts.Local)
	}
	return opts, nil
}

func (o options) issuancePath() string {
	return filepath.Join(o.OutDir, loadgen.DefaultIssuancePath)
}

func (o options) detailedPath() string {
	return filepath.Join(o.OutDir, loadgen.DefaultDetailedLogPath)
}

func (o options) errorsPath() string {
	return filepath.Join(o.OutDir, loadgen.DefaultErrorLogPath)
}

// writeReports persists the summary files next to the issuance log.
func writeReports(o options, sum loadgen.Summary) error {
	if err := sum.WriteDetailed(o.detailedPath()); err != nil {
		return err
	}
	return sum.WriteErrors(o.errorsPath())
}
