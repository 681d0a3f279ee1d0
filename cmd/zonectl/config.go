package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/ibcsim/internal/admin"
	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/node"
	"github.com/danmuck/ibcsim/internal/records"
	"github.com/danmuck/ibcsim/internal/zone"
)

type options struct {
	ConfigPath   string
	ZoneID       string
	Name         string
	Balance      int64
	AdminAddr    string
	AdminToken   string
	RecordsDir   string
	Heartbeat    time.Duration
	KafkaBrokers []string
	KafkaTopic   string
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("zonectl", flag.ContinueOnError)
	var opts options
	var brokers string
	fs.StringVar(&opts.ConfigPath, "config", config.DefaultPath(getenv), "registry TOML path")
	fs.StringVar(&opts.ZoneID, "zone", "", "zone id; derived from -name when empty")
	fs.StringVar(&opts.Name, "name", "", "node name, e.g. z1_v1; defaults to <zone>_v1")
	fs.Int64Var(&opts.Balance, "balance", zone.DefaultInitialBalance, "initial token balance")
	fs.StringVar(&opts.AdminAddr, "admin", "", "admin HTTP listen address; empty disables")
	fs.StringVar(&opts.AdminToken, "admin-token", getenv(admin.EnvToken), "bearer token required by /status; empty leaves it open")
	fs.StringVar(&opts.RecordsDir, "logs", ".", "directory for the completion CSV")
	fs.DurationVar(&opts.Heartbeat, "heartbeat", node.DefaultHeartbeat, "balance log interval; 0 disables")
	fs.StringVar(&brokers, "kafka-brokers", "", "comma-separated kafka brokers for record export")
	fs.StringVar(&opts.KafkaTopic, "kafka-topic", records.DefaultKafkaTopic, "kafka topic for record export")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.KafkaBrokers = records.ParseBrokers(brokers)

	opts.ZoneID = strings.TrimSpace(opts.ZoneID)
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.ZoneID == "" {
		opts.ZoneID = config.ZoneIDFromNodeName(opts.Name)
	}
	if opts.ZoneID == "" {
		return options{}, errors.New("one of -zone or -name is required")
	}
	if opts.Name == "" {
		opts.Name = opts.ZoneID + "_v1"
	}
	if opts.Balance < 0 {
		return options{}, fmt.Errorf("balance must not be negative: %d", opts.Balance)
	}
	return opts, nil
}

func (o options) completionPath() string {
	return filepath.Join(o.RecordsDir, o.Name+"_transaction_results.csv")
}

func buildService(o options, reg config.Lookup) (*zone.Service, records.Sink, error) {
	ep, ok := reg.Zone(o.ZoneID)
	if !ok {
		return nil, nil, fmt.Errorf("zone %q not in registry", o.ZoneID)
	}
	if err := os.MkdirAll(o.RecordsDir, 0o755); err != nil {
		return nil, nil, err
	}
	sink, err := records.Open(o.completionPath(), o.KafkaBrokers, o.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	n, err := zone.NewNode(zone.Config{
		ZoneID:         o.ZoneID,
		Name:           o.Name,
		InitialBalance: o.Balance,
		RelayerAddr:    ep.RelayerZoneAddr,
	}, nil, sink)
	if err != nil {
		_ = sink.Close()
		return nil, nil, err
	}
	svc := zone.NewService(n, zone.ServiceConfig{
		CommandAddr: ep.CommandAddr,
		RelayAddr:   ep.RelayAddr,
		AdminAddr:   o.AdminAddr,
		AdminToken:  o.AdminToken,
		Heartbeat:   o.Heartbeat,
	})
	return svc, sink, nil
}
