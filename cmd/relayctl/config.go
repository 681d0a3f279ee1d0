package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/ibcsim/internal/admin"
	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/node"
	"github.com/danmuck/ibcsim/internal/relayer"
)

type options struct {
	ConfigPath string
	ZoneID     string
	Name       string
	AdminAddr  string
	AdminToken string
	Heartbeat  time.Duration
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("relayctl", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.ConfigPath, "config", config.DefaultPath(getenv), "registry TOML path")
	fs.StringVar(&opts.ZoneID, "zone", "", "zone id this relayer serves")
	fs.StringVar(&opts.Name, "name", "", "relayer name; defaults to r<zone>")
	fs.StringVar(&opts.AdminAddr, "admin", "", "admin HTTP listen address; empty disables")
	fs.StringVar(&opts.AdminToken, "admin-token", getenv(admin.EnvToken), "bearer token required by /status; empty leaves it open")
	fs.DurationVar(&opts.Heartbeat, "heartbeat", node.DefaultHeartbeat, "liveness log interval; 0 disables")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.ZoneID = strings.TrimSpace(opts.ZoneID)
	if opts.ZoneID == "" {
		return options{}, errors.New("-zone is required")
	}
	return opts, nil
}

func buildService(o options, reg config.Lookup) (*relayer.Service, error) {
	ep, ok := reg.Zone(o.ZoneID)
	if !ok {
		return nil, fmt.Errorf("zone %q not in registry", o.ZoneID)
	}
	r, err := relayer.New(relayer.Config{
		Name:       o.Name,
		ZoneID:     o.ZoneID,
		HubTarget:  reg.HubAddr(),
		ZoneTarget: ep.RelayAddr,
	}, nil)
	if err != nil {
		return nil, err
	}
	return relayer.NewService(r, relayer.ServiceConfig{
		HubSideAddr:  ep.RelayerHubAddr,
		ZoneSideAddr: ep.RelayerZoneAddr,
		AdminAddr:    o.AdminAddr,
		AdminToken:   o.AdminToken,
		Heartbeat:    o.Heartbeat,
	}), nil
}
