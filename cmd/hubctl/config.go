package main

import (
	"flag"
	"strings"
	"time"

	"github.com/danmuck/ibcsim/internal/admin"
	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/hub"
	"github.com/danmuck/ibcsim/internal/node"
)

type options struct {
	ConfigPath string
	Name       string
	ListenAddr string
	AdminAddr  string
	AdminToken string
	Heartbeat  time.Duration
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("hubctl", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.ConfigPath, "config", config.DefaultPath(getenv), "registry TOML path")
	fs.StringVar(&opts.Name, "name", "hv1", "hub node name")
	fs.StringVar(&opts.ListenAddr, "listen", "", "relay listen address; defaults to the registry hub address")
	fs.StringVar(&opts.AdminAddr, "admin", "", "admin HTTP listen address; empty disables")
	fs.StringVar(&opts.AdminToken, "admin-token", getenv(admin.EnvToken), "bearer token required by /status; empty leaves it open")
	fs.DurationVar(&opts.Heartbeat, "heartbeat", node.DefaultHeartbeat, "ledger log interval; 0 disables")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.Name = strings.TrimSpace(opts.Name)
	opts.ListenAddr = strings.TrimSpace(opts.ListenAddr)
	return opts, nil
}

func buildService(o options, reg config.Lookup) (*hub.Service, error) {
	h, err := hub.New(o.Name, reg, nil)
	if err != nil {
		return nil, err
	}
	listen := o.ListenAddr
	if listen == "" {
		listen = reg.HubAddr()
	}
	return hub.NewService(h, hub.ServiceConfig{
		ListenAddr: listen,
		AdminAddr:  o.AdminAddr,
		AdminToken: o.AdminToken,
		Heartbeat:  o.Heartbeat,
	}), nil
}
