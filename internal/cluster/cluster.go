// Package cluster runs a complete hub, relayer and zone topology inside one process on loopback
// listeners. It backs end-to-end tests and the load generator's local mode.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/hub"
	"github.com/danmuck/ibcsim/internal/records"
	"github.com/danmuck/ibcsim/internal/relayer"
	"github.com/danmuck/ibcsim/internal/transport"
	"github.com/danmuck/ibcsim/internal/zone"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const loopback = "127.0.0.1:0"

var ErrInvalidCluster = errors.New("cluster: invalid options")

type Options struct {
	Zones          int
	InitialBalance int64
	Heartbeat      time.Duration
	// RecordsDir, when set, also writes each node's completion CSV there.
	RecordsDir string
	// Offline lists zones whose relayer is never started; its addresses refuse connections.
	Offline []string
}

// Cluster is a running in-process topology.
type Cluster struct {
	Registry *config.Registry
	Hub      *hub.Hub
	Zones    map[string]*zone.Node
	Relayers map[string]*relayer.Relayer
	// Completions holds every completion record per zone.
	Completions map[string]*records.Memory

	cancel    context.CancelFunc
	done      chan error
	sinks     []records.Sink
	closeOnce sync.Once
	closeErr  error
}

type zoneListeners struct {
	command, relay, hubSide, zoneSide *transport.Listener
}

// Start binds every listener, builds the registry from the bound addresses and runs all services
// until ctx ends or Close is called.
func Start(ctx context.Context, opts Options) (*Cluster, error) {
	if opts.Zones < 2 {
		return nil, fmt.Errorf("%w: need at least two zones, have %d", ErrInvalidCluster, opts.Zones)
	}
	if opts.InitialBalance == 0 {
		opts.InitialBalance = zone.DefaultInitialBalance
	}
	offline := make(map[string]bool, len(opts.Offline))
	for _, id := range opts.Offline {
		offline[id] = true
	}

	var bound []*transport.Listener
	fail := func(err error) (*Cluster, error) {
		for _, ln := range bound {
			_ = ln.Close()
		}
		return nil, err
	}
	listen := func(name string) (*transport.Listener, error) {
		ln, err := transport.Listen(name, loopback)
		if err == nil {
			bound = append(bound, ln)
		}
		return ln, err
	}

	hubLn, err := listen("hub")
	if err != nil {
		return fail(err)
	}
	ids := make([]string, 0, opts.Zones)
	lns := make(map[string]zoneListeners, opts.Zones)
	endpoints := make([]config.ZoneEndpoints, 0, opts.Zones)
	for i := 1; i <= opts.Zones; i++ {
		id := fmt.Sprintf("z%d", i)
		var zl zoneListeners
		for _, slot := range []struct {
			name string
			ln   **transport.Listener
		}{
			{id + ".command", &zl.command},
			{id + ".relay", &zl.relay},
			{"r" + id + ".hub_side", &zl.hubSide},
			{"r" + id + ".zone_side", &zl.zoneSide},
		} {
			ln, err := listen(slot.name)
			if err != nil {
				return fail(err)
			}
			*slot.ln = ln
		}
		ids = append(ids, id)
		lns[id] = zl
		endpoints = append(endpoints, config.ZoneEndpoints{
			ZoneID:          id,
			CommandAddr:     zl.command.Addr(),
			RelayAddr:       zl.relay.Addr(),
			RelayerHubAddr:  zl.hubSide.Addr(),
			RelayerZoneAddr: zl.zoneSide.Addr(),
			SourceAddr:      "127.0.0.1",
		})
	}
	reg, err := config.NewResolvedRegistry(hubLn.Addr(), endpoints)
	if err != nil {
		return fail(err)
	}

	c := &Cluster{
		Registry:    reg,
		Zones:       make(map[string]*zone.Node, len(ids)),
		Relayers:    make(map[string]*relayer.Relayer, len(ids)),
		Completions: make(map[string]*records.Memory, len(ids)),
		done:        make(chan error, 1),
	}
	var runners []func(context.Context) error

	h, err := hub.New("hv1", reg, nil)
	if err != nil {
		return fail(err)
	}
	c.Hub = h
	runners = append(runners, hub.NewService(h, hub.ServiceConfig{Heartbeat: opts.Heartbeat}).WithListener(hubLn).Run)

	for _, id := range ids {
		ep, _ := reg.Zone(id)
		zl := lns[id]
		mem := &records.Memory{}
		var sink records.Sink = mem
		name := id + "_v1"
		if opts.RecordsDir != "" {
			csv, err := records.OpenCSV(filepath.Join(opts.RecordsDir, name+"_transaction_results.csv"))
			if err != nil {
				c.closeSinks()
				return fail(err)
			}
			c.sinks = append(c.sinks, csv)
			sink = records.Multi{mem, csv}
		}
		n, err := zone.NewNode(zone.Config{
			ZoneID:         id,
			Name:           name,
			InitialBalance: opts.InitialBalance,
			RelayerAddr:    ep.RelayerZoneAddr,
		}, nil, sink)
		if err != nil {
			c.closeSinks()
			return fail(err)
		}
		c.Zones[id] = n
		c.Completions[id] = mem
		runners = append(runners, zone.NewService(n, zone.ServiceConfig{Heartbeat: opts.Heartbeat}).WithListeners(zl.command, zl.relay).Run)

		if offline[id] {
			_ = zl.hubSide.Close()
			_ = zl.zoneSide.Close()
			log.Warn().Str("zone", id).Msg("relayer offline")
			continue
		}
		r, err := relayer.New(relayer.Config{
			ZoneID:     id,
			HubTarget:  reg.HubAddr(),
			ZoneTarget: ep.RelayAddr,
		}, nil)
		if err != nil {
			c.closeSinks()
			return fail(err)
		}
		c.Relayers[id] = r
		runners = append(runners, relayer.NewService(r, relayer.ServiceConfig{Heartbeat: opts.Heartbeat}).WithListeners(zl.hubSide, zl.zoneSide).Run)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		run := run
		g.Go(func() error { return run(gctx) })
	}
	go func() { c.done <- g.Wait() }()
	log.Info().Int("zones", len(ids)).Str("hub", reg.HubAddr()).Msg("local cluster started")
	return c, nil
}

// Close stops every service, waits for in-flight handlers and closes file sinks. It is safe to
// call more than once.
func (c *Cluster) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		err := <-c.done
		c.closeErr = errors.Join(err, c.closeSinks())
	})
	return c.closeErr
}

func (c *Cluster) closeSinks() error {
	var errs []error
	for _, s := range c.sinks {
		errs = append(errs, s.Close())
	}
	c.sinks = nil
	return errors.Join(errs...)
}

// Balances returns every zone's current balance.
func (c *Cluster) Balances() map[string]int64 {
	out := make(map[string]int64, len(c.Zones))
	for id, n := range c.Zones {
		out[id] = n.Balance()
	}
	return out
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
