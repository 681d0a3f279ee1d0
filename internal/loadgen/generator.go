package loadgen

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/observability"
	"github.com/danmuck/ibcsim/internal/protocol"
	"github.com/danmuck/ibcsim/internal/records"
	"github.com/danmuck/ibcsim/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers   = 256
	DefaultDuration  = 60 * time.Second
	DefaultRate      = 1000
	DefaultMinAmount = 1
	DefaultMaxAmount = 10
)

type Config struct {
	Duration time.Duration
	Rate     float64
	Workers  int
	// Seed drives zone and amount picks. Zero seeds from the clock.
	Seed      int64
	MinAmount int64
	MaxAmount int64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MinAmount <= 0 {
		c.MinAmount = DefaultMinAmount
	}
	if c.MaxAmount <= 0 {
		c.MaxAmount = DefaultMaxAmount
	}
	return c
}

// SenderFactory builds the Sender used for commands to one zone.
type SenderFactory func(ep config.ZoneEndpoints) transport.Sender

// SourceBoundSenders dials every zone from its configured source address.
func SourceBoundSenders(ep config.ZoneEndpoints) transport.Sender {
	return transport.Dialer{LocalAddr: ep.SourceAddr}
}

type Option func(*Generator)

func WithClock(c Clock) Option {
	return func(g *Generator) {
		if c != nil {
			g.clock = c
		}
	}
}

func WithSenderFactory(f SenderFactory) Option {
	return func(g *Generator) {
		if f != nil {
			g.newSender = f
		}
	}
}

// WithIssuanceSink persists one issuance record per attempt.
func WithIssuanceSink(s records.Sink) Option {
	return func(g *Generator) {
		if s != nil {
			g.issuances = s
		}
	}
}

type target struct {
	ep     config.ZoneEndpoints
	sender transport.Sender
}

// Generator issues transfer commands against zone nodes at a fixed rate for a fixed duration.
type Generator struct {
	cfg       Config
	runID     string
	zones     []string
	targets   map[string]target
	clock     Clock
	newSender SenderFactory
	issuances records.Sink

	// rng is only touched by the scheduling loop.
	rng *rand.Rand

	mu         sync.Mutex
	phase      Phase
	start      time.Time
	nextID     uint64
	sent       uint64
	completed  uint64
	failed     uint64
	sentPerSec map[int]uint64
	throughput map[int]uint64
	errs       []string
}

func NewGenerator(cfg Config, lookup config.Lookup, opts ...Option) (*Generator, error) {
	cfg = cfg.withDefaults()
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	}
	if cfg.Rate <= 0 || math.IsNaN(cfg.Rate) || math.IsInf(cfg.Rate, 0) {
		return nil, fmt.Errorf("%w: rate must be positive and finite: %v", ErrInvalidConfig, cfg.Rate)
	}
	if cfg.MaxAmount < cfg.MinAmount || cfg.MaxAmount > protocol.MaxAmount {
		return nil, fmt.Errorf("%w: amount range %d..%d", ErrInvalidConfig, cfg.MinAmount, cfg.MaxAmount)
	}
	if lookup == nil {
		return nil, fmt.Errorf("%w: missing registry", ErrInvalidConfig)
	}
	zones := config.SortedZoneIDs(lookup)
	if len(zones) < 2 {
		return nil, fmt.Errorf("%w: need at least two zones, have %d", ErrInvalidConfig, len(zones))
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Generator{
		cfg:        cfg,
		runID:      uuid.NewString(),
		zones:      zones,
		targets:    make(map[string]target, len(zones)),
		clock:      WallClock,
		newSender:  SourceBoundSenders,
		issuances:  records.Discard{},
		rng:        rand.New(rand.NewSource(seed)),
		phase:      PhaseNotStarted,
		sentPerSec: make(map[int]uint64),
		throughput: make(map[int]uint64),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, id := range zones {
		ep, _ := lookup.Zone(id)
		g.targets[id] = target{ep: ep, sender: g.newSender(ep)}
	}
	return g, nil
}

func (g *Generator) RunID() string {
	return g.runID
}

func (g *Generator) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

func (g *Generator) advance(to Phase) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nextPhase[g.phase] != to {
		return transitionError(g.phase, to)
	}
	g.phase = to
	return nil
}

// Run drives one issuance run and blocks until every outstanding send has returned.
// A Generator runs once; a second call fails with ErrLifecycleOrder.
//
// Cancelling ctx stops scheduling early; the run still drains and reports.
func (g *Generator) Run(ctx context.Context) (Summary, error) {
	if err := g.advance(PhaseRunning); err != nil {
		return Summary{}, err
	}
	start := g.clock.Now()
	end := start.Add(g.cfg.Duration)
	g.mu.Lock()
	g.start = start
	g.mu.Unlock()

	log.Info().
		Str("run", g.runID).
		Dur("duration", g.cfg.Duration).
		Float64("rate", g.cfg.Rate).
		Int("workers", g.cfg.Workers).
		Strs("zones", g.zones).
		Msg("simulation running")

	var workers errgroup.Group
	workers.SetLimit(g.cfg.Workers)
	pacer := NewPacer(g.clock, g.cfg.Rate, start)
	for g.clock.Now().Before(end) {
		if err := pacer.Wait(ctx); err != nil {
			log.Warn().Str("run", g.runID).Err(err).Msg("scheduling interrupted")
			break
		}
		if !g.clock.Now().Before(end) {
			break
		}
		at := g.clock.Now()
		src, dst, amount := g.pick()
		txID := g.allocateID()
		workers.Go(func() error {
			g.issue(ctx, txID, at, src, dst, amount)
			return nil
		})
	}

	if err := g.advance(PhaseDraining); err != nil {
		return Summary{}, err
	}
	log.Info().Str("run", g.runID).Msg("all transactions scheduled, waiting for completion")
	_ = workers.Wait()
	if err := g.advance(PhaseFinished); err != nil {
		return Summary{}, err
	}

	sum := g.Summary()
	log.Info().
		Str("run", sum.RunID).
		Uint64("sent", sum.Sent).
		Uint64("completed", sum.Completed).
		Uint64("failed", sum.Failed).
		Msg("simulation completed")
	return sum, nil
}

// pick chooses a source zone, a distinct destination zone and an amount.
func (g *Generator) pick() (string, string, int64) {
	n := len(g.zones)
	i := g.rng.Intn(n)
	j := g.rng.Intn(n - 1)
	if j >= i {
		j++
	}
	span := g.cfg.MaxAmount - g.cfg.MinAmount + 1
	return g.zones[i], g.zones[j], g.cfg.MinAmount + g.rng.Int63n(span)
}

// allocateID hands out the next transaction id. It runs in the scheduling loop so ids follow
// issuance order.
func (g *Generator) allocateID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return g.nextID
}

// issue sends one transfer command. at is the scheduled issuance time, taken before the send.
func (g *Generator) issue(ctx context.Context, txID uint64, at time.Time, src, dst string, amount int64) {
	tgt := g.targets[src]
	g.mu.Lock()
	g.sent++
	g.sentPerSec[g.second(at)]++
	g.mu.Unlock()

	rec := records.Record{
		Kind:            records.KindIssuance,
		TransactionID:   txID,
		Timestamp:       at,
		SourceZone:      src,
		DestinationZone: dst,
		Amount:          amount,
		Recorder:        "loadgen",
	}
	if err := g.issuances.Append(rec); err != nil {
		log.Warn().Uint64("tx", txID).Err(err).Msg("issuance record write failed")
	}

	cmd := protocol.EncodeCommand(protocol.TransferCommand(dst, amount, txID))
	if err := tgt.sender.Send(ctx, tgt.ep.CommandAddr, cmd); err != nil {
		msg := fmt.Sprintf("Error sending command to %s (Transaction ID %d): %v", src, txID, err)
		g.mu.Lock()
		g.failed++
		g.errs = append(g.errs, msg)
		g.mu.Unlock()
		observability.RecordIssuance(observability.OutcomeFailed)
		log.Error().Str("zone", src).Str("addr", tgt.ep.CommandAddr).Uint64("tx", txID).Err(err).Msg("send transfer command failed")
		return
	}

	doneAt := g.clock.Now()
	g.mu.Lock()
	g.completed++
	g.throughput[g.second(doneAt)]++
	g.mu.Unlock()
	observability.RecordIssuance(observability.OutcomeOK)
	log.Debug().Str("source", src).Str("destination", dst).Int64("amount", amount).Uint64("tx", txID).Msg("transfer command sent")
}

// second buckets t relative to the run start. Callers hold g.mu.
func (g *Generator) second(t time.Time) int {
	if t.Before(g.start) {
		return 0
	}
	return int(t.Sub(g.start) / time.Second)
}

// Summary snapshots the run counters. Histograms are complete once the run is finished.
func (g *Generator) Summary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Summary{
		RunID:               g.runID,
		Phase:               g.phase,
		Sent:                g.sent,
		Completed:           g.completed,
		Failed:              g.failed,
		SentPerSecond:       copyHistogram(g.sentPerSec),
		ThroughputPerSecond: copyHistogram(g.throughput),
		Errors:              append([]string(nil), g.errs...),
	}
}

func copyHistogram(in map[int]uint64) map[int]uint64 {
	out := make(map[int]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
