package relayer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/ibcsim/internal/node"
	"github.com/danmuck/ibcsim/internal/observability"
	"github.com/danmuck/ibcsim/internal/transport"
	"github.com/rs/zerolog/log"
)

const role = "relayer"

var ErrInvalidRelayer = errors.New("relayer: invalid config")

// Direction names which way a message crosses the relayer.
type Direction string

const (
	// ToHub carries messages received on the zone side to the hub.
	ToHub Direction = "to_hub"
	// ToZone carries messages received on the hub side to the zone validator.
	ToZone Direction = "to_zone"
)

// Config names the two forwarding targets of one relayer.
type Config struct {
	Name   string
	ZoneID string
	// HubTarget is the hub's relay listener.
	HubTarget string
	// ZoneTarget is the zone validator's relay listener.
	ZoneTarget string
}

type counters struct {
	forwarded atomic.Uint64
	failed    atomic.Uint64
}

// Status reports forward counts per direction.
type Status struct {
	Name            string `json:"name"`
	Zone            string `json:"zone"`
	ToHubForwarded  uint64 `json:"to_hub_forwarded"`
	ToHubFailed     uint64 `json:"to_hub_failed"`
	ToZoneForwarded uint64 `json:"to_zone_forwarded"`
	ToZoneFailed    uint64 `json:"to_zone_failed"`
}

// Relayer forwards opaque messages between one zone and the hub. It keeps no message state.
type Relayer struct {
	cfg    Config
	sender transport.Sender

	toHub  counters
	toZone counters
}

var _ node.Node = (*Relayer)(nil)

func New(cfg Config, sender transport.Sender) (*Relayer, error) {
	cfg.ZoneID = strings.TrimSpace(cfg.ZoneID)
	cfg.HubTarget = strings.TrimSpace(cfg.HubTarget)
	cfg.ZoneTarget = strings.TrimSpace(cfg.ZoneTarget)
	if cfg.ZoneID == "" {
		return nil, fmt.Errorf("%w: missing zone id", ErrInvalidRelayer)
	}
	if cfg.HubTarget == "" || cfg.ZoneTarget == "" {
		return nil, fmt.Errorf("%w: both targets are required", ErrInvalidRelayer)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "r" + cfg.ZoneID
	}
	if sender == nil {
		sender = transport.Dialer{}
	}
	return &Relayer{cfg: cfg, sender: sender}, nil
}

func (r *Relayer) NodeID() string {
	return r.cfg.Name
}

func (r *Relayer) Kind() string {
	return role
}

func (r *Relayer) Status() any {
	return r.Snapshot()
}

func (r *Relayer) Snapshot() Status {
	return Status{
		Name:            r.cfg.Name,
		Zone:            r.cfg.ZoneID,
		ToHubForwarded:  r.toHub.forwarded.Load(),
		ToHubFailed:     r.toHub.failed.Load(),
		ToZoneForwarded: r.toZone.forwarded.Load(),
		ToZoneFailed:    r.toZone.failed.Load(),
	}
}

// Forward sends payload unmodified to the target for dir over a new connection.
// Failures are logged and returned; the message is not retried.
func (r *Relayer) Forward(ctx context.Context, dir Direction, payload []byte) error {
	target, c, err := r.route(dir)
	if err != nil {
		return err
	}
	start := time.Now()
	err = r.sender.Send(ctx, target, payload)
	observability.RecordForward(r.cfg.Name, role, string(dir), time.Since(start))
	if err != nil {
		c.failed.Add(1)
		observability.RecordRelay(r.cfg.Name, role, string(dir), observability.OutcomeFailed)
		log.Error().
			Str("relayer", r.cfg.Name).
			Str("direction", string(dir)).
			Str("target", target).
			Err(err).
			Msg("forward failed, message dropped")
		return err
	}
	c.forwarded.Add(1)
	observability.RecordRelay(r.cfg.Name, role, string(dir), observability.OutcomeOK)
	log.Info().
		Str("relayer", r.cfg.Name).
		Str("direction", string(dir)).
		Str("target", target).
		Int("bytes", len(payload)).
		Msg("forwarded packet")
	return nil
}

func (r *Relayer) route(dir Direction) (string, *counters, error) {
	switch dir {
	case ToHub:
		return r.cfg.HubTarget, &r.toHub, nil
	case ToZone:
		return r.cfg.ZoneTarget, &r.toZone, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidRelayer, dir)
	}
}
