package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ibcsim/internal/config"
	"github.com/danmuck/ibcsim/internal/node"
	"github.com/danmuck/ibcsim/internal/observability"
	"github.com/danmuck/ibcsim/internal/protocol"
	"github.com/danmuck/ibcsim/internal/transport"
	"github.com/rs/zerolog/log"
)

const role = "hub"

var (
	ErrUnknownZone = errors.New("hub: no relayer for zone")
	ErrInvalidHub  = errors.New("hub: invalid config")
)

// Status reports hub counters and the advisory ledger.
type Status struct {
	Name      string           `json:"name"`
	Processed uint64           `json:"processed"`
	Forwarded uint64           `json:"forwarded"`
	Failed    uint64           `json:"failed"`
	Dropped   uint64           `json:"dropped"`
	Ledger    map[string]int64 `json:"ledger"`
}

// Hub switches packets between zone relayers.
//
// The ledger is telemetry: it is adjusted before the forward and never reconciled with zone
// balances, so a failed forward leaves it reflecting a transfer that did not complete.
type Hub struct {
	name   string
	lookup config.Lookup
	sender transport.Sender

	mu     sync.Mutex
	ledger map[string]int64

	processed atomic.Uint64
	forwarded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

var _ node.Node = (*Hub)(nil)

func New(name string, lookup config.Lookup, sender transport.Sender) (*Hub, error) {
	if lookup == nil {
		return nil, fmt.Errorf("%w: missing registry", ErrInvalidHub)
	}
	if strings.TrimSpace(name) == "" {
		name = "hv1"
	}
	if sender == nil {
		sender = transport.Dialer{}
	}
	return &Hub{
		name:   strings.TrimSpace(name),
		lookup: lookup,
		sender: sender,
		ledger: make(map[string]int64),
	}, nil
}

func (h *Hub) NodeID() string {
	return h.name
}

func (h *Hub) Kind() string {
	return role
}

func (h *Hub) Status() any {
	return h.Snapshot()
}

func (h *Hub) Snapshot() Status {
	return Status{
		Name:      h.name,
		Processed: h.processed.Load(),
		Forwarded: h.forwarded.Load(),
		Failed:    h.failed.Load(),
		Dropped:   h.dropped.Load(),
		Ledger:    h.Ledger(),
	}
}

// Ledger returns a copy of the advisory balances.
func (h *Hub) Ledger() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int64, len(h.ledger))
	for k, v := range h.ledger {
		out[k] = v
	}
	return out
}

// HandlePacket decodes one packet, adjusts the ledger and forwards the original bytes to the
// destination zone's relayer.
func (h *Hub) HandlePacket(ctx context.Context, payload []byte) error {
	pkt, err := protocol.DecodePacket(payload)
	if err != nil {
		h.dropped.Add(1)
		observability.RecordRelay(h.name, role, "in", observability.OutcomeDropped)
		if errors.Is(err, protocol.ErrUnknownMessage) {
			log.Warn().Str("hub", h.name).Err(err).Msg("unknown message type")
		} else {
			log.Warn().Str("hub", h.name).Err(err).Msg("malformed relay message")
		}
		return err
	}
	h.processed.Add(1)
	h.adjust(pkt)
	log.Info().
		Str("hub", h.name).
		Uint64("tx", pkt.TransactionID).
		Int64("amount", pkt.Amount).
		Str("source", pkt.SourceZone).
		Str("destination", pkt.DestinationZone).
		Msg("processed transfer")

	ep, ok := h.lookup.Zone(pkt.DestinationZone)
	if !ok || strings.TrimSpace(ep.RelayerHubAddr) == "" {
		h.dropped.Add(1)
		observability.RecordRelay(h.name, role, "out", observability.OutcomeDropped)
		log.Error().Str("hub", h.name).Str("zone", pkt.DestinationZone).Uint64("tx", pkt.TransactionID).Msg("no relayer found for zone")
		return fmt.Errorf("%w: %s", ErrUnknownZone, pkt.DestinationZone)
	}

	start := time.Now()
	err = h.sender.Send(ctx, ep.RelayerHubAddr, payload)
	observability.RecordForward(h.name, role, "out", time.Since(start))
	if err != nil {
		h.failed.Add(1)
		observability.RecordRelay(h.name, role, "out", observability.OutcomeFailed)
		log.Error().
			Str("hub", h.name).
			Str("zone", pkt.DestinationZone).
			Str("relayer", ep.RelayerHubAddr).
			Uint64("tx", pkt.TransactionID).
			Err(err).
			Msg("forward to relayer failed")
		return err
	}
	h.forwarded.Add(1)
	observability.RecordRelay(h.name, role, "out", observability.OutcomeOK)
	log.Debug().Str("hub", h.name).Str("zone", pkt.DestinationZone).Uint64("tx", pkt.TransactionID).Msg("forwarded packet to relayer")
	return nil
}

func (h *Hub) adjust(pkt protocol.Packet) {
	h.mu.Lock()
	h.ledger[pkt.SourceZone] -= pkt.Amount
	h.ledger[pkt.DestinationZone] += pkt.Amount
	src, dst := h.ledger[pkt.SourceZone], h.ledger[pkt.DestinationZone]
	h.mu.Unlock()

	observability.SetHubLedger(pkt.SourceZone, src)
	observability.SetHubLedger(pkt.DestinationZone, dst)
	if e := log.Debug(); e.Enabled() {
		e.Str("hub", h.name).Str("ledger", formatLedger(h.Ledger())).Msg("balances")
	}
}

func formatLedger(ledger map[string]int64) string {
	keys := make([]string, 0, len(ledger))
	for k := range ledger {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, ledger[k]))
	}
	return strings.Join(parts, " ")
}
