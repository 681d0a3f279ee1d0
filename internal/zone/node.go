package zone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ibcsim/internal/node"
	"github.com/danmuck/ibcsim/internal/observability"
	"github.com/danmuck/ibcsim/internal/protocol"
	"github.com/danmuck/ibcsim/internal/records"
	"github.com/danmuck/ibcsim/internal/transport"
	"github.com/rs/zerolog/log"
)

// DefaultInitialBalance is the balance every zone node starts with.
const DefaultInitialBalance int64 = 100000

const role = "zone"

var (
	ErrInsufficientBalance = errors.New("zone: insufficient balance")
	ErrInvalidNode         = errors.New("zone: invalid node config")
	ErrBalanceOverflow     = errors.New("zone: balance overflow")
)

// Config configures one zone node's identity and outbound target.
type Config struct {
	ZoneID         string
	Name           string
	InitialBalance int64
	// RelayerAddr is the relayer's zone-side listener.
	RelayerAddr string
}

// Status is a point-in-time view of the node's counters.
type Status struct {
	Zone       string `json:"zone"`
	Name       string `json:"name"`
	Balance    int64  `json:"balance"`
	Sent       uint64 `json:"sent"`
	SendFailed uint64 `json:"send_failed"`
	Credited   uint64 `json:"credited"`
	Dropped    uint64 `json:"dropped"`
}

type Node struct {
	zoneID      string
	name        string
	relayerAddr string
	sender      transport.Sender
	completions records.Sink
	now         func() time.Time

	mu      sync.Mutex
	balance int64

	sent       atomic.Uint64
	sendFailed atomic.Uint64
	credited   atomic.Uint64
	dropped    atomic.Uint64
}

var _ node.Node = (*Node)(nil)

// NewNode builds a zone node. A nil sender defaults to a plain transport.Dialer and a nil sink
// discards completion records.
func NewNode(cfg Config, sender transport.Sender, completions records.Sink) (*Node, error) {
	zoneID := strings.TrimSpace(cfg.ZoneID)
	if zoneID == "" {
		return nil, fmt.Errorf("%w: missing zone id", ErrInvalidNode)
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = zoneID + "_v1"
	}
	if strings.TrimSpace(cfg.RelayerAddr) == "" {
		return nil, fmt.Errorf("%w: missing relayer address for zone %s", ErrInvalidNode, zoneID)
	}
	if sender == nil {
		sender = transport.Dialer{}
	}
	if completions == nil {
		completions = records.Discard{}
	}
	n := &Node{
		zoneID:      zoneID,
		name:        name,
		relayerAddr: strings.TrimSpace(cfg.RelayerAddr),
		sender:      sender,
		completions: completions,
		now:         time.Now,
		balance:     cfg.InitialBalance,
	}
	observability.SetZoneBalance(zoneID, cfg.InitialBalance)
	return n, nil
}

func (n *Node) NodeID() string {
	return n.name
}

func (n *Node) Kind() string {
	return role
}

func (n *Node) ZoneID() string {
	return n.zoneID
}

func (n *Node) Balance() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balance
}

func (n *Node) Status() any {
	return n.Snapshot()
}

func (n *Node) Snapshot() Status {
	return Status{
		Zone:       n.zoneID,
		Name:       n.name,
		Balance:    n.Balance(),
		Sent:       n.sent.Load(),
		SendFailed: n.sendFailed.Load(),
		Credited:   n.credited.Load(),
		Dropped:    n.dropped.Load(),
	}
}

// InitiateTransfer debits amount and sends one packet to the relayer. Insufficient funds drop the
// request without touching the balance. A send failure is returned but the debit stands.
func (n *Node) InitiateTransfer(ctx context.Context, destination string, amount int64, txID uint64) error {
	pkt := protocol.Packet{
		TransactionID:   txID,
		Amount:          amount,
		SourceZone:      n.zoneID,
		SenderName:      n.name,
		DestinationZone: strings.TrimSpace(destination),
	}
	if err := pkt.Validate(); err != nil {
		n.dropped.Add(1)
		log.Warn().Str("zone", n.zoneID).Uint64("tx", txID).Err(err).Msg("transfer rejected")
		return err
	}

	n.mu.Lock()
	if n.balance < amount {
		bal := n.balance
		n.mu.Unlock()
		n.dropped.Add(1)
		observability.RecordRelay(n.name, role, "out", observability.OutcomeDropped)
		log.Warn().
			Str("zone", n.zoneID).
			Uint64("tx", txID).
			Int64("amount", amount).
			Int64("balance", bal).
			Msg("insufficient balance, transfer dropped")
		return fmt.Errorf("%w: balance %d < amount %d", ErrInsufficientBalance, bal, amount)
	}
	n.balance -= amount
	bal := n.balance
	n.mu.Unlock()
	observability.SetZoneBalance(n.zoneID, bal)

	log.Info().
		Str("zone", n.zoneID).
		Uint64("tx", txID).
		Int64("amount", amount).
		Str("destination", pkt.DestinationZone).
		Int64("balance", bal).
		Msg("initiating transfer")

	start := time.Now()
	err := n.sender.Send(ctx, n.relayerAddr, protocol.EncodePacket(pkt))
	observability.RecordForward(n.name, role, "out", time.Since(start))
	if err != nil {
		n.sendFailed.Add(1)
		observability.RecordRelay(n.name, role, "out", observability.OutcomeFailed)
		log.Error().
			Str("zone", n.zoneID).
			Uint64("tx", txID).
			Str("relayer", n.relayerAddr).
			Err(err).
			Msg("send to relayer failed")
		return err
	}
	n.sent.Add(1)
	observability.RecordRelay(n.name, role, "out", observability.OutcomeOK)
	log.Debug().Str("zone", n.zoneID).Uint64("tx", txID).Str("relayer", n.relayerAddr).Msg("packet sent")
	return nil
}

// HandlePacket credits one inbound transfer and appends its completion record. Nothing is sent back.
func (n *Node) HandlePacket(payload []byte) error {
	pkt, err := protocol.DecodePacket(payload)
	if err != nil {
		observability.RecordRelay(n.name, role, "in", observability.OutcomeDropped)
		if errors.Is(err, protocol.ErrUnknownMessage) {
			log.Warn().Str("zone", n.zoneID).Err(err).Msg("unknown relay message")
		} else {
			log.Warn().Str("zone", n.zoneID).Err(err).Msg("malformed relay message")
		}
		return err
	}
	if pkt.DestinationZone != n.zoneID {
		log.Warn().
			Str("zone", n.zoneID).
			Str("destination", pkt.DestinationZone).
			Uint64("tx", pkt.TransactionID).
			Msg("packet addressed to another zone, crediting anyway")
	}

	n.mu.Lock()
	if n.balance > math.MaxInt64-pkt.Amount {
		bal := n.balance
		n.mu.Unlock()
		n.dropped.Add(1)
		observability.RecordRelay(n.name, role, "in", observability.OutcomeDropped)
		log.Error().
			Str("zone", n.zoneID).
			Uint64("tx", pkt.TransactionID).
			Int64("amount", pkt.Amount).
			Int64("balance", bal).
			Msg("credit would overflow balance, packet dropped")
		return fmt.Errorf("%w: credit %d overflows balance %d", ErrBalanceOverflow, pkt.Amount, bal)
	}
	n.balance += pkt.Amount
	bal := n.balance
	n.mu.Unlock()
	n.credited.Add(1)
	observability.SetZoneBalance(n.zoneID, bal)
	observability.RecordRelay(n.name, role, "in", observability.OutcomeOK)

	log.Info().
		Str("zone", n.zoneID).
		Uint64("tx", pkt.TransactionID).
		Int64("amount", pkt.Amount).
		Str("sender", pkt.SenderName).
		Str("source", pkt.SourceZone).
		Int64("balance", bal).
		Msg("received transfer")

	rec := records.Record{
		Kind:            records.KindCompletion,
		TransactionID:   pkt.TransactionID,
		Timestamp:       n.now(),
		SourceZone:      pkt.SourceZone,
		DestinationZone: pkt.DestinationZone,
		Amount:          pkt.Amount,
		Recorder:        n.name,
	}
	if err := n.completions.Append(rec); err != nil {
		log.Error().Str("zone", n.zoneID).Uint64("tx", pkt.TransactionID).Err(err).Msg("completion record failed")
	}
	return nil
}

// HandleCommand dispatches one command-surface message.
func (n *Node) HandleCommand(ctx context.Context, payload []byte) error {
	cmd, err := protocol.DecodeCommand(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownCommand) {
			log.Warn().Str("zone", n.zoneID).Err(err).Msg("unknown command")
		} else {
			log.Warn().Str("zone", n.zoneID).Err(err).Msg("malformed command")
		}
		return err
	}
	switch cmd.Kind {
	case protocol.CommandTransfer:
		return n.InitiateTransfer(ctx, cmd.DestinationZone, cmd.Amount, cmd.TransactionID)
	case protocol.CommandBalance:
		log.Info().Str("zone", n.zoneID).Int64("balance", n.Balance()).Msg("current balance")
		return nil
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownCommand, cmd.Kind)
	}
}
