package zone

import (
	"context"
	"strings"
	"time"

	"github.com/danmuck/ibcsim/internal/admin"
	"github.com/danmuck/ibcsim/internal/node"
	"github.com/danmuck/ibcsim/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ServiceConfig holds the listening side of a zone node.
type ServiceConfig struct {
	CommandAddr string
	RelayAddr   string
	AdminAddr   string
	AdminToken  string
	Heartbeat   time.Duration
}

// Service runs a Node's command and relay surfaces until its context ends.
type Service struct {
	node *Node
	cfg  ServiceConfig

	command *transport.Listener
	relay   *transport.Listener
}

func NewService(n *Node, cfg ServiceConfig) *Service {
	return &Service{node: n, cfg: cfg}
}

// WithListeners hands the service already-bound listeners instead of binding cfg addresses.
func (s *Service) WithListeners(command, relay *transport.Listener) *Service {
	s.command = command
	s.relay = relay
	return s
}

func (s *Service) Node() *Node {
	return s.node
}

// Bind opens any listener not supplied through WithListeners.
func (s *Service) Bind() error {
	if s.command == nil {
		ln, err := transport.Listen(s.node.NodeID()+".command", s.cfg.CommandAddr)
		if err != nil {
			return err
		}
		s.command = ln
	}
	if s.relay == nil {
		ln, err := transport.Listen(s.node.NodeID()+".relay", s.cfg.RelayAddr)
		if err != nil {
			_ = s.command.Close()
			return err
		}
		s.relay = ln
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	log.Info().
		Str("zone", s.node.ZoneID()).
		Str("name", s.node.NodeID()).
		Int64("balance", s.node.Balance()).
		Str("command", s.command.Addr()).
		Str("relay", s.relay.Addr()).
		Msg("zone node initialized")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.command.Serve(ctx, func(ctx context.Context, remote string, payload []byte) {
			log.Debug().Str("zone", s.node.ZoneID()).Str("remote", remote).Str("command", string(payload)).Msg("received command")
			_ = s.node.HandleCommand(ctx, payload)
		})
	})
	g.Go(func() error {
		return s.relay.Serve(ctx, func(_ context.Context, remote string, payload []byte) {
			log.Debug().Str("zone", s.node.ZoneID()).Str("remote", remote).Str("packet", string(payload)).Msg("received relay message")
			_ = s.node.HandlePacket(payload)
		})
	})
	g.Go(func() error {
		return node.Heartbeat(ctx, s.cfg.Heartbeat, func() {
			log.Info().Str("zone", s.node.ZoneID()).Int64("balance", s.node.Balance()).Msg("zone running")
		})
	})
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		srv := admin.New(s.node, addr, nil).WithToken(s.cfg.AdminToken)
		g.Go(func() error { return srv.Serve(ctx) })
	}
	return g.Wait()
}
