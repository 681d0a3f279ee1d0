package hub

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

type ServiceConfig struct {
	ListenAddr string
	AdminAddr  string
	AdminToken string
	Heartbeat  time.Duration
}

type Service struct {
	hub *Hub
	cfg ServiceConfig

	listener *transport.Listener
}

func NewService(h *Hub, cfg ServiceConfig) *Service {
	return &Service{hub: h, cfg: cfg}
}

func (s *Service) WithListener(ln *transport.Listener) *Service {
	s.listener = ln
	return s
}

func (s *Service) Hub() *Hub {
	return s.hub
}

func (s *Service) Bind() error {
	if s.listener != nil {
		return nil
	}
	ln, err := transport.Listen(s.hub.NodeID()+".relay", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	log.Info().Str("hub", s.hub.NodeID()).Str("addr", s.listener.Addr()).Msg("hub node initialized")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.listener.Serve(ctx, func(ctx context.Context, remote string, payload []byte) {
			log.Debug().Str("hub", s.hub.NodeID()).Str("remote", remote).Str("packet", string(payload)).Msg("received relay message")
			_ = s.hub.HandlePacket(ctx, payload)
		})
	})
	g.Go(func() error {
		return node.Heartbeat(ctx, s.cfg.Heartbeat, func() {
			st := s.hub.Snapshot()
			log.Info().
				Str("hub", st.Name).
				Uint64("processed", st.Processed).
				Uint64("forwarded", st.Forwarded).
				Str("ledger", formatLedger(st.Ledger)).
				Msg("hub running")
		})
	})
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		srv := admin.New(s.hub, addr, nil).WithToken(s.cfg.AdminToken)
		g.Go(func() error { return srv.Serve(ctx) })
	}
	return g.Wait()
}
