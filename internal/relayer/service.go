package relayer

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

// ServiceConfig holds the relayer's two listening addresses.
type ServiceConfig struct {
	// HubSideAddr receives packets from the hub.
	HubSideAddr string
	// ZoneSideAddr receives packets from the zone validator.
	ZoneSideAddr string
	AdminAddr    string
	AdminToken   string
	Heartbeat    time.Duration
}

type Service struct {
	relayer *Relayer
	cfg     ServiceConfig

	hubSide  *transport.Listener
	zoneSide *transport.Listener
}

func NewService(r *Relayer, cfg ServiceConfig) *Service {
	return &Service{relayer: r, cfg: cfg}
}

func (s *Service) WithListeners(hubSide, zoneSide *transport.Listener) *Service {
	s.hubSide = hubSide
	s.zoneSide = zoneSide
	return s
}

func (s *Service) Relayer() *Relayer {
	return s.relayer
}

func (s *Service) Bind() error {
	if s.hubSide == nil {
		ln, err := transport.Listen(s.relayer.NodeID()+".hub_side", s.cfg.HubSideAddr)
		if err != nil {
			return err
		}
		s.hubSide = ln
	}
	if s.zoneSide == nil {
		ln, err := transport.Listen(s.relayer.NodeID()+".zone_side", s.cfg.ZoneSideAddr)
		if err != nil {
			_ = s.hubSide.Close()
			return err
		}
		s.zoneSide = ln
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	log.Info().
		Str("relayer", s.relayer.NodeID()).
		Str("hub_side", s.hubSide.Addr()).
		Str("zone_side", s.zoneSide.Addr()).
		Msg("relayer initialized")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.zoneSide.Serve(ctx, s.forwarder(ToHub))
	})
	g.Go(func() error {
		return s.hubSide.Serve(ctx, s.forwarder(ToZone))
	})
	g.Go(func() error {
		return node.Heartbeat(ctx, s.cfg.Heartbeat, func() {
			st := s.relayer.Snapshot()
			log.Info().
				Str("relayer", st.Name).
				Uint64("to_hub", st.ToHubForwarded).
				Uint64("to_zone", st.ToZoneForwarded).
				Msg("relayer running")
		})
	})
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		srv := admin.New(s.relayer, addr, nil).WithToken(s.cfg.AdminToken)
		g.Go(func() error { return srv.Serve(ctx) })
	}
	return g.Wait()
}

func (s *Service) forwarder(dir Direction) transport.Handler {
	return func(ctx context.Context, remote string, payload []byte) {
		log.Debug().
			Str("relayer", s.relayer.NodeID()).
			Str("direction", string(dir)).
			Str("remote", remote).
			Str("packet", string(payload)).
			Msg("received packet")
		_ = s.relayer.Forward(ctx, dir, payload)
	}
}
