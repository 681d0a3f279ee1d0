package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// MaxMessageSize bounds a single message read; relay and command messages are far smaller.
const MaxMessageSize = 64 << 10

var (
	ErrConnectionFailure = errors.New("transport: connection failure")
	ErrMessageTooLarge   = errors.New("transport: message too large")
)

// Handler processes one complete message read from an accepted connection.
// The connection is already closed when Handler runs.
type Handler func(ctx context.Context, remote string, payload []byte)

// Listener accepts one-message-per-connection traffic on a TCP address.
type Listener struct {
	name string
	ln   net.Listener
	wg   sync.WaitGroup
}

// Listen binds addr. name labels log lines for this surface.
func Listen(name, addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return nil, fmt.Errorf("%s listen %s: %w", name, addr, err)
	}
	return &Listener{name: name, ln: ln}, nil
}

func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Serve runs the accept loop until ctx is cancelled, handling each connection in its own goroutine.
// It waits for in-flight handlers before returning.
func (l *Listener) Serve(ctx context.Context, handle Handler) error {
	log.Info().Str("surface", l.name).Str("addr", l.Addr()).Msg("listening")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = l.ln.Close()
	}()

	defer l.wg.Wait()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn().Str("surface", l.name).Err(err).Msg("accept timeout")
				continue
			}
			return fmt.Errorf("%s accept: %w", l.name, err)
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(ctx, conn, handle)
		}()
	}
}

// Close stops accepting. Serve returns once in-flight handlers finish.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn, handle Handler) {
	remote := conn.RemoteAddr().String()
	payload, err := ReadMessage(conn)
	_ = conn.Close()
	if err != nil {
		log.Warn().Str("surface", l.name).Str("remote", remote).Err(err).Msg("read failed")
		return
	}
	if len(payload) == 0 {
		log.Debug().Str("surface", l.name).Str("remote", remote).Msg("empty connection")
		return
	}
	handle(ctx, remote, payload)
}

// ReadMessage reads r until EOF, failing when the message exceeds MaxMessageSize.
func ReadMessage(r io.Reader) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return payload, nil
}
