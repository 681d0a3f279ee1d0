package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Sender delivers one message to addr over a fresh connection.
type Sender interface {
	Send(ctx context.Context, addr string, payload []byte) error
}

// Dialer is the production Sender: dial, write, half-close, close. No reply is read.
// LocalAddr optionally pins the source host of outbound connections.
type Dialer struct {
	LocalAddr string
}

var _ Sender = Dialer{}

func (d Dialer) Send(ctx context.Context, addr string, payload []byte) error {
	var nd net.Dialer
	if host := strings.TrimSpace(d.LocalAddr); host != "" {
		ip := net.ParseIP(host)
		if ip == nil {
			return fmt.Errorf("%w: invalid local address %q", ErrConnectionFailure, host)
		}
		nd.LocalAddr = &net.TCPAddr{IP: ip}
	}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionFailure, addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrConnectionFailure, addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	return nil
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, addr string, payload []byte) error

func (f SenderFunc) Send(ctx context.Context, addr string, payload []byte) error {
	return f(ctx, addr, payload)
}
