package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/ibcsim/internal/testutil/testlog"
)

type capture struct {
	mu   sync.Mutex
	msgs [][]byte
	got  chan struct{}
}

func newCapture() *capture {
	return &capture{got: make(chan struct{}, 16)}
}

func (c *capture) handle(_ context.Context, _ string, payload []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, payload)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *capture) wait(t *testing.T, n int) [][]byte {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func startListener(t *testing.T, handle Handler) (*Listener, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := Listen("test", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ln.Serve(ctx, handle) }()
	return ln, cancel, done
}

func TestDialerDeliversWholeMessage(t *testing.T) {
	testlog.Start(t)

	c := newCapture()
	ln, cancel, done := startListener(t, c.handle)
	defer cancel()

	payload := []byte("IBC_TRANSFER,5,z1,z1_v1,z2,42")
	if err := (Dialer{LocalAddr: "127.0.0.1"}).Send(context.Background(), ln.Addr(), payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := c.wait(t, 1)
	if !bytes.Equal(msgs[0], payload) {
		t.Fatalf("unexpected payload: %q", msgs[0])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
}

func TestListenerHandlesConnectionsIndependently(t *testing.T) {
	testlog.Start(t)

	c := newCapture()
	ln, cancel, _ := startListener(t, c.handle)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := (Dialer{}).Send(context.Background(), ln.Addr(), []byte("balance")); err != nil {
				t.Errorf("send: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := len(c.wait(t, 8)); got != 8 {
		t.Fatalf("expected 8 messages, got %d", got)
	}
}

func TestDialerConnectionFailure(t *testing.T) {
	testlog.Start(t)

	ln, err := Listen("closed", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr()
	_ = ln.Close()

	err = (Dialer{}).Send(context.Background(), addr, []byte("balance"))
	if !errors.Is(err, ErrConnectionFailure) {
		t.Fatalf("expected ErrConnectionFailure, got %v", err)
	}
	if err := (Dialer{LocalAddr: "not-an-ip"}).Send(context.Background(), addr, nil); !errors.Is(err, ErrConnectionFailure) {
		t.Fatalf("expected ErrConnectionFailure for bad local addr, got %v", err)
	}
}

func TestReadMessageLimit(t *testing.T) {
	big := bytes.Repeat([]byte("x"), MaxMessageSize+1)
	if _, err := ReadMessage(bytes.NewReader(big)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	small, err := ReadMessage(bytes.NewReader([]byte("ok")))
	if err != nil || string(small) != "ok" {
		t.Fatalf("unexpected read: %q err=%v", small, err)
	}
}
