package zone

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/danmuck/ibcsim/internal/protocol"
	"github.com/danmuck/ibcsim/internal/records"
	"github.com/danmuck/ibcsim/internal/testutil/testlog"
)

type sent struct {
	addr    string
	payload string
}

type recordingSender struct {
	mu   sync.Mutex
	out  []sent
	fail error
}

func (r *recordingSender) Send(_ context.Context, addr string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.out = append(r.out, sent{addr: addr, payload: string(payload)})
	return nil
}

func (r *recordingSender) sends() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sent, len(r.out))
	copy(out, r.out)
	return out
}

func newTestNode(t *testing.T, balance int64, sender *recordingSender, sink records.Sink) *Node {
	t.Helper()
	n, err := NewNode(Config{ZoneID: "z1", Name: "z1_v1", InitialBalance: balance, RelayerAddr: "10.0.1.10:8000"}, sender, sink)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return n
}

func TestInitiateTransferDebitsAndSendsOnePacket(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	n := newTestNode(t, 100, sender, nil)

	if err := n.InitiateTransfer(context.Background(), "z2", 5, 42); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if got := n.Balance(); got != 95 {
		t.Fatalf("expected balance 95, got %d", got)
	}
	out := sender.sends()
	if len(out) != 1 {
		t.Fatalf("expected one packet, got %d", len(out))
	}
	if out[0].addr != "10.0.1.10:8000" || out[0].payload != "IBC_TRANSFER,5,z1,z1_v1,z2,42" {
		t.Fatalf("unexpected packet: %+v", out[0])
	}
}

func TestInitiateTransferInsufficientBalance(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	n := newTestNode(t, 3, sender, nil)

	err := n.InitiateTransfer(context.Background(), "z2", 5, 43)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := n.Balance(); got != 3 {
		t.Fatalf("balance should be unchanged, got %d", got)
	}
	if len(sender.sends()) != 0 {
		t.Fatalf("no packet should be sent")
	}
	if n.Snapshot().Dropped != 1 {
		t.Fatalf("expected one dropped transfer: %+v", n.Snapshot())
	}
}

func TestInitiateTransferExactBalance(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	n := newTestNode(t, 5, sender, nil)
	if err := n.InitiateTransfer(context.Background(), "z2", 5, 1); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if n.Balance() != 0 || len(sender.sends()) != 1 {
		t.Fatalf("expected balance 0 and one packet, got %d / %d", n.Balance(), len(sender.sends()))
	}
}

func TestInitiateTransferSendFailureKeepsDebit(t *testing.T) {
	testlog.Start(t)

	boom := errors.New("connection refused")
	sender := &recordingSender{fail: boom}
	n := newTestNode(t, 100, sender, nil)

	if err := n.InitiateTransfer(context.Background(), "z2", 5, 44); !errors.Is(err, boom) {
		t.Fatalf("expected send error, got %v", err)
	}
	if got := n.Balance(); got != 95 {
		t.Fatalf("debit must not be rolled back, balance=%d", got)
	}
	if n.Snapshot().SendFailed != 1 {
		t.Fatalf("expected one send failure: %+v", n.Snapshot())
	}
}

func TestHandlePacketCreditsAndRecordsOnce(t *testing.T) {
	testlog.Start(t)

	mem := &records.Memory{}
	n, err := NewNode(Config{ZoneID: "z2", Name: "z2_v1", InitialBalance: 100, RelayerAddr: "r"}, &recordingSender{}, mem)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	for _, amount := range []int64{1, 7, 10} {
		before := n.Balance()
		pkt := protocol.Packet{TransactionID: uint64(100 + amount), Amount: amount, SourceZone: "z1", SenderName: "z1_v1", DestinationZone: "z2"}
		if err := n.HandlePacket(protocol.EncodePacket(pkt)); err != nil {
			t.Fatalf("handle packet: %v", err)
		}
		if got := n.Balance(); got != before+amount {
			t.Fatalf("expected balance %d, got %d", before+amount, got)
		}
		recs := mem.ByTransaction(pkt.TransactionID)
		if len(recs) != 1 {
			t.Fatalf("expected one completion for tx %d, got %d", pkt.TransactionID, len(recs))
		}
		if recs[0].Kind != records.KindCompletion || recs[0].SourceZone != "z1" || recs[0].Amount != amount {
			t.Fatalf("unexpected completion record: %+v", recs[0])
		}
	}
}

func TestHandlePacketMalformedIsDiscarded(t *testing.T) {
	testlog.Start(t)

	mem := &records.Memory{}
	n, _ := NewNode(Config{ZoneID: "z2", RelayerAddr: "r", InitialBalance: 10}, &recordingSender{}, mem)

	if err := n.HandlePacket([]byte("IBC_TRANSFER,abc,z1,z1_v1,z2,1")); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
	if err := n.HandlePacket([]byte("PING")); !errors.Is(err, protocol.ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if n.Balance() != 10 || len(mem.Records()) != 0 {
		t.Fatalf("malformed input must not touch state: balance=%d records=%d", n.Balance(), len(mem.Records()))
	}
}

func TestHandleCommandDispatch(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	n := newTestNode(t, 50, sender, nil)
	ctx := context.Background()

	if err := n.HandleCommand(ctx, []byte("transfer z3 10 7\n")); err != nil {
		t.Fatalf("transfer command: %v", err)
	}
	if n.Balance() != 40 || len(sender.sends()) != 1 {
		t.Fatalf("transfer command not applied: balance=%d sends=%d", n.Balance(), len(sender.sends()))
	}
	if err := n.HandleCommand(ctx, []byte("balance")); err != nil {
		t.Fatalf("balance command: %v", err)
	}
	if err := n.HandleCommand(ctx, []byte("mint 1000")); !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if n.Balance() != 40 || len(sender.sends()) != 1 {
		t.Fatalf("non-transfer commands must not change state")
	}
}

func TestConcurrentDebitsAndCreditsDoNotLoseUpdates(t *testing.T) {
	testlog.Start(t)

	sender := &recordingSender{}
	n := newTestNode(t, 10000, sender, nil)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			_ = n.InitiateTransfer(context.Background(), "z2", 3, id)
		}(uint64(i))
		go func(id uint64) {
			defer wg.Done()
			pkt := protocol.Packet{TransactionID: id, Amount: 2, SourceZone: "z2", SenderName: "z2_v1", DestinationZone: "z1"}
			_ = n.HandlePacket(protocol.EncodePacket(pkt))
		}(uint64(1000 + i))
	}
	wg.Wait()

	if got, want := n.Balance(), int64(10000-200*3+200*2); got != want {
		t.Fatalf("lost update: balance=%d want=%d", got, want)
	}
}

func TestNewNodeValidation(t *testing.T) {
	if _, err := NewNode(Config{RelayerAddr: "r"}, nil, nil); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("expected ErrInvalidNode for missing zone, got %v", err)
	}
	if _, err := NewNode(Config{ZoneID: "z1"}, nil, nil); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("expected ErrInvalidNode for missing relayer, got %v", err)
	}
	n, err := NewNode(Config{ZoneID: "z1", RelayerAddr: "r"}, nil, nil)
	if err != nil || n.NodeID() != "z1_v1" {
		t.Fatalf("expected default name z1_v1, got %v err=%v", n, err)
	}
}

func TestHandlePacketRejectsOverflowingCredit(t *testing.T) {
	testlog.Start(t)

	mem := &records.Memory{}
	start := int64(math.MaxInt64 - 5)
	n, _ := NewNode(Config{ZoneID: "z2", RelayerAddr: "r", InitialBalance: start}, &recordingSender{}, mem)

	raw := protocol.EncodePacket(protocol.Packet{TransactionID: 7, Amount: 10, SourceZone: "z1", SenderName: "z1_v1", DestinationZone: "z2"})
	if err := n.HandlePacket(raw); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	if n.Balance() != start || len(mem.Records()) != 0 {
		t.Fatalf("overflowing credit must not touch state: balance=%d records=%d", n.Balance(), len(mem.Records()))
	}
	if err := n.HandlePacket([]byte("IBC_TRANSFER,9223372036854775807,z1,z1_v1,z2,8")); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected oversized amount to be malformed, got %v", err)
	}
}
