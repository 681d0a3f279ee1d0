package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	TransferTag = "IBC_TRANSFER"

	packetFields = 6
)

// Packet is one relay message representing a single transfer.
type Packet struct {
	TransactionID   uint64
	Amount          int64
	SourceZone      string
	SenderName      string
	DestinationZone string
}

// MaxAmount bounds a single transfer so credits cannot overflow a balance in one step.
const MaxAmount int64 = 1_000_000_000_000

// Validate checks the field constraints both ends of the wire rely on.
func (p Packet) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive: %d", ErrMalformedMessage, p.Amount)
	}
	if p.Amount > MaxAmount {
		return fmt.Errorf("%w: amount exceeds %d: %d", ErrMalformedMessage, MaxAmount, p.Amount)
	}
	for name, v := range map[string]string{
		"source_zone":      p.SourceZone,
		"sender":           p.SenderName,
		"destination_zone": p.DestinationZone,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: empty %s", ErrMalformedMessage, name)
		}
		if strings.ContainsAny(v, ",\n") {
			return fmt.Errorf("%w: %s contains a delimiter: %q", ErrMalformedMessage, name, v)
		}
	}
	return nil
}

func (p Packet) String() string {
	return string(EncodePacket(p))
}

// EncodePacket renders p in relay wire form. Callers validate first when the fields are untrusted.
func EncodePacket(p Packet) []byte {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(TransferTag)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(p.Amount, 10))
	b.WriteByte(',')
	b.WriteString(p.SourceZone)
	b.WriteByte(',')
	b.WriteString(p.SenderName)
	b.WriteByte(',')
	b.WriteString(p.DestinationZone)
	b.WriteByte(',')
	b.WriteString(strconv.FormatUint(p.TransactionID, 10))
	return []byte(b.String())
}

// DecodePacket parses one relay message. Payloads not tagged IBC_TRANSFER return ErrUnknownMessage;
// wrong field counts and non-numeric fields return ErrMalformedMessage.
func DecodePacket(payload []byte) (Packet, error) {
	msg := strings.TrimSpace(string(payload))
	if msg == "" {
		return Packet{}, ErrEmptyMessage
	}
	if !strings.HasPrefix(msg, TransferTag) {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownMessage, truncate(msg))
	}
	parts := strings.Split(msg, ",")
	if len(parts) != packetFields || parts[0] != TransferTag {
		return Packet{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedMessage, packetFields, len(parts))
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: amount %q", ErrMalformedMessage, parts[1])
	}
	txID, err := strconv.ParseUint(strings.TrimSpace(parts[5]), 10, 64)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: transaction id %q", ErrMalformedMessage, parts[5])
	}
	p := Packet{
		TransactionID:   txID,
		Amount:          amount,
		SourceZone:      strings.TrimSpace(parts[2]),
		SenderName:      strings.TrimSpace(parts[3]),
		DestinationZone: strings.TrimSpace(parts[4]),
	}
	if err := p.Validate(); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
