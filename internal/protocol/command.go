package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

type CommandKind string

const (
	CommandTransfer CommandKind = "transfer"
	CommandBalance  CommandKind = "balance"
)

// Command is one instruction sent to a zone's command endpoint.
type Command struct {
	Kind            CommandKind
	DestinationZone string
	Amount          int64
	TransactionID   uint64
}

func TransferCommand(destination string, amount int64, txID uint64) Command {
	return Command{
		Kind:            CommandTransfer,
		DestinationZone: destination,
		Amount:          amount,
		TransactionID:   txID,
	}
}

func EncodeCommand(c Command) []byte {
	switch c.Kind {
	case CommandBalance:
		return []byte(string(CommandBalance))
	default:
		return []byte(fmt.Sprintf("%s %s %d %d", CommandTransfer, c.DestinationZone, c.Amount, c.TransactionID))
	}
}

// DecodeCommand parses one command line. Unrecognized verbs return ErrUnknownCommand, a transfer with
// the wrong arity or non-numeric fields returns ErrMalformedMessage.
func DecodeCommand(payload []byte) (Command, error) {
	parts := strings.Fields(string(payload))
	if len(parts) == 0 {
		return Command{}, ErrEmptyMessage
	}
	switch CommandKind(parts[0]) {
	case CommandBalance:
		if len(parts) != 1 {
			return Command{}, fmt.Errorf("%w: balance takes no arguments", ErrMalformedMessage)
		}
		return Command{Kind: CommandBalance}, nil
	case CommandTransfer:
		if len(parts) != 4 {
			return Command{}, fmt.Errorf("%w: transfer expects 3 arguments, got %d", ErrMalformedMessage, len(parts)-1)
		}
		amount, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: amount %q", ErrMalformedMessage, parts[2])
		}
		if amount <= 0 || amount > MaxAmount {
			return Command{}, fmt.Errorf("%w: amount out of range: %d", ErrMalformedMessage, amount)
		}
		txID, err := strconv.ParseUint(parts[3], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: transaction id %q", ErrMalformedMessage, parts[3])
		}
		return TransferCommand(parts[1], amount, txID), nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, truncate(strings.TrimSpace(string(payload))))
	}
}
