package records

import (
	"errors"
	"strconv"
	"time"
)

// TimeLayout is the timestamp layout downstream latency tooling parses.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrSinkClosed    = errors.New("records: sink closed")
	ErrMalformedFile = errors.New("records: malformed record file")
)

type Kind string

const (
	KindIssuance   Kind = "issuance"
	KindCompletion Kind = "completion"
)

// Header is the column set shared by issuance and completion logs.
var Header = []string{"transaction_id", "timestamp", "source_zone", "destination_zone", "amount"}

// Record is one row of an issuance or completion log.
type Record struct {
	Kind            Kind      `json:"kind"`
	TransactionID   uint64    `json:"transaction_id"`
	Timestamp       time.Time `json:"timestamp"`
	SourceZone      string    `json:"source_zone"`
	DestinationZone string    `json:"destination_zone"`
	Amount          int64     `json:"amount"`
	// Recorder names the node that wrote the record. Not part of the CSV columns.
	Recorder string `json:"recorder,omitempty"`
}

func (r Record) row() []string {
	return []string{
		strconv.FormatUint(r.TransactionID, 10),
		r.Timestamp.Format(TimeLayout),
		r.SourceZone,
		r.DestinationZone,
		strconv.FormatInt(r.Amount, 10),
	}
}

// Sink accepts records for persistence. Implementations are safe for concurrent use.
type Sink interface {
	Append(rec Record) error
	Close() error
}
