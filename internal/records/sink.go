package records

import (
	"errors"
	"sync"
)

// Multi fans each record out to every sink, joining their errors.
type Multi []Sink

var _ Sink = Multi(nil)

func (m Multi) Append(rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
type Discard struct{}

func (Discard) Append(Record) error { return nil }
func (Discard) Close() error        { return nil }

// Memory keeps records in order; used where a process wants to inspect what it wrote.
type Memory struct {
	mu   sync.Mutex
	recs []Record
}

var _ Sink = (*Memory)(nil)

func (m *Memory) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.recs))
	copy(out, m.recs)
	return out
}

// ByTransaction returns the records carrying txID.
func (m *Memory) ByTransaction(txID uint64) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.recs {
		if r.TransactionID == txID {
			out = append(out, r)
		}
	}
	return out
}

// Open builds the sink a process writes to: the CSV at csvPath, plus a Kafka export when brokers is
// non-empty. An empty csvPath skips the file.
func Open(csvPath string, brokers []string, topic string) (Sink, error) {
	var out Multi
	if csvPath != "" {
		csv, err := OpenCSV(csvPath)
		if err != nil {
			return nil, err
		}
		out = append(out, csv)
	}
	if len(brokers) > 0 {
		out = append(out, NewKafkaSink(brokers, topic))
	}
	if len(out) == 0 {
		return Discard{}, nil
	}
	return out, nil
}
