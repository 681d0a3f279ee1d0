package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CSVSink appends records to a CSV file, writing the header when the file is new.
// Every Append is flushed so readers see completed rows while the node runs.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	w      *csv.Writer
	closed bool
}

var _ Sink = (*CSVSink)(nil)

func OpenCSV(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("records: create dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("records: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("records: stat %s: %w", path, err)
	}
	s := &CSVSink{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.w.Write(Header); err != nil {
			_ = f.Close()
			return nil, err
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *CSVSink) Path() string {
	return s.path
}

func (s *CSVSink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if err := s.w.Write(rec.row()); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	werr := s.w.Error()
	cerr := s.f.Close()
	return errors.Join(werr, cerr)
}

// ReadCSV loads every record from a log written by CSVSink, tagging rows with kind.
func ReadCSV(path string, kind Kind) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	head, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if strings.Join(head, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("%w: unexpected header %v", ErrMalformedFile, head)
	}

	var out []Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		rec, err := parseRow(row, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func parseRow(row []string, kind Kind) (Record, error) {
	txID, err := strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: transaction_id %q", ErrMalformedFile, row[0])
	}
	ts, err := time.ParseInLocation(TimeLayout, row[1], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("%w: timestamp %q", ErrMalformedFile, row[1])
	}
	amount, err := strconv.ParseInt(row[4], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: amount %q", ErrMalformedFile, row[4])
	}
	return Record{
		Kind:            kind,
		TransactionID:   txID,
		Timestamp:       ts,
		SourceZone:      row[2],
		DestinationZone: row[3],
		Amount:          amount,
	}, nil
}
