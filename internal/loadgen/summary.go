package loadgen

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

const (
	DefaultDetailedLogPath = "simulation_detailed_log.txt"
	DefaultErrorLogPath    = "simulation_errors.log"
	DefaultIssuancePath    = "simulation_transactions.csv"
)

// Summary is the outcome of one run. Sent counts attempts, Completed counts commands delivered to
// a zone node, Failed counts send errors.
type Summary struct {
	RunID               string         `json:"run_id"`
	Phase               Phase          `json:"phase"`
	Sent                uint64         `json:"sent"`
	Completed           uint64         `json:"completed"`
	Failed              uint64         `json:"failed"`
	SentPerSecond       map[int]uint64 `json:"sent_per_second"`
	ThroughputPerSecond map[int]uint64 `json:"throughput_per_second"`
	Errors              []string       `json:"errors,omitempty"`
}

// WriteDetailed writes the per-second histograms to path, replacing any previous file.
func (s Summary) WriteDetailed(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "Send Rate Per Second:")
	writeHistogram(w, s.SentPerSecond)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Throughput Per Second:")
	writeHistogram(w, s.ThroughputPerSecond)
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteErrors writes one line per send error. Nothing is written when the run had no errors.
func (s Summary) WriteErrors(path string) error {
	if len(s.Errors) == 0 {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range s.Errors {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeHistogram(w *bufio.Writer, h map[int]uint64) {
	seconds := make([]int, 0, len(h))
	for sec := range h {
		seconds = append(seconds, sec)
	}
	sort.Ints(seconds)
	for _, sec := range seconds {
		fmt.Fprintf(w, "Second %d: %d transactions\n", sec, h[sec])
	}
}
