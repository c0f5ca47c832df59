// Package skiplog keeps the ledger of rejected rows: a count per reason and,
// when a path is configured, one CSV line per rejected row.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Header is the first line of a ledger file.
var Header = []string{"reason", "row_number", "fields", "raw"}

// Ledger counts skip reasons and optionally mirrors them to a CSV file. It is
// safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	reasons map[string]int
	f       *os.File
	w       *csv.Writer
}

// New returns a ledger. With an empty path only counts are kept; otherwise
// parent directories are created and the file is truncated.
func New(path string) (*Ledger, error) {
	l := &Ledger{reasons: make(map[string]int)}
	if path == "" {
		return l, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("skiplog: create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("skiplog: open %s: %w", path, err)
	}
	l.f = f
	l.w = csv.NewWriter(f)
	if err := l.w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("skiplog: write header: %w", err)
	}
	return l, nil
}

// Add records one rejected row. fields names the offending columns.
func (l *Ledger) Add(reason string, row int, fields []string, raw string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons[reason]++
	if l.w != nil {
		_ = l.w.Write([]string{reason, strconv.Itoa(row), strings.Join(fields, ";"), raw})
	}
}

// Total is the number of rows recorded.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.reasons {
		n += c
	}
	return n
}

// Counts returns a copy of the per-reason counts.
func (l *Ledger) Counts() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		out[k] = v
	}
	return out
}

// Summary renders "reason=count" pairs sorted by reason, or "none".
func (l *Ledger) Summary() string {
	counts := l.Counts()
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}

// Close flushes and closes the ledger file, if any.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	l.w.Flush()
	werr := l.w.Error()
	cerr := l.f.Close()
	l.f, l.w = nil, nil
	if werr != nil {
		return fmt.Errorf("skiplog: flush: %w", werr)
	}
	return cerr
}
