package csvutil

import (
	"fmt"
	"strings"
)

// FlatRecord is one parsed data line keyed by header name. Keys keep header
// order so callers that walk them get deterministic results.
type FlatRecord struct {
	keys   []string
	values map[string]string
}

// NewFlatRecord builds a record from parallel key/value slices. Later
// duplicates of a key overwrite the value but keep the first position.
// Missing values are treated as empty strings.
func NewFlatRecord(keys, values []string) FlatRecord {
	r := FlatRecord{values: make(map[string]string, len(keys))}
	for i, k := range keys {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		if _, seen := r.values[k]; !seen {
			r.keys = append(r.keys, k)
		}
		r.values[k] = v
	}
	return r
}

// Get returns the value for key and whether the key exists in the header.
func (r FlatRecord) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the record keys in header order.
func (r FlatRecord) Keys() []string { return r.keys }

// Len reports the number of distinct keys.
func (r FlatRecord) Len() int { return len(r.keys) }

// Map returns a copy of the record as a plain map.
func (r FlatRecord) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// header holds the trimmed column names of the first record.
type header struct {
	names []string
}

func newHeader(cells []string) (header, error) {
	names := make([]string, len(cells))
	blank := true
	for i, c := range cells {
		names[i] = strings.TrimSpace(c)
		if names[i] != "" {
			blank = false
		}
	}
	if blank {
		return header{}, fmt.Errorf("%w: empty header line", ErrMalformedInput)
	}
	return header{names: names}, nil
}

// record pads row to the header width, trims every value and keys it.
func (h header) record(row []string) FlatRecord {
	values := make([]string, len(h.names))
	for i := range h.names {
		if i < len(row) {
			values[i] = strings.TrimSpace(row[i])
		}
	}
	return NewFlatRecord(h.names, values)
}
