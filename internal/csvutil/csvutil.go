// Package csvutil contains the tolerant CSV tokenizer used by the importer.
// The standard library csv.Reader is intentionally strict; exported user
// files routinely carry stray quotes, CRLF line endings, embedded newlines in
// quoted cells and a leading byte-order mark. The scanner here accepts all of
// these predictably instead of failing the whole file.
package csvutil

import (
	"errors"
	"fmt"
	"strings"
)

// utf8BOM is stripped from the start of the input if present.
const utf8BOM = "\uFEFF"

// ErrMalformedInput is returned when the input has no usable header line.
// It aborts the import before any row is processed.
var ErrMalformedInput = errors.New("malformed input")

/*
	============================================================
	SECTION: tokenizer
	============================================================
	The scanner walks the text once, left to right, with one byte of
	lookahead and two states:

	  unquoted: ','  ends the field
	            '\r' / '\n' / "\r\n" end the record
	            '"'  switches to quoted
	            anything else is kept verbatim
	  quoted:   '""' is a literal quote
	            '"'  switches back to unquoted
	            commas and line breaks are kept verbatim

	End of input inside quotes closes the field implicitly.
*/

// Tokenize splits text into raw records. Values are returned exactly as
// scanned (no trimming, no BOM handling). Fully empty lines at the end of the
// input are not returned; empty lines followed by data are kept as records of
// one empty field.
func Tokenize(text string) [][]string {
	var (
		records  [][]string
		record   []string
		field    strings.Builder
		inQuotes bool
		// dirty is set once the current record has consumed any byte.
		dirty bool
		// trailingBlank counts the empty-line records at the tail of records.
		trailingBlank int
	)

	endField := func() {
		record = append(record, field.String())
		field.Reset()
	}
	endRecord := func() {
		if dirty {
			trailingBlank = 0
		} else {
			trailingBlank++
		}
		endField()
		records = append(records, record)
		record = nil
		dirty = false
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inQuotes {
			dirty = true
			if ch == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteByte(ch)
			continue
		}

		switch ch {
		case ',':
			dirty = true
			endField()
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			endRecord()
		case '\n':
			endRecord()
		case '"':
			dirty = true
			inQuotes = true
		default:
			dirty = true
			field.WriteByte(ch)
		}
	}

	if dirty {
		endRecord()
	}
	return records[:len(records)-trailingBlank]
}

// Parse converts text into header-keyed records. The first record is the
// header; every following record is padded with empty strings up to the
// header width and trimmed. Cells beyond the header width are dropped.
//
// Parse fails with ErrMalformedInput when the input is empty or the header
// has no non-blank cell. A header followed by nothing yields zero records.
func Parse(text string) ([]FlatRecord, error) {
	text = strings.TrimPrefix(text, utf8BOM)

	rows := Tokenize(text)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header line", ErrMalformedInput)
	}

	h, err := newHeader(rows[0])
	if err != nil {
		return nil, err
	}

	out := make([]FlatRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out = append(out, h.record(row))
	}
	return out, nil
}
