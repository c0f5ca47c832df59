// Package mapper turns flat, header-keyed CSV records into validated nested
// documents.
package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"userimport/internal/csvutil"
	"userimport/internal/domain"
)

// Keys consumed directly by the mapper.
const (
	KeyFirstName     = "name.firstName"
	KeyLastName      = "name.lastName"
	KeyAge           = "age"
	addressPrefix    = "address."
	reasonMissing    = "missing_required"
	reasonInvalidAge = "invalid_age"
)

// ValidationError reports why a record could not become a Document. Fields
// names every offending column; Reason is a short machine-friendly tag used
// for skip accounting.
type ValidationError struct {
	Fields []string
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ","))
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Map converts one record into a Document. It is pure: the same record always
// yields an equal Document or an equal error.
func Map(rec csvutil.FlatRecord) (domain.Document, error) {
	first := lookup(rec, KeyFirstName)
	last := lookup(rec, KeyLastName)
	ageText := lookup(rec, KeyAge)

	var missing []string
	if first == "" {
		missing = append(missing, KeyFirstName)
	}
	if last == "" {
		missing = append(missing, KeyLastName)
	}
	if ageText == "" {
		missing = append(missing, KeyAge)
	}
	if len(missing) > 0 {
		return domain.Document{}, &ValidationError{Fields: missing, Reason: reasonMissing}
	}

	// The store column is a 32-bit integer; wider values are rejected here
	// rather than failing the whole batch later.
	age, err := strconv.ParseInt(ageText, 10, 32)
	if err != nil {
		return domain.Document{}, &ValidationError{
			Fields: []string{KeyAge},
			Reason: reasonInvalidAge,
			Detail: fmt.Sprintf("%q", ageText),
		}
	}

	doc := domain.Document{
		Name: first + " " + last,
		Age:  int(age),
	}
	for _, k := range rec.Keys() {
		switch k {
		case KeyFirstName, KeyLastName, KeyAge:
			continue
		}
		v, _ := rec.Get(k)
		if rest, ok := strings.CutPrefix(k, addressPrefix); ok {
			if doc.Address == nil {
				doc.Address = domain.Object{}
			}
			doc.Address.SetDotted(rest, v)
			continue
		}
		if doc.AdditionalInfo == nil {
			doc.AdditionalInfo = domain.Object{}
		}
		doc.AdditionalInfo.SetDotted(k, v)
	}
	return doc, nil
}

func lookup(rec csvutil.FlatRecord, key string) string {
	v, _ := rec.Get(key)
	return strings.TrimSpace(v)
}
