package domain

import (
	"encoding/json"
	"fmt"
)

// Document is a validated user ready to be persisted. Name is never empty and
// Age always came from a valid integer. A nil Address or AdditionalInfo is
// stored as NULL.
type Document struct {
	Name           string
	Age            int
	Address        Object
	AdditionalInfo Object
}

// Columns lists the persisted columns in the order Row encodes them.
var Columns = []string{"name", "age", "address", "additional_info"}

// Row encodes the document in Columns order. Nested objects become JSON text
// so every backend can bind them as a string parameter.
func (d Document) Row() ([]any, error) {
	addr, err := encodeObject(d.Address)
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	info, err := encodeObject(d.AdditionalInfo)
	if err != nil {
		return nil, fmt.Errorf("encode additional_info: %w", err)
	}
	return []any{d.Name, d.Age, addr, info}, nil
}

// encodeObject returns nil for a nil object so the driver binds NULL.
func encodeObject(o Object) (any, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// MarshalJSON renders the document with the field names used in the
// exported data (name, age, address, additionalInfo).
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name           string `json:"name"`
		Age            int    `json:"age"`
		Address        Object `json:"address"`
		AdditionalInfo Object `json:"additionalInfo"`
	}{d.Name, d.Age, d.Address, d.AdditionalInfo})
}
