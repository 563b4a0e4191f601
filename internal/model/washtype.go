package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WashTypeID identifies a wash service. Catalog ids arrive as numbers from the
// local config and as numbers or strings from the remote catalog.
type WashTypeID string

// UnmarshalJSON accepts both numeric and string ids.
func (id *WashTypeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = WashTypeID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("wash type id must be a number or string: %w", err)
	}
	*id = WashTypeID(n.String())
	return nil
}

// MarshalJSON emits integer-looking ids as JSON numbers.
func (id WashTypeID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// WashType is an entry in the wash service catalog.
type WashType struct {
	ID               WashTypeID `json:"id" yaml:"id"`
	Name             string     `json:"name" yaml:"name"`
	Price            float64    `json:"price" yaml:"price"`
	Description      string     `json:"description,omitempty" yaml:"description,omitempty"`
	EstimatedMinutes int        `json:"estimated_time,omitempty" yaml:"estimated_time,omitempty"`
}
