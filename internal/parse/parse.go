// Package parse turns loosely typed request input into the canonical values
// the locker service accepts.
package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"laundry-locker/internal/model"
)

var (
	// ErrEmptyCardID is returned when a card id is blank after trimming.
	ErrEmptyCardID = errors.New("card id is empty")
	// ErrUnknownWashType is returned when a wash type reference matches
	// neither an id nor a name in the catalog.
	ErrUnknownWashType = errors.New("unknown wash type")

	idTokenRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
)

// CardID returns the canonical string form of a card id.
func CardID(raw string) string {
	return strings.TrimSpace(raw)
}

// CardIDJSON accepts a card id sent as a JSON string or number. Numbers are
// kept digit for digit so long UIDs do not lose precision.
func CardIDJSON(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrEmptyCardID
	}

	var id string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("invalid card id: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return "", fmt.Errorf("invalid card id: %w", err)
		}
		id = n.String()
	}

	id = CardID(id)
	if id == "" {
		return "", ErrEmptyCardID
	}
	return id, nil
}

// WashTypeRef resolves the wash type a client sent, which may be an object
// carrying an id, a bare id, or a display name, to a catalog id.
func WashTypeRef(raw json.RawMessage, catalog []model.WashType) (model.WashTypeID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrUnknownWashType
	}

	switch raw[0] {
	case '{':
		var obj struct {
			ID   model.WashTypeID `json:"id"`
			Name string           `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("invalid wash type object: %w", err)
		}
		if obj.ID != "" {
			return obj.ID, nil
		}
		return byName(obj.Name, catalog)
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid wash type: %w", err)
		}
		return fromString(strings.TrimSpace(s), catalog)
	default:
		var id model.WashTypeID
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("invalid wash type: %w", err)
		}
		return id, nil
	}
}

func fromString(s string, catalog []model.WashType) (model.WashTypeID, error) {
	if s == "" {
		return "", ErrUnknownWashType
	}
	isToken := idTokenRe.MatchString(s)
	if isToken {
		for _, wt := range catalog {
			if string(wt.ID) == s {
				return wt.ID, nil
			}
		}
	}
	if id, err := byName(s, catalog); err == nil {
		return id, nil
	}
	if isToken {
		// Let the service reject it with its own message.
		return model.WashTypeID(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWashType, s)
}

func byName(name string, catalog []model.WashType) (model.WashTypeID, error) {
	name = strings.TrimSpace(name)
	for _, wt := range catalog {
		if strings.EqualFold(wt.Name, name) {
			return wt.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWashType, name)
}
