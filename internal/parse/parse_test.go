package parse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"laundry-locker/internal/model"
)

var catalog = []model.WashType{
	{ID: "1", Name: "Standard Wash"},
	{ID: "2", Name: "Delicate Wash"},
	{ID: "eco", Name: "Eco"},
}

func TestCardIDJSON(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
		wantErr  bool
	}{
		{name: "string", raw: `"A1B2C3"`, expected: "A1B2C3"},
		{name: "string with spaces", raw: `"  584190238716 "`, expected: "584190238716"},
		{name: "large number keeps digits", raw: `584190238716123`, expected: "584190238716123"},
		{name: "blank string", raw: `"   "`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "object", raw: `{"id": 1}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := CardIDJSON(json.RawMessage(tc.raw))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, id)
		})
	}
}

func TestWashTypeRef(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected model.WashTypeID
		wantErr  bool
	}{
		{name: "object with id", raw: `{"id": 2, "name": "Delicate Wash"}`, expected: "2"},
		{name: "object with name only", raw: `{"name": "eco"}`, expected: "eco"},
		{name: "number", raw: `1`, expected: "1"},
		{name: "string id", raw: `"2"`, expected: "2"},
		{name: "name with spaces", raw: `"Standard Wash"`, expected: "1"},
		{name: "name case-insensitive", raw: `"delicate wash"`, expected: "2"},
		{name: "unknown token passes through", raw: `"99"`, expected: "99"},
		{name: "unknown name", raw: `"Super Spin"`, wantErr: true},
		{name: "empty", raw: `""`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := WashTypeRef(json.RawMessage(tc.raw), catalog)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownWashType)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, id)
		})
	}
}
