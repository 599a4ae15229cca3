package store

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONColumn is a generic gorm Valuer/Scanner that stores any JSON-able
// value as TEXT, implementing the "Embedded JSON blobs for nested values"
// design note (spec §9): container ACLs, metadata maps, lease records
// (container-side), content properties, and committed-block lists are all
// denormalized this way rather than normalized into child tables.
type JSONColumn[T any] struct {
	Val T
}

func NewJSONColumn[T any](v T) JSONColumn[T] { return JSONColumn[T]{Val: v} }

func (c JSONColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(c.Val)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *JSONColumn[T]) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONColumn.Scan: unsupported type %T", value)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &c.Val)
}

// RawBytes is a []byte that (de)serializes per spec §6's "nested-value
// encoding" requirement: binary values are encoded as
// {"type":"Buffer","data":[...]} (the shape Node.js's JSON.stringify(Buffer)
// produces, preserved here for on-disk compatibility with existing
// Azurite-format databases), with "data" a JSON array of byte values rather
// than a base64 string. The decoder also accepts a bare JSON array.
type RawBytes []byte

// bufferShape is decode-only: Data is []byte so a {"data":[1,2,3]} payload
// unmarshals element-by-element into the byte slice (jsoniter, like
// encoding/json, decodes a []byte from either a base64 string or a JSON
// array of numbers, but encodes it only as base64). Encoding goes through
// RawBytes.MarshalJSON instead, which writes Data as a numeric array
// explicitly.
type bufferShape struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

func (b RawBytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}{Type: "Buffer", Data: data})
}

func (b *RawBytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var shaped bufferShape
	if err := json.Unmarshal(data, &shaped); err == nil && shaped.Type == "Buffer" {
		*b = RawBytes(shaped.Data)
		return nil
	}
	// Fall back to a bare array of numbers, e.g. [1,2,3], or an object
	// keyed by byte index, e.g. {"0":1,"1":2}.
	var plain []byte
	if err := json.Unmarshal(data, &plain); err == nil {
		*b = RawBytes(plain)
		return nil
	}
	var keyed map[string]byte
	if err := json.Unmarshal(data, &keyed); err != nil {
		return fmt.Errorf("RawBytes.UnmarshalJSON: unrecognized buffer shape: %w", err)
	}
	out := make(RawBytes, len(keyed))
	for k, v := range keyed {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(keyed) {
			return fmt.Errorf("RawBytes.UnmarshalJSON: bad buffer index %q", k)
		}
		out[i] = v
	}
	*b = out
	return nil
}
