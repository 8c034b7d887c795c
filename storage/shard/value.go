package shard

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Value is a typed optional JSON value. The zero Value is absent; merging an
// absent Value into a shard removes the key.
type Value struct {
	raw     json.RawMessage
	present bool
}

// Absent returns the "no value" sentinel.
func Absent() Value {
	return Value{}
}

// ValueOf marshals v into a present Value. A nil v becomes JSON null. A Value
// is returned unchanged.
func ValueOf(v any) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Absent(), nil
		}
		return *t, nil
	case json.RawMessage:
		return RawValue(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, errors.Wrap(err, "failed to encode value")
	}
	return Value{raw: data, present: true}, nil
}

// RawValue wraps already encoded JSON.
func RawValue(raw []byte) (Value, error) {
	if !json.Valid(raw) {
		return Value{}, errors.New("invalid JSON value")
	}
	return Value{raw: append(json.RawMessage(nil), raw...), present: true}, nil
}

// IsAbsent reports whether v is the absent sentinel.
func (v Value) IsAbsent() bool {
	return !v.present
}

// Raw returns the encoded JSON, or nil when absent.
func (v Value) Raw() json.RawMessage {
	if !v.present {
		return nil
	}
	return append(json.RawMessage(nil), v.raw...)
}

// Decode unmarshals v into dst. Decoding an absent value is an error.
func (v Value) Decode(dst any) error {
	if !v.present {
		return errors.New("value is absent")
	}
	return json.Unmarshal(v.raw, dst)
}

// Interface decodes v into generic Go values (maps, slices, float64, ...).
// Absent values yield nil.
func (v Value) Interface() (any, error) {
	if !v.present {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(v.raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal compares the encoded JSON of two values after compaction.
func (v Value) Equal(o Value) bool {
	if v.present != o.present {
		return false
	}
	if !v.present {
		return true
	}
	var a, b bytes.Buffer
	if json.Compact(&a, v.raw) != nil || json.Compact(&b, o.raw) != nil {
		return bytes.Equal(v.raw, o.raw)
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

// String returns the encoded JSON, or "<absent>".
func (v Value) String() string {
	if !v.present {
		return "<absent>"
	}
	return string(v.raw)
}

// MarshalJSON encodes a present value; absent values encode as null and are
// never written into a shard by the store.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.present {
		return []byte("null"), nil
	}
	return v.raw, nil
}
