package contract

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type ValueKind uint8

const (
	KindBytes ValueKind = iota + 1
	KindNumber
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is an operand pushed on the evaluation stack or stored under a key.
// The zero Value is invalid.
type Value struct {
	kind   ValueKind
	bytes  []byte
	number decimal.Decimal
	str    string
}

func Bytes(b []byte) Value {
	buf := make([]byte, len(b))
	copy(buf, b)
	return Value{kind: KindBytes, bytes: buf}
}

func Number(n decimal.Decimal) Value {
	return Value{kind: KindNumber, number: n}
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) IsValid() bool {
	return v.kind >= KindBytes && v.kind <= KindString
}

// AsBytes returns a copy of the byte payload, or nil if v does not hold bytes.
func (v Value) AsBytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	buf := make([]byte, len(v.bytes))
	copy(buf, v.bytes)
	return buf
}

func (v Value) AsNumber() (decimal.Decimal, bool) {
	return v.number, v.kind == KindNumber
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// Equal compares kind and payload. Byte payloads are compared in constant time.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBytes:
		return len(v.bytes) == len(o.bytes) &&
			subtle.ConstantTimeCompare(v.bytes, o.bytes) == 1
	case KindNumber:
		return v.number.Equal(o.number)
	case KindString:
		return v.str == o.str
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBytes:
		return "0x" + hex.EncodeToString(v.bytes)
	case KindNumber:
		return v.number.String()
	case KindString:
		return fmt.Sprintf("%q", v.str)
	default:
		return "<invalid>"
	}
}

type valueJSON struct {
	Bytes  *string          `json:"bytes,omitempty"`
	Number *decimal.Decimal `json:"number,omitempty"`
	String *string          `json:"string,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var out valueJSON
	switch v.kind {
	case KindBytes:
		s := hex.EncodeToString(v.bytes)
		out.Bytes = &s
	case KindNumber:
		n := v.number
		out.Number = &n
	case KindString:
		s := v.str
		out.String = &s
	default:
		return nil, fmt.Errorf("cannot encode invalid value")
	}
	return json.Marshal(out)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	set := 0
	if in.Bytes != nil {
		b, err := hex.DecodeString(*in.Bytes)
		if err != nil {
			return fmt.Errorf("invalid bytes value: %w", err)
		}
		*v = Value{kind: KindBytes, bytes: b}
		set++
	}
	if in.Number != nil {
		*v = Number(*in.Number)
		set++
	}
	if in.String != nil {
		*v = String(*in.String)
		set++
	}
	if set != 1 {
		return fmt.Errorf("value must carry exactly one of bytes, number or string")
	}
	return nil
}
