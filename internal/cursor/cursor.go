// Package cursor implements opaque keyset pagination tokens.
//
// A token is base64(json({"value": v})) where v is the sort-key value of the
// last item on the previous page. Tokens that fail to decode are treated as
// "no cursor" and yield the first page.
package cursor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindTime
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is a sort-key value: a timestamp, an integer, a string or null.
type Value struct {
	kind Kind
	t    time.Time
	i    int64
	s    string
}

func Null() Value { return Value{} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Time() time.Time { return v.t }
func (v Value) Int() int64 { return v.i }
func (v Value) String() string {
	switch v.kind {
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// Any returns the value as a driver argument.
func (v Value) Any() any {
	switch v.kind {
	case KindTime:
		return v.t
	case KindInt:
		return v.i
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindTime:
		return v.t.Equal(o.t)
	case KindInt:
		return v.i == o.i
	case KindString:
		return v.s == o.s
	default:
		return true
	}
}

// Compare orders two values of the same kind. Null sorts before everything;
// values of different non-null kinds compare by kind.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		switch {
		case v.kind < o.kind:
			return -1
		default:
			return 1
		}
	}
	switch v.kind {
	case KindTime:
		return v.t.Compare(o.t)
	case KindInt:
		switch {
		case v.i < o.i:
			return -1
		case v.i > o.i:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(v.s, o.s)
	default:
		return 0
	}
}

// Coerce reinterprets v as kind k. The JSON wire form does not carry the
// kind, so a decoded timestamp arrives as a string and is parsed here.
// Values that cannot be converted become Null.
func (v Value) Coerce(k Kind) Value {
	if v.kind == k || v.kind == KindNull {
		return v
	}
	switch k {
	case KindTime:
		if v.kind == KindString {
			if t, err := time.Parse(time.RFC3339Nano, v.s); err == nil {
				return Time(t)
			}
		}
	case KindInt:
		if v.kind == KindString {
			if i, err := strconv.ParseInt(v.s, 10, 64); err == nil {
				return Int(i)
			}
		}
	case KindString:
		return String(v.String())
	}
	return Null()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		// Strings stay strings; a time key is recovered by Coerce(KindTime).
		*v = String(s)
		return nil
	default:
		i, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			// Fractional or otherwise non-integer keys are not sort keys we issue.
			*v = Null()
			return nil
		}
		*v = Int(i)
		return nil
	}
}

// Cursor is the decoded form of a pagination token.
type Cursor struct {
	Value Value `json:"value"`
}

func Encode(v Value) string {
	data, err := json.Marshal(Cursor{Value: v})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode never fails. Malformed input decodes to a null cursor.
func Decode(token string) Cursor {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}
	}

	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}
	}
	return c
}
