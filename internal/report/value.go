package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindList
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindList:
		return "list"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TimestampLayout is the textual form used when a timestamp leaves the fact
// mapping (diffs, JSON, query comparisons).
const TimestampLayout = "2006-01-02T15:04:05.999999-07:00"

// Value is one fact: a string, an integer, a list of strings or a timestamp.
type Value struct {
	kind Kind
	str  string
	num  int64
	list []string
	ts   time.Time
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int returns an integer value.
func Int(n int64) Value {
	return Value{kind: KindInt, num: n}
}

// List returns a list value holding a copy of items.
func List(items ...string) Value {
	out := make([]string, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// Timestamp returns a timestamp value.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTime, ts: t}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Int returns the integer held by v.
func (v Value) Int() (int64, bool) {
	return v.num, v.kind == KindInt
}

// List returns the list held by v. The slice must not be modified.
func (v Value) List() ([]string, bool) {
	return v.list, v.kind == KindList
}

// Time returns the timestamp held by v.
func (v Value) Time() (time.Time, bool) {
	return v.ts, v.kind == KindTime
}

// Text renders v as plain text. Lists are joined with "|", the same
// delimiter the report format uses.
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindList:
		return strings.Join(v.list, "|")
	case KindTime:
		return v.ts.Format(TimestampLayout)
	default:
		return v.str
	}
}

// Textual replaces a timestamp with its string form and returns any other
// value unchanged.
func (v Value) Textual() Value {
	if v.kind == KindTime {
		return String(v.Text())
	}
	return v
}

// Equal reports whether v and other hold the same variant and content. List
// comparison is order-sensitive.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.num == other.num
	case KindList:
		return slices.Equal(v.list, other.list)
	case KindTime:
		return v.ts.Equal(other.ts)
	default:
		return v.str == other.str
	}
}

// MarshalJSON encodes strings and timestamps as JSON strings, integers as
// numbers and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.num, 10)), nil
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindTime:
		return json.Marshal(v.ts.Format(TimestampLayout))
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. Timestamps come back as
// strings since they are stored in textual form.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("decode value: empty input")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string value: %w", err)
		}
		*v = String(s)
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode list value: %w", err)
		}
		*v = List(items...)
	default:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("decode int value: %w", err)
		}
		*v = Int(n)
	}
	return nil
}
