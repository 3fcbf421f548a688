package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// Value is a nullable scalar column value.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func Null() Value                { return Value{} }
func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// String returns the textual form of any non-null value.
func (v Value) String() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	}
	return "", false
}

// Int accepts integers, integral floats and numeric strings; the SQL
// endpoint is not consistent about numeric column types.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(v.f), v.f == float64(int64(v.f))
	case KindString:
		i, err := strconv.ParseInt(v.s, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// Time parses a DateTimeLayout (or RFC 3339) string as UTC.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindString || v.s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(DateTimeLayout, v.s, time.UTC); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, v.s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("store: empty value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '{', '[':
		return fmt.Errorf("store: non-scalar column value %s", data)
	default:
		if i, err := strconv.ParseInt(string(data), 10, 64); err == nil {
			*v = IntValue(i)
			return nil
		}
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("store: bad number %s", data)
		}
		*v = FloatValue(f)
	}
	return nil
}

// FromDriver converts a database/sql scanned value.
func FromDriver(src any) Value {
	switch v := src.(type) {
	case nil:
		return Null()
	case []byte:
		return StringValue(string(v))
	case string:
		return StringValue(v)
	case int64:
		return IntValue(v)
	case int32:
		return IntValue(int64(v))
	case int:
		return IntValue(int64(v))
	case uint64:
		return IntValue(int64(v))
	case float64:
		return FloatValue(v)
	case float32:
		return FloatValue(float64(v))
	case bool:
		return BoolValue(v)
	case time.Time:
		return StringValue(v.UTC().Format(DateTimeLayout))
	}
	return StringValue(fmt.Sprint(src))
}
