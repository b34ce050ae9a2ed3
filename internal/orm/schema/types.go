// Package schema turns declarative entity definitions into validated, immutable
// metadata. It owns the column type tags and value casting, the relation value
// object, the relations parser, eager-graph analysis and the registry that
// builds each entity type's metadata exactly once.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// Type is the storage type tag of a column
type Type int

const (
	// TypeUnspecified lets the statement layer infer the tag from the Go value
	TypeUnspecified Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeDate
	TypeDateTime
	TypeTime
	TypeJSON
)

// Layouts used when temporal values are rendered as text
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	TimeLayout     = "15:04:05"
)

// String returns the tag as written in entity definitions
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypeTime:
		return "time"
	case TypeJSON:
		return "json"
	default:
		return "unspecified"
	}
}

// ParseType converts a definition type name to a Type
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return TypeBool, nil
	case "int", "integer":
		return TypeInt, nil
	case "float", "double":
		return TypeFloat, nil
	case "string":
		return TypeString, nil
	case "date":
		return TypeDate, nil
	case "datetime", "timestamp":
		return TypeDateTime, nil
	case "time":
		return TypeTime, nil
	case "json":
		return TypeJSON, nil
	default:
		return TypeUnspecified, fmt.Errorf("unknown column type: %s", s)
	}
}

// TypeOf infers a tag from a Go value. Unknown values are tagged as strings.
func TypeOf(v interface{}) Type {
	switch v.(type) {
	case bool:
		return TypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInt
	case float32, float64:
		return TypeFloat
	case time.Time:
		return TypeDateTime
	case map[string]interface{}, []interface{}, json.RawMessage:
		return TypeJSON
	default:
		return TypeString
	}
}

// Cast converts a user supplied value to the canonical Go representation of
// the tag: bool, int64, float64, string, time.Time (date, datetime),
// string "15:04:05" (time) or any JSON-encodable value (json).
// nil is always accepted.
func Cast(t Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeBool:
		return castBool(v)
	case TypeInt:
		return castInt(v)
	case TypeFloat:
		return castFloat(v)
	case TypeString:
		return castString(v)
	case TypeDate:
		tm, err := castTime(v)
		if err != nil {
			return nil, err
		}
		return now.With(tm).BeginningOfDay(), nil
	case TypeDateTime:
		tm, err := castTime(v)
		if err != nil {
			return nil, err
		}
		return tm.Truncate(time.Second), nil
	case TypeTime:
		return castClock(v)
	case TypeJSON:
		return castJSON(v)
	case TypeUnspecified:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported column type %d", int(t))
	}
}

// FromDB converts a raw driver value into the canonical representation of t.
// Drivers return []byte for text, strings for SQLite dates and encoded JSON;
// all of those are decoded here.
func FromDB(t Type, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	if t == TypeJSON {
		s, ok := raw.(string)
		if !ok {
			return raw, nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("decode json column: %w", err)
		}
		return decoded, nil
	}

	return Cast(t, raw)
}

// ToDB converts a canonical value into what the drivers accept for t
func ToDB(t Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeJSON:
		if raw, ok := v.(json.RawMessage); ok {
			return string(raw), nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json value: %w", err)
		}
		return string(b), nil
	case TypeDate:
		if tm, ok := v.(time.Time); ok {
			return tm.Format(DateLayout), nil
		}
	}
	return v, nil
}

func castBool(v interface{}) (interface{}, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return nil, fmt.Errorf("cannot cast %q to bool", b)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("cannot cast %T to bool", v)
	}
}

func castInt(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("cannot cast %v to int without losing precision", n)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
		if n >= math.MaxInt64 || n < math.MinInt64 {
			return nil, fmt.Errorf("value %v overflows int", n)
		}
		return int64(n), nil
	case float32:
		return castInt(float64(n))
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot cast %q to int", n)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("cannot cast %T to int", v)
	}
}

func castFloat(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot cast %q to float", n)
		}
		return parsed, nil
	default:
		i, err := castInt(v)
		if err != nil {
			return nil, fmt.Errorf("cannot cast %T to float", v)
		}
		return float64(i.(int64)), nil
	}
}

func castString(v interface{}) (interface{}, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return nil, fmt.Errorf("cannot cast %T to string", v)
	}
}

func castTime(v interface{}) (time.Time, error) {
	switch tm := v.(type) {
	case time.Time:
		return tm.UTC(), nil
	case *time.Time:
		if tm == nil {
			return time.Time{}, fmt.Errorf("cannot cast nil time")
		}
		return tm.UTC(), nil
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, tm); err == nil {
			return parsed.UTC(), nil
		}
		parsed, err := now.ParseInLocation(time.UTC, tm)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot cast %q to a date or time", tm)
		}
		return parsed, nil
	case int64:
		return time.Unix(tm, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot cast %T to a date or time", v)
	}
}

func castClock(v interface{}) (interface{}, error) {
	switch c := v.(type) {
	case time.Time:
		return c.Format(TimeLayout), nil
	case string:
		for _, layout := range []string{TimeLayout, "15:04", "15:04:05.999999999"} {
			if parsed, err := time.Parse(layout, c); err == nil {
				return parsed.Format(TimeLayout), nil
			}
		}
		// SQLite hands back full timestamps for TIME columns
		if tm, err := castTime(c); err == nil {
			return tm.Format(TimeLayout), nil
		}
		return nil, fmt.Errorf("cannot cast %q to time", c)
	default:
		return nil, fmt.Errorf("cannot cast %T to time", v)
	}
}

// castJSON normalizes v to the shape json decoding produces (maps, slices,
// float64 numbers) so a value compares equal to itself after a round trip
// through the database
func castJSON(v interface{}) (interface{}, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("value of type %T is not json encodable", v)
		}
		raw = b
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return decoded, nil
}
