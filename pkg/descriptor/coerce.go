package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// DateTimeLayouts are tried in order when parsing datetime values.
var DateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

var timeLayouts = []string{TimeLayout, "15:04"}

// ErrUnparsable is returned when a value cannot be converted to a kind.
var ErrUnparsable = errors.New("unparsable value")

func unparsable(k Kind, v any) error {
	return fmt.Errorf("%w: %v is not a valid %s", ErrUnparsable, v, k)
}

// ParseBool accepts 1/true/yes/on and 0/false/no/off, case-insensitively.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, unparsable(KindBoolean, s)
}

// Parse converts a textual value, as found in query strings, to the kind's
// domain type: string, int64, float64, bool, time.Time or, for KindTime, a
// normalized "15:04:05" string.
func (k Kind) Parse(s string) (any, error) {
	switch k {
	case KindString, KindText:
		return s, nil
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, unparsable(k, s)
		}
		return n, nil
	case KindNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, unparsable(k, s)
		}
		return f, nil
	case KindBoolean:
		return ParseBool(s)
	case KindDate:
		t, err := time.Parse(DateLayout, strings.TrimSpace(s))
		if err != nil {
			return nil, unparsable(k, s)
		}
		return t, nil
	case KindDateTime:
		for _, l := range DateTimeLayouts {
			if t, err := time.Parse(l, strings.TrimSpace(s)); err == nil {
				return t, nil
			}
		}
		return nil, unparsable(k, s)
	case KindTime:
		for _, l := range timeLayouts {
			if t, err := time.Parse(l, strings.TrimSpace(s)); err == nil {
				return t.Format(TimeLayout), nil
			}
		}
		return nil, unparsable(k, s)
	}
	return nil, unparsable(k, s)
}

// Coerce converts a decoded value (JSON, YAML or a database scan) to the
// kind's domain type. nil passes through.
func (k Kind) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return k.Parse(s)
	}
	switch k {
	case KindString, KindText:
		switch x := v.(type) {
		case []byte:
			return string(x), nil
		case fmt.Stringer:
			return x.String(), nil
		}
		return fmt.Sprint(v), nil
	case KindInteger:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint32:
			return int64(x), nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, unparsable(k, v)
			}
			return int64(x), nil
		case float64:
			if x != math.Trunc(x) || math.IsInf(x, 0) || math.Abs(x) >= 1<<63 {
				return nil, unparsable(k, v)
			}
			return int64(x), nil
		case json.Number:
			return k.Parse(x.String())
		case []byte:
			return k.Parse(string(x))
		}
	case KindNumber:
		switch x := v.(type) {
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		case json.Number:
			return k.Parse(x.String())
		case []byte:
			return k.Parse(string(x))
		}
	case KindBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case []byte:
			return ParseBool(string(x))
		}
	case KindDate, KindDateTime:
		switch x := v.(type) {
		case time.Time:
			if k == KindDate {
				y, m, d := x.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
			}
			return x, nil
		case []byte:
			return k.Parse(string(x))
		}
	case KindTime:
		switch x := v.(type) {
		case time.Time:
			return x.Format(TimeLayout), nil
		case []byte:
			return k.Parse(string(x))
		}
	case KindBinary:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	return nil, unparsable(k, v)
}

// Format renders a domain value for transport. Temporal values become
// strings in the kind's canonical layout; everything else is returned as is.
func (k Kind) Format(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	switch k {
	case KindDate:
		return t.Format(DateLayout)
	case KindTime:
		return t.Format(TimeLayout)
	}
	return t.Format(time.RFC3339)
}
