package message

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Values below this are taken as epoch seconds, at or above as milliseconds.
const secondsCeiling = 1e11

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts v to epoch milliseconds. Accepted encodings are
// epoch seconds, epoch milliseconds (numbers or numeric strings), ISO-8601
// strings, time.Time and gjson values of any of these.
func ParseTimestamp(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil {
			return 0, false
		}
		return ParseTimestamp(*t)
	case int:
		return fromNumber(float64(t))
	case int64:
		return fromNumber(float64(t))
	case float64:
		return fromNumber(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return fromNumber(f)
	case gjson.Result:
		switch t.Type {
		case gjson.Number:
			return fromNumber(t.Num)
		case gjson.String:
			return parseString(t.Str)
		default:
			return 0, false
		}
	case string:
		return parseString(t)
	default:
		return 0, false
	}
}

// CoerceTimestamp is ParseTimestamp with a fallback to now for missing or
// invalid input. It never fails.
func CoerceTimestamp(v any, now time.Time) int64 {
	if ms, ok := ParseTimestamp(v); ok {
		return ms
	}
	return now.UnixMilli()
}

func fromNumber(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	if f < secondsCeiling {
		return int64(f * 1000), true
	}
	return int64(f), true
}

func parseString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(f)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
