package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestParseTimestamp(t *testing.T) {
	ref := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	ms := ref.UnixMilli()

	tests := []struct {
		name  string
		input any
		want  int64
		ok    bool
	}{
		{"epoch seconds int64", ref.Unix(), ms, true},
		{"epoch millis int64", ms, ms, true},
		{"epoch seconds float", float64(ref.Unix()), ms, true},
		{"epoch millis string", "1741944413000", ms, true},
		{"epoch seconds string", "1741944413", ms, true},
		{"iso8601", "2025-03-14T09:26:53Z", ms, true},
		{"iso8601 offset", "2025-03-14T10:26:53+01:00", ms, true},
		{"iso8601 fraction", "2025-03-14T09:26:53.000Z", ms, true},
		{"sql layout", "2025-03-14 09:26:53", ms, true},
		{"time.Time", ref, ms, true},
		{"*time.Time", &ref, ms, true},
		{"json.Number", json.Number("1741944413000"), ms, true},
		{"gjson number", gjson.Parse(`1741944413`), ms, true},
		{"gjson string", gjson.Parse(`"2025-03-14T09:26:53Z"`), ms, true},
		{"nil", nil, 0, false},
		{"garbage", "yesterday-ish", 0, false},
		{"zero", 0, 0, false},
		{"negative", int64(-5), 0, false},
		{"zero time", time.Time{}, 0, false},
		{"gjson bool", gjson.Parse(`true`), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseTimestamp(%v) = %d, %v; want %d, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCoerceTimestampDefaultsToNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []any{nil, "", "not a date", struct{}{}} {
		if got := CoerceTimestamp(in, now); got != now.UnixMilli() {
			t.Errorf("CoerceTimestamp(%v) = %d, want now", in, got)
		}
	}
}
