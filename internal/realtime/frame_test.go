package realtime

import (
	"errors"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantType   string
		wantThread string
		wantRead   int64
		wantBody   string
		wantErr    bool
	}{
		{
			name:       "message nested",
			data:       `{"type":"MESSAGE_NEW","threadId":"a_b","message":{"body":"hi","address":"+1"}}`,
			wantType:   FrameMessageNew,
			wantThread: "a_b",
			wantBody:   "hi",
		},
		{
			name:       "message thread inside payload",
			data:       `{"type":"MESSAGE_NEW","data":{"threadId":"x","text":"yo"}}`,
			wantType:   FrameMessageNew,
			wantThread: "x",
			wantBody:   "yo",
		},
		{
			name:       "read in ms",
			data:       `{"type":"THREAD_READ","threadId":"t","lastReadAtMs":1700000000000}`,
			wantType:   FrameThreadRead,
			wantThread: "t",
			wantRead:   1700000000000,
		},
		{
			name:       "read in iso",
			data:       `{"type":"THREAD_READ","thread_id":"t","lastReadAt":"2023-11-14T22:13:20.5Z"}`,
			wantType:   FrameThreadRead,
			wantThread: "t",
			wantRead:   1700000000500,
		},
		{name: "read without ts", data: `{"type":"THREAD_READ","threadId":"t"}`, wantErr: true},
		{name: "read without thread", data: `{"type":"THREAD_READ","lastReadAtMs":5}`, wantErr: true},
		{name: "invalid", data: `{`, wantErr: true},
		{name: "unknown type", data: `{"type":"PING"}`, wantType: "PING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, errMalformed) {
					t.Fatalf("err = %v, want malformed", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if f.Type != tt.wantType || f.ThreadID != tt.wantThread || f.LastReadAt != tt.wantRead {
				t.Errorf("frame = %+v", f)
			}
			if f.Message.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", f.Message.Body, tt.wantBody)
			}
		})
	}
}
