package realtime

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/textsync/internal/message"
)

// Inbound frame types.
const (
	FrameMessageNew = "MESSAGE_NEW"
	FrameThreadRead = "THREAD_READ"
)

var errMalformed = errors.New("malformed frame")

// Frame is a decoded inbound push frame.
type Frame struct {
	Type       string
	ThreadID   string
	Message    message.Raw
	LastReadAt int64
}

// authFrame is the first outbound frame after the connection opens.
type authFrame struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

// ParseFrame decodes a push frame. Frames of unknown type are returned with
// only Type set; callers ignore them.
func ParseFrame(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{}, errMalformed
	}
	root := gjson.ParseBytes(data)
	f := Frame{
		Type:     root.Get("type").String(),
		ThreadID: firstString(root, "threadId", "thread_id"),
	}

	switch f.Type {
	case FrameMessageNew:
		payload := root
		for _, k := range []string{"message", "payload", "data"} {
			if v := root.Get(k); v.IsObject() {
				payload = v
				break
			}
		}
		f.Message = message.ParseRaw(payload)
		if f.ThreadID == "" {
			f.ThreadID = f.Message.ThreadID
		}
		if f.Message.ThreadID == "" {
			f.Message.ThreadID = f.ThreadID
		}
	case FrameThreadRead:
		if f.ThreadID == "" {
			return f, fmt.Errorf("%w: %s without thread id", errMalformed, f.Type)
		}
		for _, k := range []string{"lastReadAtMs", "lastReadAt", "last_read_at"} {
			if ms, ok := message.ParseTimestamp(root.Get(k)); ok {
				f.LastReadAt = ms
				break
			}
		}
		if f.LastReadAt == 0 {
			return f, fmt.Errorf("%w: %s without timestamp", errMalformed, f.Type)
		}
	}
	return f, nil
}

func firstString(rec gjson.Result, fields ...string) string {
	for _, k := range fields {
		if v := rec.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
