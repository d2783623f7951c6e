package message

import (
	"strings"

	"github.com/tidwall/gjson"
)

// first returns the first present, non-null field of rec.
func first(rec gjson.Result, fields ...string) gjson.Result {
	for _, f := range fields {
		if v := rec.Get(f); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(rec gjson.Result, fields ...string) string {
	return strings.TrimSpace(first(rec, fields...).String())
}

// ParseRaw decodes one wire message. Field names vary between the bulk
// history API, the push channel and older backends; every known alias is
// tried.
func ParseRaw(rec gjson.Result) Raw {
	r := Raw{
		Body:      first(rec, "body", "message_content", "text", "message", "content").String(),
		MessageID: firstString(rec, "messageId", "message_id", "serverId"),
		Kind:      firstString(rec, "kind", "messageType", "message_type", "msgType"),
		ThreadID:  firstString(rec, "threadId", "thread_id"),
		GroupName: firstString(rec, "groupName", "group_name"),
	}

	if ts := first(rec, "timestamp", "date", "createdAt", "created_at", "sentAt", "time"); ts.Exists() {
		r.Timestamp = ts
	}

	dir := first(rec, "direction", "type", "is_sent", "isSent", "fromMe", "from_me", "outgoing")
	switch dir.Type {
	case gjson.True:
		r.Direction = string(Sent)
	case gjson.False:
		r.Direction = string(Received)
	default:
		r.Direction = dir.String()
	}

	addressFields := []string{"address", "phone_number", "phoneNumber", "counterparty", "from", "sender", "to"}
	if ParseDirection(r.Direction) == Sent {
		addressFields = []string{"address", "phone_number", "phoneNumber", "counterparty", "to", "recipient", "from"}
	}
	r.Address = firstString(rec, addressFields...)

	if rd := first(rec, "read", "isRead", "is_read"); rd.Type == gjson.True || rd.Type == gjson.False {
		v := rd.Bool()
		r.Read = &v
	}

	first(rec, "participants").ForEach(func(_, p gjson.Result) bool {
		addr := p.String()
		if p.IsObject() {
			addr = firstString(p, "address", "phone_number", "phoneNumber", "number")
		}
		if addr = strings.TrimSpace(addr); addr != "" {
			r.Participants = append(r.Participants, addr)
		}
		return true
	})

	first(rec, "attachments", "media", "parts").ForEach(func(_, a gjson.Result) bool {
		if a.Type == gjson.String {
			if a.Str != "" {
				r.Attachments = append(r.Attachments, Attachment{URL: a.Str})
			}
			return true
		}
		att := Attachment{
			ID:          firstString(a, "id", "attachmentId", "key"),
			URL:         firstString(a, "url", "downloadUrl", "href"),
			Name:        firstString(a, "name", "filename", "fileName"),
			ContentType: firstString(a, "contentType", "mimeType", "mime_type", "type"),
			Size:        first(a, "size", "bytes").Int(),
		}
		if att.Ident() != "" || att.ContentType != "" {
			r.Attachments = append(r.Attachments, att)
		}
		return true
	})

	return r
}

// ParseRawBytes is ParseRaw over a JSON document.
func ParseRawBytes(data []byte) Raw {
	return ParseRaw(gjson.ParseBytes(data))
}

// ParseDirection maps an explicit direction/type flag to a Direction.
// Missing or unrecognized values are treated as received.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent", "send", "outgoing", "out", "outbox", "2", "true", "me":
		return Sent
	default:
		return Received
	}
}
