package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Bodies that some backends put in place of a caption on media messages.
var mediaPlaceholders = map[string]struct{}{
	"<mms>":            {},
	"mms":              {},
	"[mms]":            {},
	"[media]":          {},
	"<media omitted>":  {},
	"[image]":          {},
	"[photo]":          {},
	"[attachment]":     {},
	"attachment":       {},
	"\U0001F4F7 photo": {},
}

// ThreadNamer derives thread identities for normalized messages.
type ThreadNamer interface {
	ID(local, counterparty string) string
	GroupID(threadID string, participants []string) string
	Counterparty(threadID, local string) string
}

// Normalizer converts Raw records into Messages.
type Normalizer struct {
	threads ThreadNamer
	local   func() string
	now     func() time.Time
	newID   func() string
}

// NewNormalizer creates a normalizer. local returns the signed-in user's
// address and may return "" while it is unknown.
func NewNormalizer(threads ThreadNamer, local func() string) *Normalizer {
	if local == nil {
		local = func() string { return "" }
	}
	return &Normalizer{
		threads: threads,
		local:   local,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Normalize converts r. It never fails: a missing timestamp becomes the
// current time and a missing direction becomes received.
func (n *Normalizer) Normalize(r Raw) Message {
	m := Message{
		ServerID:     strings.TrimSpace(r.MessageID),
		Counterparty: strings.TrimSpace(r.Address),
		Direction:    ParseDirection(r.Direction),
		Attachments:  r.Attachments,
		Kind:         detectKind(r),
		Timestamp:    CoerceTimestamp(r.Timestamp, n.now()),
		State:        Synced,
		Read:         r.Read,
		GroupName:    r.GroupName,
		Participants: r.Participants,
	}
	m.Body = DisplayBody(r.Body, m.Kind, m.Attachments)

	if m.ServerID != "" {
		m.LocalID = "m:" + m.ServerID
	} else {
		m.LocalID = n.newID()
	}

	local := n.local()
	if m.Counterparty == "" && r.ThreadID != "" {
		m.Counterparty = n.threads.Counterparty(r.ThreadID, local)
	}
	if m.IsGroup() {
		m.ThreadID = n.threads.GroupID(r.ThreadID, m.Participants)
	} else {
		m.ThreadID = n.threads.ID(local, m.Counterparty)
	}
	if m.ThreadID == "" {
		m.ThreadID = r.ThreadID
	}
	return m
}

// NormalizeAll converts every record in raws.
func (n *Normalizer) NormalizeAll(raws []Raw) []Message {
	out := make([]Message, 0, len(raws))
	for _, r := range raws {
		out = append(out, n.Normalize(r))
	}
	return out
}

// DisplayBody returns the text to show for a message. A rich-media message
// without a caption has an empty body; attachments are rendered separately.
func DisplayBody(body string, kind Kind, attachments []Attachment) string {
	trimmed := strings.TrimSpace(body)
	if kind != Rich && len(attachments) == 0 {
		return body
	}
	if trimmed == "" {
		return ""
	}
	if _, ok := mediaPlaceholders[strings.ToLower(trimmed)]; ok {
		return ""
	}
	return body
}

func detectKind(r Raw) Kind {
	if len(r.Attachments) > 0 {
		return Rich
	}
	switch strings.ToLower(r.Kind) {
	case "rich", "mms", "media", "image", "video", "audio":
		return Rich
	default:
		return Plain
	}
}
