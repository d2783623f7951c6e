// Package message defines the engine's message shapes and converts raw wire
// records into them.
package message

import "strings"

// Direction of a message relative to the local user.
type Direction string

const (
	Received Direction = "received"
	Sent     Direction = "sent"
)

// State is the lifecycle state of a message.
type State string

const (
	Pending State = "pending"
	Synced  State = "synced"
	Error   State = "error"
)

// Kind distinguishes plain text from rich-media messages.
type Kind string

const (
	Plain Kind = "plain"
	Rich  Kind = "rich"
)

// Attachment is rich-media metadata carried by a message.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url,omitempty"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Ident returns the most stable identifier available for the attachment.
func (a Attachment) Ident() string {
	switch {
	case a.ID != "":
		return a.ID
	case a.URL != "":
		return a.URL
	default:
		return a.Name
	}
}

// Raw is a message as received from the bulk fetch or the push channel.
// Timestamp keeps whatever encoding the source used.
type Raw struct {
	Address      string
	Body         string
	Attachments  []Attachment
	Direction    string
	Timestamp    any
	MessageID    string
	Kind         string
	ThreadID     string
	Read         *bool
	GroupName    string
	Participants []string
}

// LocalIDPrefix marks ids of messages composed on this device.
const LocalIDPrefix = "local-"

// Message is the engine-owned normalized message.
type Message struct {
	LocalID      string       `json:"localId"`
	ServerID     string       `json:"serverId,omitempty"`
	ThreadID     string       `json:"threadId"`
	Counterparty string       `json:"counterparty"`
	Direction    Direction    `json:"direction"`
	Body         string       `json:"body"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Kind         Kind         `json:"kind"`
	Timestamp    int64        `json:"timestamp"`
	State        State        `json:"state"`
	Read         *bool        `json:"read,omitempty"`
	GroupName    string       `json:"groupName,omitempty"`
	Participants []string     `json:"participants,omitempty"`

	// Seq is the ingestion order, used to break timestamp ties.
	Seq uint64 `json:"-"`
}

// IsGroup reports whether the message belongs to a multi-party thread.
func (m *Message) IsGroup() bool {
	return m.GroupName != "" || len(m.Participants) > 1
}

// IsLocal reports whether m was composed on this device. Its LocalID is the
// handle the send controller reconciles acks and failures by.
func (m *Message) IsLocal() bool {
	return strings.HasPrefix(m.LocalID, LocalIDPrefix)
}

// ExplicitlyRead reports whether the record carries a true read flag.
func (m *Message) ExplicitlyRead() bool {
	return m.Read != nil && *m.Read
}
