// Package aggregate folds the deduplicated message set into per-thread
// conversations. Conversations are derived values: every Build recomputes
// them from the messages and the read cursors.
package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"github.com/matheus3301/textsync/internal/message"
	"github.com/matheus3301/textsync/internal/phone"
	"github.com/matheus3301/textsync/internal/thread"
)

// Conversation is the derived view of one thread.
type Conversation struct {
	ThreadID         string            `json:"threadId"`
	DisplayName      string            `json:"displayName"`
	DisplayNumber    string            `json:"displayNumber,omitempty"`
	Counterparty     string            `json:"counterparty,omitempty"`
	Subtitle         string            `json:"subtitle,omitempty"`
	Messages         []message.Message `json:"messages"`
	LastMessage      message.Message   `json:"lastMessage"`
	UnreadCount      int               `json:"unreadCount"`
	ParticipantCount int               `json:"participantCount"`
	IsGroup          bool              `json:"isGroup"`
	GroupName        string            `json:"groupName,omitempty"`
}

// CursorLookup returns the read cursor of a thread.
type CursorLookup interface {
	Get(threadID string) (int64, bool)
}

// Aggregator builds conversations. Thread ids of one-to-one messages are
// recomputed on every run so that contact data arriving after the messages
// merges threads that were keyed by different numbers of one contact.
type Aggregator struct {
	threads *thread.Resolver
	local   func() string
}

// New creates an aggregator. local returns the signed-in user's address.
func New(threads *thread.Resolver, local func() string) *Aggregator {
	if local == nil {
		local = func() string { return "" }
	}
	return &Aggregator{threads: threads, local: local}
}

type group struct {
	id       string
	msgs     []message.Message
	cursorOf []string
}

// Build groups msgs by thread and returns the conversations ordered by last
// message, newest first. cursors may be nil.
func (a *Aggregator) Build(msgs []message.Message, cursors CursorLookup) []Conversation {
	local := a.local()
	byID := make(map[string]*group)
	var order []*group
	for _, m := range msgs {
		id := a.threadOf(&m, local)
		if id == "" {
			continue
		}
		g, ok := byID[id]
		if !ok {
			g = &group{id: id, cursorOf: []string{id}}
			byID[id] = g
			order = append(order, g)
		}
		if m.ThreadID != "" && !slices.Contains(g.cursorOf, m.ThreadID) {
			g.cursorOf = append(g.cursorOf, m.ThreadID)
		}
		m.ThreadID = id
		g.msgs = append(g.msgs, m)
	}

	out := make([]Conversation, 0, len(order))
	for _, g := range order {
		out = append(out, a.conversation(g, cursors, local))
	}
	slices.SortStableFunc(out, func(x, y Conversation) int {
		if c := cmp.Compare(y.LastMessage.Timestamp, x.LastMessage.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(x.ThreadID, y.ThreadID)
	})
	return out
}

func (a *Aggregator) threadOf(m *message.Message, local string) string {
	if m.IsGroup() || m.Counterparty == "" {
		return m.ThreadID
	}
	if id := a.threads.ID(local, m.Counterparty); id != "" {
		return id
	}
	return m.ThreadID
}

func (a *Aggregator) conversation(g *group, cursors CursorLookup, local string) Conversation {
	msgs := g.msgs
	slices.SortStableFunc(msgs, func(x, y message.Message) int {
		if c := cmp.Compare(x.Timestamp, y.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(x.Seq, y.Seq)
	})

	var cursor int64
	if cursors != nil {
		for _, id := range g.cursorOf {
			if ts, ok := cursors.Get(id); ok {
				cursor = max(cursor, ts)
			}
		}
	}

	c := Conversation{
		ThreadID:    g.id,
		Messages:    msgs,
		LastMessage: msgs[len(msgs)-1],
		UnreadCount: CountUnread(msgs, cursor),
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if c.Counterparty == "" && msgs[i].Counterparty != "" {
			c.Counterparty = msgs[i].Counterparty
		}
		if c.GroupName == "" && msgs[i].GroupName != "" {
			c.GroupName = msgs[i].GroupName
		}
		if msgs[i].IsGroup() {
			c.IsGroup = true
		}
	}

	if c.IsGroup {
		a.describeGroup(&c, local)
	} else {
		a.describeDirect(&c)
	}
	return c
}

func (a *Aggregator) describeDirect(c *Conversation) {
	c.ParticipantCount = 2
	c.DisplayNumber = phone.Display(c.Counterparty)
	if m, ok := a.threads.Lookup(c.Counterparty); ok {
		if m.DisplayNumber != "" {
			c.DisplayNumber = m.DisplayNumber
		}
		if m.DisplayName != "" {
			c.DisplayName = m.DisplayName
			c.Subtitle = c.DisplayNumber
			return
		}
	}
	c.DisplayName = c.DisplayNumber
	if c.DisplayName == "" {
		c.DisplayName = c.ThreadID
	}
}

func (a *Aggregator) describeGroup(c *Conversation, local string) {
	me := a.threads.Key(local)
	var keys, names []string
	for _, m := range c.Messages {
		for _, p := range m.Participants {
			k := a.threads.Key(p)
			if k == "" || slices.Contains(keys, k) {
				continue
			}
			keys = append(keys, k)
			if k == me {
				continue
			}
			names = append(names, a.participantName(p))
		}
	}
	c.ParticipantCount = len(keys)
	c.Subtitle = strings.Join(names, ", ")
	c.DisplayName = c.GroupName
	if c.DisplayName == "" {
		c.DisplayName = c.Subtitle
	}
	if c.DisplayName == "" {
		c.DisplayName = c.ThreadID
	}
}

func (a *Aggregator) participantName(address string) string {
	if m, ok := a.threads.Lookup(address); ok && m.DisplayName != "" {
		return m.DisplayName
	}
	return phone.Display(address)
}

// CountUnread returns how many received messages in msgs are newer than
// cursor and not explicitly marked read.
func CountUnread(msgs []message.Message, cursor int64) int {
	n := 0
	for i := range msgs {
		m := &msgs[i]
		if m.Direction == message.Received && !m.ExplicitlyRead() && m.Timestamp > cursor {
			n++
		}
	}
	return n
}
