package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/textsync/internal/thread"
)

// Filter selects a subset of the conversation list.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterGroups Filter = "groups"
)

// ParseFilter parses a filter name. The empty string means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterUnread, FilterGroups:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

func (f Filter) match(c *Conversation) bool {
	switch f {
	case FilterUnread:
		return c.UnreadCount > 0
	case FilterGroups:
		return c.IsGroup
	default:
		return true
	}
}

// Select returns the conversations passing filter whose display name,
// subtitle or last message body contain query (case-insensitive).
func Select(convs []Conversation, filter Filter, query string) []Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Conversation, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		if !filter.match(c) {
			continue
		}
		if q != "" && !matches(c, q) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

func matches(c *Conversation, q string) bool {
	for _, s := range []string{c.DisplayName, c.Subtitle, c.LastMessage.Body} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// Find returns the conversation with the given thread id. Equivalent ids
// written with different number forms match.
func Find(convs []Conversation, threadID string) (Conversation, bool) {
	for _, c := range convs {
		if c.ThreadID == threadID {
			return c, true
		}
	}
	canonical := thread.Canonical(threadID)
	for _, c := range convs {
		if thread.Canonical(c.ThreadID) == canonical {
			return c, true
		}
	}
	return Conversation{}, false
}

// Stats summarizes a conversation list.
type Stats struct {
	Conversations int `json:"conversations"`
	Unread        int `json:"unread"`
	Groups        int `json:"groups"`
	Messages      int `json:"messages"`
}

// Summarize computes Stats for convs.
func Summarize(convs []Conversation) Stats {
	s := Stats{Conversations: len(convs)}
	for i := range convs {
		if convs[i].UnreadCount > 0 {
			s.Unread++
		}
		if convs[i].IsGroup {
			s.Groups++
		}
		s.Messages += len(convs[i].Messages)
	}
	return s
}

// FormatTimestamp renders an epoch-millisecond timestamp relative to now:
// the time of day for today, "Yesterday" plus time, otherwise the date.
func FormatTimestamp(ms int64, now time.Time) string {
	t := time.UnixMilli(ms).In(now.Location())
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch {
	case !t.Before(today):
		return t.Format("15:04")
	case !t.Before(today.AddDate(0, 0, -1)):
		return "Yesterday " + t.Format("15:04")
	default:
		return t.Format("Jan 2, 15:04")
	}
}
