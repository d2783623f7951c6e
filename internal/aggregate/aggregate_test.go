package aggregate

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/matheus3301/textsync/internal/contacts"
	"github.com/matheus3301/textsync/internal/cursor"
	"github.com/matheus3301/textsync/internal/message"
	"github.com/matheus3301/textsync/internal/thread"
)

const local = "+212600000001"

func newAggregator(entries ...contacts.Entry) (*Aggregator, *thread.Resolver) {
	r := thread.NewResolver(contacts.Build(entries))
	return New(r, func() string { return local }), r
}

func received(id, from, body string, ts int64) message.Message {
	return message.Message{
		LocalID:      id,
		ServerID:     id,
		Counterparty: from,
		Direction:    message.Received,
		Body:         body,
		Timestamp:    ts,
		State:        message.Synced,
	}
}

func TestContactResolvesAcrossNumberForms(t *testing.T) {
	agg, _ := newAggregator(contacts.NewEntry("Alex", "0661234567"))

	convs := agg.Build([]message.Message{
		received("1", "+212661234567", "hi", 1000),
		received("2", "0661234567", "there", 2000),
	}, nil)

	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	c := convs[0]
	if c.DisplayName != "Alex" {
		t.Errorf("DisplayName = %q, want Alex", c.DisplayName)
	}
	if len(c.Messages) != 2 || c.LastMessage.Body != "there" {
		t.Errorf("messages = %+v", c.Messages)
	}
	if c.Messages[0].ThreadID != c.ThreadID {
		t.Errorf("message thread %q != conversation thread %q", c.Messages[0].ThreadID, c.ThreadID)
	}
}

func TestDisplayNameUpgradesWhenContactsArrive(t *testing.T) {
	agg, r := newAggregator()
	msgs := []message.Message{received("1", "+212661234567", "hi", 1000)}

	before := agg.Build(msgs, nil)
	if before[0].DisplayName != "+212661234567" {
		t.Errorf("DisplayName = %q, want formatted number", before[0].DisplayName)
	}

	r.SetIndex(contacts.Build([]contacts.Entry{contacts.NewEntry("Alex", "0661234567")}))
	after := agg.Build(msgs, nil)
	if after[0].DisplayName != "Alex" {
		t.Errorf("DisplayName = %q, want Alex", after[0].DisplayName)
	}
	if after[0].ThreadID != before[0].ThreadID {
		t.Errorf("thread id changed: %q -> %q", before[0].ThreadID, after[0].ThreadID)
	}
}

func TestOrdering(t *testing.T) {
	agg, _ := newAggregator()
	a1 := received("a1", "+212661111111", "a1", 5000)
	a2 := received("a2", "+212661111111", "a2", 5000)
	a1.Seq, a2.Seq = 2, 1
	b := received("b", "+212662222222", "b", 9000)

	convs := agg.Build([]message.Message{a1, b, a2}, nil)
	if len(convs) != 2 {
		t.Fatalf("got %d conversations", len(convs))
	}
	if convs[0].LastMessage.LocalID != "b" {
		t.Errorf("newest conversation first, got %q", convs[0].LastMessage.LocalID)
	}
	if convs[1].Messages[0].LocalID != "a2" || convs[1].Messages[1].LocalID != "a1" {
		t.Error("timestamp ties should be ordered by ingestion sequence")
	}
}

func TestUnreadCount(t *testing.T) {
	agg, _ := newAggregator()
	yes, no := true, false
	sent := received("s", "+212661234567", "out", 4000)
	sent.Direction = message.Sent
	flagged := received("r", "+212661234567", "read", 5000)
	flagged.Read = &yes
	unflagged := received("u", "+212661234567", "unread", 6000)
	unflagged.Read = &no

	msgs := []message.Message{
		received("1", "+212661234567", "old", 1000),
		received("2", "+212661234567", "at cursor", 3000),
		sent, flagged, unflagged,
	}

	cursors := cursor.NewStore(nil)
	// Recorded under a different textual form of the same thread.
	cursors.Merge("0661234567_0600000001", 3000, cursor.OriginPoll)

	convs := agg.Build(msgs, cursors)
	if got := convs[0].UnreadCount; got != 1 {
		t.Errorf("UnreadCount = %d, want 1", got)
	}

	if got := agg.Build(msgs, nil)[0].UnreadCount; got != 3 {
		t.Errorf("UnreadCount without cursor = %d, want 3", got)
	}
}

func TestUnreadMatchesCursorProperty(t *testing.T) {
	agg, _ := newAggregator()
	f := func(stamps []uint16, cur uint16) bool {
		if len(stamps) == 0 {
			return true
		}
		msgs := make([]message.Message, len(stamps))
		want := 0
		for i, ts := range stamps {
			msgs[i] = received("", "+212661234567", "x", int64(ts)+1)
			msgs[i].Seq = uint64(i)
			if int64(ts)+1 > int64(cur) {
				want++
			}
		}
		cursors := cursor.NewStore(nil)
		cursors.Merge(thread.NewResolver(nil).ID(local, "+212661234567"), int64(cur), cursor.OriginPoll)
		convs := agg.Build(msgs, cursors)
		return len(convs) == 1 && convs[0].UnreadCount == want
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestGroupConversation(t *testing.T) {
	agg, _ := newAggregator(contacts.NewEntry("Alex", "0661234567"))
	m := received("g1", "+212661234567", "hey all", 1000)
	m.ThreadID = "grp-42"
	m.GroupName = "Climbing"
	m.Participants = []string{"+212661234567", "+212662222222", local, "0661234567"}

	convs := agg.Build([]message.Message{m}, nil)
	if len(convs) != 1 {
		t.Fatalf("got %d conversations", len(convs))
	}
	c := convs[0]
	if !c.IsGroup || c.ThreadID != "grp-42" || c.DisplayName != "Climbing" {
		t.Errorf("group = %+v", c)
	}
	if c.ParticipantCount != 3 {
		t.Errorf("ParticipantCount = %d, want 3", c.ParticipantCount)
	}
	if c.Subtitle != "Alex, +212662222222" {
		t.Errorf("Subtitle = %q", c.Subtitle)
	}
}

func TestSelectAndSummarize(t *testing.T) {
	agg, _ := newAggregator(contacts.NewEntry("Alex", "0661234567"))
	g := received("g1", "+212662222222", "lunch?", 3000)
	g.ThreadID = "grp"
	g.GroupName = "Team"
	read := received("2", "+212663333333", "invoice attached", 2000)
	yes := true
	read.Read = &yes

	convs := agg.Build([]message.Message{
		received("1", "+212661234567", "hi", 1000), g, read,
	}, nil)

	tests := []struct {
		filter Filter
		query  string
		want   int
	}{
		{FilterAll, "", 3},
		{FilterUnread, "", 2},
		{FilterGroups, "", 1},
		{FilterAll, "alex", 1},
		{FilterAll, "INVOICE", 1},
		{FilterGroups, "alex", 0},
	}
	for _, tt := range tests {
		if got := len(Select(convs, tt.filter, tt.query)); got != tt.want {
			t.Errorf("Select(%s, %q) = %d, want %d", tt.filter, tt.query, got, tt.want)
		}
	}

	want := Stats{Conversations: 3, Unread: 2, Groups: 1, Messages: 3}
	if got := Summarize(convs); got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}

	if _, ok := Find(convs, "0661234567_0600000001"); !ok {
		t.Error("Find should match an equivalent thread id")
	}
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "Unread": FilterUnread, "groups": FilterGroups} {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFilter("starred"); err == nil {
		t.Error("expected error for unknown filter")
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC), "09:05"},
		{time.Date(2025, 3, 13, 23, 59, 0, 0, time.UTC), "Yesterday 23:59"},
		{time.Date(2025, 3, 12, 7, 30, 0, 0, time.UTC), "Mar 12, 07:30"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.at.UnixMilli(), now); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
