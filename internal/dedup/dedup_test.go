package dedup

import (
	"reflect"
	"testing"

	"github.com/matheus3301/textsync/internal/message"
	"github.com/matheus3301/textsync/internal/thread"
)

func newDedup() *Deduplicator {
	return New(thread.NewResolver(nil))
}

func msg(localID, serverID, body string, dir message.Direction, ts int64, state message.State) message.Message {
	return message.Message{
		LocalID:      localID,
		ServerID:     serverID,
		Counterparty: "+212661234567",
		ThreadID:     "600000001_661234567",
		Direction:    dir,
		Body:         body,
		Timestamp:    ts,
		State:        state,
	}
}

func TestKey(t *testing.T) {
	d := newDedup()
	withID := msg("l1", "m1", "hi", message.Received, 1000, message.Synced)
	if got := d.Key(&withID); got != "id:m1" {
		t.Errorf("Key(with id) = %q", got)
	}

	a := msg("l2", "", " hi ", message.Received, 1_000, message.Synced)
	b := msg("l3", "", "hi", message.Received, 4_999, message.Synced)
	b.Counterparty = "0661234567"
	if d.Key(&a) != d.Key(&b) {
		t.Errorf("same content in one bucket should share a key: %q vs %q", d.Key(&a), d.Key(&b))
	}

	c := msg("l4", "", "hi", message.Sent, 1_000, message.Synced)
	if d.Key(&a) == d.Key(&c) {
		t.Error("direction must be part of the fingerprint")
	}
}

func TestFingerprintAttachmentSignature(t *testing.T) {
	d := newDedup()
	a := msg("l1", "", "", message.Received, 1000, message.Synced)
	a.Attachments = []message.Attachment{{ID: "1"}, {URL: "u2"}, {Name: "n3"}, {ID: "4"}}
	b := a
	b.Attachments = []message.Attachment{{ID: "1"}, {URL: "u2"}, {Name: "n3"}, {ID: "other"}}
	if d.Fingerprint(&a, 0) != d.Fingerprint(&b, 0) {
		t.Error("only the first three attachment idents should count")
	}
	b.Attachments = []message.Attachment{{ID: "9"}}
	if d.Fingerprint(&a, 0) == d.Fingerprint(&b, 0) {
		t.Error("different attachments should change the fingerprint")
	}
}

func TestDedupeServerIDWins(t *testing.T) {
	d := newDedup()
	pending := msg("local-1", "", "hello", message.Sent, 10_000, message.Pending)
	echo := msg("m:m1", "m1", "hello", message.Sent, 11_000, message.Synced)

	for _, order := range [][]message.Message{{pending, echo}, {echo, pending}} {
		out := d.Dedupe(order)
		if len(out) != 1 {
			t.Fatalf("got %d records, want 1", len(out))
		}
		if out[0].ServerID != "m1" || out[0].State != message.Synced {
			t.Errorf("winner = %+v, want server record", out[0])
		}
	}
}

func TestDedupeAdjacentBucket(t *testing.T) {
	d := newDedup()
	// 9_999 and 10_001 fall in different 5s buckets.
	pending := msg("local-1", "", "hello", message.Sent, 9_999, message.Pending)
	echo := msg("m:m1", "m1", "hello", message.Sent, 10_001, message.Synced)
	if out := d.Dedupe([]message.Message{pending, echo}); len(out) != 1 {
		t.Errorf("got %d records across bucket edge, want 1", len(out))
	}
}

func TestDedupeDistinctServerIDsNeverMerge(t *testing.T) {
	d := newDedup()
	a := msg("m:a", "a", "ok", message.Sent, 1000, message.Synced)
	b := msg("m:b", "b", "ok", message.Sent, 1500, message.Synced)
	pending := msg("local-1", "", "ok", message.Sent, 1200, message.Pending)

	out := d.Dedupe([]message.Message{a, b, pending})
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2 (ids a and b)", len(out))
	}
	if out[0].ServerID != "a" || out[1].ServerID != "b" {
		t.Errorf("order = %s,%s", out[0].ServerID, out[1].ServerID)
	}
}

func TestDedupeLocalSendsStayDistinct(t *testing.T) {
	d := newDedup()
	first := msg("local-1", "", "ok", message.Sent, 10_000, message.Pending)
	second := msg("local-2", "", "ok", message.Sent, 10_500, message.Pending)

	out := d.Dedupe([]message.Message{first, second})
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2 separate sends", len(out))
	}
	if out[0].LocalID != "local-1" || out[1].LocalID != "local-2" {
		t.Errorf("local ids = %s,%s", out[0].LocalID, out[1].LocalID)
	}
}

func TestDedupeEchoClaimsOnePendingSend(t *testing.T) {
	d := newDedup()
	first := msg("local-1", "", "ok", message.Sent, 10_000, message.Pending)
	second := msg("local-2", "", "ok", message.Sent, 10_500, message.Pending)
	echo := msg("m:m1", "m1", "ok", message.Sent, 11_000, message.Synced)

	out := d.Dedupe([]message.Message{first, second, echo})
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	if out[0].ServerID != "m1" || out[0].LocalID != "local-1" {
		t.Errorf("echo should absorb the first send and keep its local id: %+v", out[0])
	}
	if out[1].LocalID != "local-2" || out[1].State != message.Pending {
		t.Errorf("second send = %+v, want untouched pending", out[1])
	}
	if again := d.Dedupe(out); !reflect.DeepEqual(again, out) {
		t.Errorf("not idempotent:\n%+v\n%+v", out, again)
	}
}

func TestDedupeFailedSendNeverFolds(t *testing.T) {
	d := newDedup()
	failed := msg("local-1", "", "ok", message.Sent, 10_000, message.Error)
	acked := msg("local-2", "m2", "ok", message.Sent, 10_200, message.Synced)
	echo := msg("m:m2", "m2", "ok", message.Sent, 10_300, message.Synced)

	out := d.Dedupe([]message.Message{failed, acked, echo})
	if len(out) != 2 {
		t.Fatalf("got %d records, want failed send plus m2", len(out))
	}
	if out[0].LocalID != "local-1" || out[0].State != message.Error {
		t.Errorf("failed send = %+v", out[0])
	}
	if out[1].ServerID != "m2" || out[1].LocalID != "local-2" {
		t.Errorf("acked send = %+v, want m2 under local-2", out[1])
	}

	// A retried send may not steal a record another send already owns.
	out[0].State = message.Pending
	if again := d.Dedupe(out); len(again) != 2 {
		t.Errorf("retried send folded into a claimed record: %+v", again)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	d := newDedup()
	input := []message.Message{
		msg("l1", "", "a", message.Received, 1_000, message.Synced),
		msg("l2", "", "a", message.Received, 2_000, message.Synced),
		msg("l3", "x", "b", message.Received, 3_000, message.Synced),
		msg("l4", "x", "b", message.Received, 3_500, message.Synced),
		msg("l5", "", "c", message.Sent, 9_000, message.Pending),
		msg("l6", "y", "c", message.Sent, 9_400, message.Synced),
		msg("l7", "", "d", message.Sent, 60_000, message.Error),
	}
	once := d.Dedupe(input)
	twice := d.Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Dedupe not idempotent:\nonce  %+v\ntwice %+v", once, twice)
	}
	if len(once) != 4 {
		t.Errorf("got %d records, want 4", len(once))
	}
}

func TestPrefer(t *testing.T) {
	yes := true
	tests := []struct {
		name     string
		existing message.Message
		incoming message.Message
		wantID   string
	}{
		{
			"server id beats none",
			msg("a", "", "x", message.Sent, 9000, message.Synced),
			msg("b", "m1", "x", message.Sent, 1000, message.Pending),
			"b",
		},
		{
			"synced beats pending",
			msg("a", "", "x", message.Sent, 9000, message.Pending),
			msg("b", "", "x", message.Sent, 1000, message.Synced),
			"b",
		},
		{
			"synced beats error",
			msg("a", "", "x", message.Sent, 1000, message.Synced),
			msg("b", "", "x", message.Sent, 9000, message.Error),
			"a",
		},
		{
			"later timestamp on tie",
			msg("a", "", "x", message.Sent, 1000, message.Synced),
			msg("b", "", "x", message.Sent, 2000, message.Synced),
			"b",
		},
		{
			"existing kept on full tie",
			msg("a", "", "x", message.Sent, 1000, message.Synced),
			msg("b", "", "x", message.Sent, 1000, message.Synced),
			"a",
		},
		{
			"local id survives server winner",
			msg("local-1", "", "x", message.Sent, 1000, message.Pending),
			msg("m:m1", "m1", "x", message.Sent, 1000, message.Synced),
			"local-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prefer(tt.existing, tt.incoming); got.LocalID != tt.wantID {
				t.Errorf("Prefer() = %s, want %s", got.LocalID, tt.wantID)
			}
		})
	}

	old := msg("a", "", "x", message.Received, 1000, message.Synced)
	old.Read = &yes
	old.Seq = 3
	newer := msg("b", "m1", "x", message.Received, 1000, message.Synced)
	newer.Seq = 9
	got := Prefer(old, newer)
	if !got.ExplicitlyRead() || got.Seq != 3 {
		t.Errorf("merge lost read flag or order: read=%v seq=%d", got.Read, got.Seq)
	}
}
