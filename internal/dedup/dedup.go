// Package dedup removes duplicate records of the same logical message that
// arrive through different sources with different shapes.
package dedup

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/textsync/internal/message"
)

// BucketWidth is the timestamp granularity of content fingerprints. It
// absorbs clock skew between an optimistic send and its server echo.
const BucketWidth = 5 * time.Second

// maxAttachmentIdents bounds the attachment part of a fingerprint.
const maxAttachmentIdents = 3

// KeyResolver maps an address to its canonical identity.
type KeyResolver interface {
	Key(address string) string
}

// Deduplicator assigns stable keys and collapses duplicates.
type Deduplicator struct {
	keys KeyResolver
}

// New creates a Deduplicator that fingerprints counterparties through keys.
func New(keys KeyResolver) *Deduplicator {
	return &Deduplicator{keys: keys}
}

// Fingerprint returns the content signature of m with its timestamp
// truncated to the bucket at offset buckets from its own.
func (d *Deduplicator) Fingerprint(m *message.Message, offset int64) string {
	var att []string
	for _, a := range m.Attachments {
		if id := a.Ident(); id != "" {
			att = append(att, id)
			if len(att) == maxAttachmentIdents {
				break
			}
		}
	}
	bucket := m.Timestamp/BucketWidth.Milliseconds() + offset

	var b strings.Builder
	b.WriteString(string(m.Direction))
	b.WriteByte('|')
	b.WriteString(d.counterpartyKey(m))
	b.WriteByte('|')
	b.WriteString(strings.TrimSpace(m.Body))
	b.WriteByte('|')
	b.WriteString(strings.Join(att, ","))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(bucket, 10))
	return b.String()
}

func (d *Deduplicator) counterpartyKey(m *message.Message) string {
	if m.IsGroup() || m.Counterparty == "" {
		return m.ThreadID
	}
	return d.keys.Key(m.Counterparty)
}

// Key returns the stable key of m: its server id when present, otherwise its
// content fingerprint.
func (d *Deduplicator) Key(m *message.Message) string {
	if m.ServerID != "" {
		return "id:" + m.ServerID
	}
	return "fp:" + d.Fingerprint(m, 0)
}

// Dedupe collapses msgs to one record per logical message, preserving the
// order in which each logical message was first seen. Records with a server
// id are keyed by it and never merged with a record holding a different
// server id. A record without a server id whose fingerprint matches a record
// that has one (in the same or an adjacent bucket) is folded into it.
//
// Messages composed on this device are keyed by their local id until they
// carry a server id: two local sends never merge, a failed send never folds
// into anything, and a pending send folds into at most one server record
// that no other local send has claimed. Dedupe is idempotent.
func (d *Deduplicator) Dedupe(msgs []message.Message) []message.Message {
	byFingerprint := make(map[string][]string)
	claimed := make(map[string]bool)
	for i := range msgs {
		m := &msgs[i]
		if m.ServerID == "" {
			continue
		}
		key := "id:" + m.ServerID
		if m.IsLocal() {
			claimed[key] = true
		}
		fp := d.Fingerprint(m, 0)
		if !slices.Contains(byFingerprint[fp], key) {
			byFingerprint[fp] = append(byFingerprint[fp], key)
		}
	}

	index := make(map[string]int, len(msgs))
	out := make([]message.Message, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		key := d.resolveKey(&m, byFingerprint, claimed)
		if j, ok := index[key]; ok {
			out[j] = Prefer(out[j], m)
			continue
		}
		index[key] = len(out)
		out = append(out, m)
	}
	return out
}

func (d *Deduplicator) resolveKey(m *message.Message, byFingerprint map[string][]string, claimed map[string]bool) string {
	if m.ServerID != "" {
		return "id:" + m.ServerID
	}
	if m.IsLocal() {
		if m.State == message.Pending {
			if k, ok := d.match(m, byFingerprint, claimed); ok {
				claimed[k] = true
				return k
			}
		}
		return "local:" + m.LocalID
	}
	if k, ok := d.match(m, byFingerprint, nil); ok {
		return k
	}
	return "fp:" + d.Fingerprint(m, 0)
}

// match finds a server record with m's fingerprint in the same or an
// adjacent bucket, skipping keys in claimed.
func (d *Deduplicator) match(m *message.Message, byFingerprint map[string][]string, claimed map[string]bool) (string, bool) {
	for _, off := range []int64{0, -1, 1} {
		for _, k := range byFingerprint[d.Fingerprint(m, off)] {
			if !claimed[k] {
				return k, true
			}
		}
	}
	return "", false
}

// Prefer picks the better of two records of the same logical message: one
// with a server id over one without, then synced over pending or error,
// then the later timestamp. On a full tie the existing record is kept. An
// explicit read flag, the earliest ingestion order and a local send's id
// survive the merge.
func Prefer(existing, incoming message.Message) message.Message {
	winner, loser := existing, incoming
	if better(incoming, existing) {
		winner, loser = incoming, existing
	}
	if winner.Read == nil {
		winner.Read = loser.Read
	}
	if loser.Seq != 0 && (winner.Seq == 0 || loser.Seq < winner.Seq) {
		winner.Seq = loser.Seq
	}
	if loser.IsLocal() && !winner.IsLocal() {
		winner.LocalID = loser.LocalID
	}
	return winner
}

func better(a, b message.Message) bool {
	aID, bID := a.ServerID != "", b.ServerID != ""
	if aID != bID {
		return aID
	}
	aSynced, bSynced := a.State == message.Synced, b.State == message.Synced
	if aSynced != bSynced {
		return aSynced
	}
	return a.Timestamp > b.Timestamp
}
