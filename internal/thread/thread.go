// Package thread derives stable conversation identifiers from pairs of
// phone identities.
package thread

import (
	"slices"
	"strings"
	"sync"

	"github.com/matheus3301/textsync/internal/contacts"
	"github.com/matheus3301/textsync/internal/phone"
)

// Separator joins the two canonical keys of a one-to-one thread id.
const Separator = "_"

// GroupPrefix marks thread ids synthesized for groups without a server id.
const GroupPrefix = "group:"

// Resolver computes canonical identities, preferring the contact index and
// falling back to the phone heuristics. The index can be swapped when the
// contact list is refreshed.
type Resolver struct {
	mu    sync.RWMutex
	index *contacts.Index
}

// NewResolver creates a resolver over idx, which may be nil.
func NewResolver(idx *contacts.Index) *Resolver {
	return &Resolver{index: idx}
}

// SetIndex replaces the contact index.
func (r *Resolver) SetIndex(idx *contacts.Index) {
	r.mu.Lock()
	r.index = idx
	r.mu.Unlock()
}

// Index returns the current contact index.
func (r *Resolver) Index() *contacts.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index
}

// Lookup resolves address against the current contact index.
func (r *Resolver) Lookup(address string) (contacts.Match, bool) {
	return r.Index().Lookup(address)
}

// Key returns the canonical identity of address.
func (r *Resolver) Key(address string) string {
	if m, ok := r.Lookup(address); ok && m.CanonicalKey != "" {
		return m.CanonicalKey
	}
	return phone.Canonical(address)
}

// ID returns the thread id for a conversation between local and
// counterparty. The two canonical keys are sorted so either side, in any
// textual form, yields the same id. Without a local identity the
// counterparty key alone is the id.
func (r *Resolver) ID(local, counterparty string) string {
	other := r.Key(counterparty)
	if other == "" {
		return ""
	}
	me := r.Key(local)
	if me == "" {
		return other
	}
	return join(me, other)
}

// GroupID returns threadID when the server supplied one, otherwise an id
// built from the sorted participant keys.
func (r *Resolver) GroupID(threadID string, participants []string) string {
	if threadID = strings.TrimSpace(threadID); threadID != "" {
		return threadID
	}
	keys := make([]string, 0, len(participants))
	for _, p := range participants {
		if k := r.Key(p); k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	slices.Sort(keys)
	return GroupPrefix + strings.Join(keys, ",")
}

// Counterparty extracts the other side's address from a one-to-one thread
// id. Group ids have no single counterparty.
func (r *Resolver) Counterparty(threadID, local string) string {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" || strings.HasPrefix(threadID, GroupPrefix) {
		return ""
	}
	if !strings.Contains(threadID, Separator) {
		return threadID
	}
	if me := r.Key(local); me != "" {
		if rest, ok := strings.CutPrefix(threadID, me+Separator); ok {
			return rest
		}
		if rest, ok := strings.CutSuffix(threadID, Separator+me); ok {
			return rest
		}
	}
	a, b, ok := split(threadID)
	if !ok {
		return ""
	}
	if me := r.Key(local); me != "" && r.Key(a) == me {
		return b
	}
	return a
}

// Canonical rewrites a thread id into its canonical form using only the
// phone heuristics, so that equivalent ids recorded in different textual
// forms compare equal.
func Canonical(threadID string) string {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" || strings.HasPrefix(threadID, GroupPrefix) {
		return threadID
	}
	if !strings.Contains(threadID, Separator) {
		return phone.Canonical(threadID)
	}
	a, b, ok := split(threadID)
	if !ok {
		return threadID
	}
	a, b = phone.Canonical(a), phone.Canonical(b)
	if a == "" || b == "" {
		return threadID
	}
	return join(a, b)
}

// split cuts a one-to-one thread id into its two sides. Alphanumeric sender
// ids may contain the separator themselves, so with more than one
// separator the cut is placed next to the side that is a number.
func split(threadID string) (string, string, bool) {
	parts := strings.Split(threadID, Separator)
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	for i := 1; i < len(parts); i++ {
		a := strings.Join(parts[:i], Separator)
		b := strings.Join(parts[i:], Separator)
		if numeric(a) || numeric(b) {
			return a, b, true
		}
	}
	return "", "", false
}

func numeric(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func join(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + Separator + b
}
