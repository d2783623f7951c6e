// Package contacts builds a read-only lookup table from the external contact
// list, resolving any textual form of a phone number to one identity.
package contacts

import (
	"strings"

	"github.com/matheus3301/textsync/internal/phone"
)

// Entry is one contact normalized into a single canonical shape.
type Entry struct {
	Keys          []string
	Numbers       []string
	CanonicalKey  string
	DisplayName   string
	DisplayNumber string
	// New marks a synthetic entry for a typed number that matches no contact.
	New bool
}

// Match is the result of resolving an address against the index.
type Match struct {
	DisplayName   string
	CanonicalKey  string
	DisplayNumber string
}

// Index maps every phone key of every contact to its entry. It is rebuilt
// on each contact-list refresh and never mutated afterwards.
type Index struct {
	entries []Entry
	byKey   map[string]int
}

// Build indexes entries. On key collision the entry with a non-empty
// display name wins; otherwise the first one seen is kept.
func Build(entries []Entry) *Index {
	idx := &Index{
		entries: entries,
		byKey:   make(map[string]int, len(entries)*3),
	}
	for i, e := range entries {
		for _, k := range e.Keys {
			prev, ok := idx.byKey[k]
			if !ok || (entries[prev].DisplayName == "" && e.DisplayName != "") {
				idx.byKey[k] = i
			}
		}
	}
	return idx
}

// Len returns the number of contacts in the index.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Lookup resolves address by its resolver keys in order, then by its
// canonical key alone.
func (idx *Index) Lookup(address string) (Match, bool) {
	if idx == nil || len(idx.byKey) == 0 {
		return Match{}, false
	}
	for _, k := range phone.Keys(address) {
		if i, ok := idx.byKey[k]; ok {
			return idx.match(i), true
		}
	}
	if i, ok := idx.byKey[phone.Canonical(address)]; ok {
		return idx.match(i), true
	}
	return Match{}, false
}

func (idx *Index) match(i int) Match {
	e := idx.entries[i]
	return Match{
		DisplayName:   e.DisplayName,
		CanonicalKey:  e.CanonicalKey,
		DisplayNumber: e.DisplayNumber,
	}
}

// Search returns contacts whose name contains query (case-insensitive) or
// whose numbers contain it. An empty query returns every contact. A query
// that looks like a phone number and matches no contact number yields an
// extra synthetic entry flagged New so a conversation can be started with it.
func (idx *Index) Search(query string) []Entry {
	q := strings.TrimSpace(query)
	var all []Entry
	if idx != nil {
		all = idx.entries
	}
	if q == "" {
		return append([]Entry(nil), all...)
	}

	lower := strings.ToLower(q)
	var out []Entry
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.DisplayName), lower) || containsNumber(e, q) {
			out = append(out, e)
		}
	}

	if phone.LooksLikePhone(q) {
		if _, known := idx.Lookup(q); !known {
			synthetic := NewEntry(q, q)
			synthetic.New = true
			out = append(out, synthetic)
		}
	}
	return out
}

func containsNumber(e Entry, q string) bool {
	for _, n := range e.Numbers {
		if strings.Contains(n, q) {
			return true
		}
	}
	return false
}
