// Package phone turns phone numbers observed in arbitrary textual forms into
// canonical lookup keys without a full telephony database.
package phone

import (
	"regexp"
	"strings"
)

// countryRule collapses a fully qualified number to its national part.
type countryRule struct {
	code     string
	national int
}

// countryRules lists calling codes whose national numbers have a fixed
// length. A digit sequence matching code+national length collapses to the
// national suffix.
var countryRules = []countryRule{
	{"1", 10},   // NANP
	{"7", 10},   // RU, KZ
	{"20", 10},  // EG
	{"33", 9},   // FR
	{"34", 9},   // ES
	{"44", 10},  // GB
	{"91", 10},  // IN
	{"212", 9},  // MA
	{"213", 9},  // DZ
	{"216", 8},  // TN
	{"966", 9},  // SA
	{"971", 9},  // AE
}

var (
	serviceCode = regexp.MustCompile(`^[0-9*#]{1,10}$`)
	phoneLike   = regexp.MustCompile(`^\+?[0-9\s\-()]{7,}$`)
)

// Digits strips everything but ASCII digits. The second return value
// reports whether the number was written in explicit international form
// (leading "+" or "00").
func Digits(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	intl := strings.HasPrefix(s, "+")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if !intl && strings.HasPrefix(d, "00") && len(d) > 4 {
		d = d[2:]
		intl = true
	}
	return d, intl
}

// national returns the national significant number when one of the
// collapsing heuristics applies.
func national(d string, intl bool) (string, bool) {
	for _, r := range countryRules {
		if len(d) == len(r.code)+r.national && strings.HasPrefix(d, r.code) {
			return d[len(r.code):], true
		}
	}
	// Trunk prefix of a national number ("0661234567", "07911123456").
	if !intl && (len(d) == 10 || len(d) == 11) && d[0] == '0' {
		return d[1:], true
	}
	return "", false
}

// Canonical returns the identity key for raw. Two textual forms of the same
// number yield the same key. Inputs without digits (alphanumeric sender ids,
// e-mail handles) are lower-cased and returned as-is. Empty input yields "".
func Canonical(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if serviceCode.MatchString(s) && strings.ContainsAny(s, "*#") {
		return s
	}
	d, intl := Digits(s)
	if d == "" {
		return strings.ToLower(s)
	}
	if n, ok := national(d, intl); ok {
		return n
	}
	return d
}

// Keys returns the candidate lookup keys for raw, most specific first.
// Short numbers without an explicit prefix are returned unchanged; no
// country code is ever guessed.
func Keys(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	canonical := Canonical(s)
	d, _ := Digits(s)
	if d == "" || canonical == s {
		return []string{canonical}
	}

	keys := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	add(d)
	add(canonical)
	if len(d) > 10 {
		add(d[len(d)-10:])
	}
	if len(d) > 9 {
		add(d[len(d)-9:])
	}
	return keys
}

// Display formats raw for presentation. Only numbers written in explicit
// international form are rewritten (to E.164); local numbers are kept as
// typed.
func Display(raw string) string {
	s := strings.TrimSpace(raw)
	d, intl := Digits(s)
	if intl && d != "" {
		return "+" + d
	}
	return s
}

// LooksLikePhone reports whether s could plausibly be a dialable number.
func LooksLikePhone(s string) bool {
	return phoneLike.MatchString(strings.TrimSpace(s))
}
