package contacts

import (
	"strings"

	"github.com/matheus3301/textsync/internal/phone"
	"github.com/tidwall/gjson"
)

// Fields tried, in order, for a contact's display name.
var nameFields = []string{"full_name", "fullName", "displayName", "display_name", "name"}

// Fields that may hold one phone number, a list of numbers, or a list of
// objects carrying a number.
var phoneFields = []string{
	"phone_number", "phoneNumber", "phone", "mobile",
	"phone_numbers", "phoneNumbers", "phones", "numbers",
}

// Fields tried inside a phone object.
var phoneObjectFields = []string{"number", "value", "phone", "normalized", "phoneNumber"}

// ParseList decodes a contacts payload: a bare array, or an object wrapping
// the array in "items", "contacts" or "data". Records without any phone
// number are skipped.
func ParseList(data []byte) []Entry {
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		for _, k := range []string{"items", "contacts", "data"} {
			if v := root.Get(k); v.IsArray() {
				root = v
				break
			}
		}
	}
	if !root.IsArray() {
		return nil
	}

	var out []Entry
	root.ForEach(func(_, rec gjson.Result) bool {
		if e, ok := Parse(rec); ok {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Parse converts one external contact record, whatever its shape, into an
// Entry. It reports false when the record carries no phone number.
func Parse(rec gjson.Result) (Entry, bool) {
	numbers := extractNumbers(rec)
	if len(numbers) == 0 {
		return Entry{}, false
	}
	return NewEntry(extractName(rec), numbers...), true
}

// NewEntry builds an Entry from a display name and raw phone variants. The
// first number is the one shown to the user.
func NewEntry(name string, numbers ...string) Entry {
	e := Entry{DisplayName: strings.TrimSpace(name)}
	seen := make(map[string]struct{})
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		e.Numbers = append(e.Numbers, n)
		for _, k := range phone.Keys(n) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			e.Keys = append(e.Keys, k)
		}
	}
	if len(e.Numbers) > 0 {
		e.CanonicalKey = phone.Canonical(e.Numbers[0])
		e.DisplayNumber = phone.Display(e.Numbers[0])
	}
	return e
}

func extractName(rec gjson.Result) string {
	for _, f := range nameFields {
		if v := rec.Get(f); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
	}
	first := strings.TrimSpace(rec.Get("first_name").String() + " " + rec.Get("last_name").String())
	if first != "" {
		return first
	}
	return strings.TrimSpace(rec.Get("firstName").String() + " " + rec.Get("lastName").String())
}

func extractNumbers(rec gjson.Result) []string {
	var out []string
	for _, f := range phoneFields {
		v := rec.Get(f)
		switch {
		case !v.Exists():
		case v.IsArray():
			v.ForEach(func(_, item gjson.Result) bool {
				if n := numberOf(item); n != "" {
					out = append(out, n)
				}
				return true
			})
		default:
			if n := numberOf(v); n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

func numberOf(v gjson.Result) string {
	switch {
	case v.IsObject():
		for _, f := range phoneObjectFields {
			if n := v.Get(f); n.Exists() && strings.TrimSpace(n.String()) != "" {
				return strings.TrimSpace(n.String())
			}
		}
		return ""
	case v.Type == gjson.String || v.Type == gjson.Number:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}
