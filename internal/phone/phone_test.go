package phone

import (
	"slices"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"explicit international MA", "+212661234567", "661234567"},
		{"double zero MA", "00212661234567", "661234567"},
		{"national MA", "0661234567", "661234567"},
		{"spaced national MA", "06 61 23 45 67", "661234567"},
		{"bare MA without plus", "212661234567", "661234567"},
		{"NANP with plus", "+1 (415) 555-1234", "4155551234"},
		{"NANP 11 digits", "14155551234", "4155551234"},
		{"NANP 10 digits", "415-555-1234", "4155551234"},
		{"GB international", "+44 7911 123456", "7911123456"},
		{"GB national", "07911 123456", "7911123456"},
		{"short code", "665", "665"},
		{"service code", "*123#", "*123#"},
		{"nine digits unchanged", "661234567", "661234567"},
		{"alphanumeric sender", "  BANK-Alerts ", "bank-alerts"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.input); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"+212661234567", []string{"212661234567", "661234567", "2661234567"}},
		{"0661234567", []string{"0661234567", "661234567"}},
		{"665", []string{"665"}},
		{"+1 415 555 1234", []string{"14155551234", "4155551234", "155551234"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Keys(tt.input)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Keys(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestKeysNeverGuessCountry(t *testing.T) {
	for _, in := range []string{"665", "5555", "123456", "4155551234"} {
		for _, k := range Keys(in) {
			if len(k) > len(in) {
				t.Errorf("Keys(%q) produced longer key %q", in, k)
			}
		}
	}
}

func TestKeysShareCanonicalAcrossForms(t *testing.T) {
	forms := [][]string{
		{"+212661234567", "00212661234567", "0661234567", "212 661 234 567"},
		{"+14155551234", "(415) 555-1234", "1-415-555-1234"},
	}
	for _, group := range forms {
		want := Canonical(group[0])
		for _, f := range group {
			if !slices.Contains(Keys(f), want) {
				t.Errorf("Keys(%q) = %v, missing canonical %q", f, Keys(f), want)
			}
		}
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+212 661-234-567", "+212661234567"},
		{"00212661234567", "+212661234567"},
		{" 0661234567 ", "0661234567"},
		{"665", "665"},
	}
	for _, tt := range tests {
		if got := Display(tt.input); got != tt.want {
			t.Errorf("Display(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLooksLikePhone(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"+212 661 234 567", true},
		{"(415) 555-1234", true},
		{"12345", false},
		{"alex", false},
	}
	for _, tt := range tests {
		if got := LooksLikePhone(tt.input); got != tt.want {
			t.Errorf("LooksLikePhone(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
