package validation

import (
	"strings"
	"testing"
)

func TestIsValidPiAddress(t *testing.T) {
	valid := "G" + strings.Repeat("A", 55)

	tests := []struct {
		addr string
		want bool
	}{
		{valid, true},
		{"G" + strings.Repeat("A", 54) + "7", true},
		{"", false},
		{strings.ToLower(valid), false},              // lowercase not allowed
		{"S" + strings.Repeat("A", 55), false},       // seed, not account ID
		{"G" + strings.Repeat("A", 54), false},       // too short
		{"G" + strings.Repeat("A", 56), false},       // too long
		{"G" + strings.Repeat("A", 54) + "1", false}, // '1' not in base32 alphabet
		{"G" + strings.Repeat("A", 54) + "0", false}, // '0' not in base32 alphabet
	}

	for _, tc := range tests {
		if got := IsValidPiAddress(tc.addr); got != tc.want {
			t.Errorf("IsValidPiAddress(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestIsValidUID(t *testing.T) {
	tests := []struct {
		uid  string
		want bool
	}{
		{"user-123", true},
		{"a", true},
		{strings.Repeat("x", 64), true},
		{strings.Repeat("x", 65), false},
		{"", false},
		{"user 123", false},
		{"user/123", false},
	}

	for _, tc := range tests {
		if got := IsValidUID(tc.uid); got != tc.want {
			t.Errorf("IsValidUID(%q) = %v, want %v", tc.uid, got, tc.want)
		}
	}
}

func TestIsValidAmount(t *testing.T) {
	tests := []struct {
		amount float64
		want   bool
	}{
		{1, true},
		{0.0000001, true},
		{10000, true},
		{0, false},
		{-1, false},
		{10001, false},
	}

	for _, tc := range tests {
		if got := IsValidAmount(tc.amount); got != tc.want {
			t.Errorf("IsValidAmount(%v) = %v, want %v", tc.amount, got, tc.want)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("SanitizeString truncation = %q", got)
	}
}

func TestSanitizeAddress(t *testing.T) {
	got := SanitizeAddress("  g" + strings.Repeat("a", 55) + " ")
	want := "G" + strings.Repeat("A", 55)
	if got != want {
		t.Errorf("SanitizeAddress = %q, want %q", got, want)
	}
}
