package textnorm

import (
	"math"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "The Orpheum", want: "the orpheum"},
		{in: "  The   ORPHEUM ", want: "the orpheum"},
		{in: "Théâtre Saint-Denis", want: "theatre saint denis"},
		{in: "Beyoncé & the Café", want: "beyonce the cafe"},
		{in: "Guns N' Roses", want: "guns n roses"},
		{in: "Sigur Rós", want: "sigur ros"},
	}

	for _, tc := range tests {
		if got := Key(tc.in); got != tc.want {
			t.Errorf("Key(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("Boygenius", "boygenius"); got != 1 {
		t.Fatalf("case-only difference should be identical, got %v", got)
	}
	if got := Similarity("Sigur Rós", "Sigur Ros"); got != 1 {
		t.Fatalf("diacritic-only difference should be identical, got %v", got)
	}
	if got := Similarity("", "anything"); got != 0 {
		t.Fatalf("empty input should score 0, got %v", got)
	}

	// "phoebe bridgers" vs "phoebe bridger": one deletion over 15 runes
	got := Similarity("Phoebe Bridgers", "Phoebe Bridger")
	want := 1 - 1.0/15
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Similarity = %v, want %v", got, want)
	}

	if Similarity("Radiohead", "Metallica") > 0.3 {
		t.Fatalf("unrelated names should score low")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
	}
	for _, tc := range tests {
		if got := levenshtein([]rune(tc.a), []rune(tc.b)); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
