package plate

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"mh04gj7806", "MH04GJ7806"},
		{" MH 04-GJ.7806 ", "MH04GJ7806"},
		{"DL5CAB1234", "DL5CAB1234"},
		{"", ""},
		{"--..  ", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestGrammarMatches(t *testing.T) {
	g := ParseGrammar("LL DD LL DDDD")
	if g.Len() != 10 {
		t.Fatalf("Len = %d, want 10 (spaces ignored)", g.Len())
	}
	cases := []struct {
		text string
		want bool
	}{
		{"MH04GJ7806", true},
		{"MHO4GJ7806", false}, // letter O at a digit position
		{"MH04GJ780", false},  // too short
		{"MH04GJ78061", false},
		{"0H04GJ7806", false}, // digit at a letter position
	}
	for _, c := range cases {
		if got := g.Matches(c.text); got != c.want {
			t.Errorf("Matches(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func defaultTable() ConfusionTable {
	return NewConfusionTable(map[string]string{
		"O": "0", "I": "1", "B": "8", "S": "5", "Z": "2", "G": "6",
	})
}

func TestCorrectSubstitutesOnlyViolatingPositions(t *testing.T) {
	g := ParseGrammar("LLDDLLDDDD")
	tbl := defaultTable()

	got, ok := tbl.Correct("MHO4GJ7806", g)
	if !ok || got != "MH04GJ7806" {
		t.Fatalf("Correct = %q, %v; want MH04GJ7806, true", got, ok)
	}

	// A valid plate must come back untouched even though it contains
	// confusable characters (O at a letter position, 0 at digit positions).
	valid := "OB12GS3450"
	got, ok = tbl.Correct(valid, g)
	if !ok || got != valid {
		t.Fatalf("Correct(%q) = %q, %v; want unchanged, true", valid, got, ok)
	}
}

func TestCorrectIdempotent(t *testing.T) {
	g := ParseGrammar("LLDDLLDDDD")
	tbl := defaultTable()

	once, ok := tbl.Correct("MHO4GJ78O6", g)
	if !ok {
		t.Fatalf("first pass did not validate: %q", once)
	}
	twice, ok := tbl.Correct(once, g)
	if !ok || twice != once {
		t.Fatalf("second pass changed text: %q -> %q", once, twice)
	}
}

func TestCorrectBothDirections(t *testing.T) {
	g := ParseGrammar("LLDD")
	tbl := defaultTable()

	// 8 at a letter position becomes B, O at a digit position becomes 0.
	got, ok := tbl.Correct("A8O1", g)
	if !ok || got != "AB01" {
		t.Fatalf("Correct = %q, %v; want AB01, true", got, ok)
	}
}

func TestCorrectUnfixable(t *testing.T) {
	g := ParseGrammar("LLDD")
	tbl := defaultTable()

	// 7 at a letter position has no confusion mapping.
	got, ok := tbl.Correct("A712", g)
	if ok {
		t.Fatalf("Correct(%q) validated unexpectedly as %q", "A712", got)
	}
}
