// Package plate turns noisy per-frame OCR output into a stable stream of
// validated, deduplicated plate records.
package plate

import "strings"

// Grammar is a fixed positional plate pattern: 'L' where a letter is
// expected, 'D' where a digit is expected. Spaces in the source pattern are
// ignored, so "LL DD LL DDDD" and "LLDDLLDDDD" are the same grammar.
type Grammar string

// ParseGrammar normalizes a pattern string into a Grammar.
func ParseGrammar(pattern string) Grammar {
	return Grammar(strings.ReplaceAll(strings.ToUpper(pattern), " ", ""))
}

func (g Grammar) Len() int { return len(g) }

// Matches reports whether every position of text satisfies the expected
// character class. Length must match exactly.
func (g Grammar) Matches(text string) bool {
	if len(text) != len(g) {
		return false
	}
	for i := 0; i < len(g); i++ {
		if !classSatisfied(g[i], text[i]) {
			return false
		}
	}
	return true
}

func classSatisfied(class, ch byte) bool {
	switch class {
	case 'L':
		return ch >= 'A' && ch <= 'Z'
	case 'D':
		return ch >= '0' && ch <= '9'
	}
	return false
}

// ConfusionTable maps visually-confusable characters in both directions,
// e.g. O→0 and 0→O. Lookups are position-class guarded by Correct.
type ConfusionTable map[byte]byte

// NewConfusionTable builds a bidirectional table from letter→digit pairs.
func NewConfusionTable(pairs map[string]string) ConfusionTable {
	t := make(ConfusionTable, len(pairs)*2)
	for k, v := range pairs {
		if len(k) != 1 || len(v) != 1 {
			continue
		}
		t[k[0]] = v[0]
		t[v[0]] = k[0]
	}
	return t
}

// Correct applies confusion substitutions to text against the grammar. A
// substitution fires only where the original character violates the expected
// class and the substitute satisfies it; characters that already satisfy
// their position are never touched. The result is the corrected text and
// whether it fully matches the grammar.
func (t ConfusionTable) Correct(text string, g Grammar) (string, bool) {
	if len(text) != g.Len() {
		return text, false
	}
	out := []byte(text)
	ok := true
	for i := 0; i < len(out); i++ {
		if classSatisfied(g[i], out[i]) {
			continue
		}
		if sub, found := t[out[i]]; found && classSatisfied(g[i], sub) {
			out[i] = sub
			continue
		}
		ok = false
	}
	return string(out), ok
}

// Normalize uppercases the text and strips everything outside the plate
// alphabet (A-Z, 0-9): whitespace, dashes, dots and any OCR punctuation.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToUpper(text) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}
