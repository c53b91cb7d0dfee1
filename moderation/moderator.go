package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// leet maps look-alike characters back to the letter they stand for.
var leet = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

// Moderator masks the words of one dictionary inside chat messages.
// Matching runs on a folded copy of the text (leet mapped back, lower case,
// punctuation, spaces and symbols dropped), so "B.4.d.g.€r" still hits "badger".
type Moderator struct {
	matcher *goahocorasick.Machine
	mask    rune
}

// Match is one dictionary hit. Start and End are rune offsets in the original text, End excluded.
type Match struct {
	Word       string
	Start, End int
}

// NewModerator builds the automaton. Words folding to nothing are dropped.
func NewModerator(words []string, mask rune) (Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if folded, _ := fold([]rune(word)); len(folded) > 0 {
			patterns = append(patterns, folded)
		}
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, mask: mask}, nil
}

// Find returns the hits in order of appearance.
func (m Moderator) Find(text []rune) []Match {
	folded, origin := fold(text)
	if len(folded) == 0 {
		return nil
	}
	var matches []Match
	for _, term := range m.matcher.MultiPatternSearch(folded, false) {
		last := term.Pos + len(term.Word) - 1
		if term.Pos < 0 || last >= len(origin) {
			continue
		}
		matches = append(matches, Match{Word: string(term.Word), Start: origin[term.Pos], End: origin[last] + 1})
	}
	return matches
}

// Censor masks every hit, noise between the letters of a hit included, and returns the matched words.
func (m Moderator) Censor(content string) (string, []string) {
	text := []rune(content)
	matches := m.Find(text)
	if len(matches) == 0 {
		return content, nil
	}
	words := make([]string, 0, len(matches))
	for _, match := range matches {
		for i := match.Start; i < match.End; i++ {
			text[i] = m.mask
		}
		words = append(words, match.Word)
	}
	return string(text), words
}

// fold returns the searchable form of text and, for each folded rune, its index in text.
func fold(text []rune) ([]rune, []int) {
	folded := make([]rune, 0, len(text))
	origin := make([]int, 0, len(text))
	for i, r := range text {
		if mapped, ok := leet[r]; ok {
			r = mapped
		}
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		folded = append(folded, unicode.ToLower(r))
		origin = append(origin, i)
	}
	return folded, origin
}
