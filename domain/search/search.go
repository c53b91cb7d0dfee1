package search

import (
	"strings"
	"unicode"
)

// Query is a chat list search.
// It decouples the raw input from the actual index requirements.
type Query struct {
	RawInput string   // The original input of the user
	Terms    []string // Lowercased prefixes matched against chat and participant names
	Kind     Kind     // Restricts to group or one-to-one chats
}

type Kind int

const (
	AnyKind Kind = iota
	GroupOnly
	DirectOnly
)

// NewSearchQuery parses a raw string with command-line style flags.
// Example: "ali bo --group"
func NewSearchQuery(input string) Query {
	query := Query{RawInput: input}
	for _, part := range strings.Fields(input) {
		switch strings.ToLower(part) {
		case "--group":
			query.Kind = GroupOnly
			continue
		case "--direct":
			query.Kind = DirectOnly
			continue
		}
		term := strings.ToLower(strings.TrimFunc(part, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if term != "" {
			query.Terms = append(query.Terms, term)
		}
	}
	return query
}

func (q Query) IsEmpty() bool {
	return len(q.Terms) == 0 && q.Kind == AnyKind
}
