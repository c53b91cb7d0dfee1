package moderation

import (
	"fmt"
	"strings"
	"testing"
)

// dictionary returns n distinct words long enough not to collide with plain english.
func dictionary(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("forbidden%dword", i)
	}
	return words
}

func BenchmarkNewModerator(b *testing.B) {
	words := dictionary(10_000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NewModerator(words, mask); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkModerator_Censor(b *testing.B) {
	mod, err := NewModerator(dictionary(10_000), mask)
	if err != nil {
		b.Fatal(err)
	}
	message := strings.Repeat("see you at the station, forbidden42word! ", 20)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mod.Censor(message)
	}
}
