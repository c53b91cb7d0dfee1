package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchQuery(t *testing.T) {
	req := require.New(t)

	q := NewSearchQuery("  Ali, bo! --group ")
	req.Equal([]string{"ali", "bo"}, q.Terms)
	req.Equal(GroupOnly, q.Kind)
	req.False(q.IsEmpty())

	req.True(NewSearchQuery("   ").IsEmpty())
	req.Equal(DirectOnly, NewSearchQuery("--direct").Kind)
}
