package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Len(t, next, 26)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestShort(t *testing.T) {
	t.Parallel()

	hex := regexp.MustCompile(`^[0-9a-f]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s := Short()
		assert.Regexp(t, hex, s)
		assert.False(t, seen[s], "duplicate token %s", s)
		seen[s] = true
	}
}
