package kind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, "enumerateonly", NormalizeKind("Enumerate-Only"))
	assert.Equal(t, "enumerateonly", NormalizeKind("enumerate_only"))
	assert.Equal(t, "enumerateonly", NormalizeKind(" enumerate only "))
	assert.Equal(t, "", NormalizeKind("-_ "))
}

func TestLookup(t *testing.T) {
	table := map[string]int{
		"EnumerateOnly": 1,
		"Extract":       2,
	}

	value, ok := Lookup("enumerate-only", table)
	assert.True(t, ok)
	assert.Equal(t, 1, value)

	value, ok = Lookup("EXTRACT", table)
	assert.True(t, ok)
	assert.Equal(t, 2, value)

	value, ok = Lookup("delete", table)
	assert.False(t, ok)
	assert.Equal(t, 0, value)
}
