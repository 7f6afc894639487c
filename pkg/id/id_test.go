package id

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestID(t *testing.T) {
	t.Run("NoParamsCreatesRandomID", func(t *testing.T) {
		assert.NotEqual(t, ID(), ID())
	})

	t.Run("SamePartsSameID", func(t *testing.T) {
		assert.Equal(t, ID("SYSVOL", "corp.local/scripts/a.bat"), ID("SYSVOL", "corp.local/scripts/a.bat"))
	})

	t.Run("PartBoundariesMatter", func(t *testing.T) {
		assert.NotEqual(t, ID("ab", "c"), ID("a", "bc"))
	})

	t.Run("IDsAreSameLength", func(t *testing.T) {
		assert.Equal(t, 16, len(ID()))
		assert.Equal(t, 16, len(ID("foo")))
		assert.Equal(t, 16, len(ID("foo", "bar")))
	})

	t.Run("IDsAreHexadecimal", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			assert.Regexp(t, `^[0-9a-f]{16}$`, ID())
			assert.Regexp(t, `^[0-9a-f]{16}$`, ID(strconv.Itoa(i), ID()))
		}
	})
}
