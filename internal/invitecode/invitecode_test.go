package invitecode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlphabetExcludesConfusables(t *testing.T) {
	assert.Len(t, Alphabet, 32)
	for _, r := range "01IO" {
		assert.NotContains(t, Alphabet, string(r))
	}
}

func TestGenerateProducesValidCodes(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := Generate()
		assert.NoError(t, err)
		assert.NoError(t, Validate(code))
		seen[code] = struct{}{}
	}
	// 200 draws from a ~1e9 space should not collide.
	assert.Greater(t, len(seen), 190)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC234", Normalize("  abc234 "))
	assert.Equal(t, "XYZ789", Normalize("xyz789"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("ABC234"))

	assert.ErrorIs(t, Validate(""), ErrInvalidCode)
	assert.ErrorIs(t, Validate("ABC23"), ErrInvalidCode)
	assert.ErrorIs(t, Validate("ABC2345"), ErrInvalidCode)
	assert.ErrorIs(t, Validate("ABC23O"), ErrInvalidCode) // confusable O
	assert.ErrorIs(t, Validate("ABC231"), ErrInvalidCode) // confusable 1
	assert.ErrorIs(t, Validate("abc234"), ErrInvalidCode) // not normalized
	assert.ErrorIs(t, Validate(strings.Repeat("A", 6)[:5]+"!"), ErrInvalidCode)
}
