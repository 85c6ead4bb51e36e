// Package invitecode generates and validates short human-enterable join
// codes for circles.
package invitecode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// Alphabet is the 32-symbol code alphabet. Visually confusable symbols
// (0/O, 1/I) are excluded so codes survive being read aloud or typed
// from a screenshot.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Length is the fixed invite code length.
const Length = 6

// ErrInvalidCode indicates a code that cannot possibly resolve to a
// circle. Format validation happens before any store lookup so callers
// cannot distinguish unknown codes from malformed ones by error shape.
var ErrInvalidCode = errors.New("invalid_code")

// Generate draws a random code from the alphabet.
func Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}

// Normalize trims surrounding whitespace and uppercases a user-entered
// code. Codes are case-insensitive on input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate reports whether a normalized code has the right length and
// alphabet. It never consults the store.
func Validate(code string) error {
	if len(code) != Length {
		return ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return ErrInvalidCode
		}
	}
	return nil
}
