// Package roomcode generates and validates the short codes that identify rooms.
// Codes double as bearer tokens, so they come from crypto/rand rather than a
// predictable PRNG.
package roomcode

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

const (
	// Length is the fixed room code length.
	Length = 6

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Generate returns a 6-character code drawn uniformly from [A-Z0-9].
// Collision handling against the store is the caller's responsibility.
func Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	code := make([]byte, Length)
	for i, b := range buf {
		// 36 does not divide 256 evenly; resample the few biased values.
		for b >= 252 {
			var one [1]byte
			if _, err := rand.Read(one[:]); err != nil {
				return "", fmt.Errorf("generate room code: %w", err)
			}
			b = one[0]
		}
		code[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(code), nil
}

// Valid reports whether candidate is a well-formed room code.
func Valid(candidate string) bool {
	return codePattern.MatchString(candidate)
}

// Format renders a code for display as ABC-123. It refuses invalid input
// rather than silently reformatting garbage.
func Format(code string) (string, error) {
	if !Valid(code) {
		return "", fmt.Errorf("format room code %q: not a valid code", code)
	}
	return code[:3] + "-" + code[3:], nil
}

// NewPlayerID returns an opaque random identifier for a player.
func NewPlayerID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate player id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
