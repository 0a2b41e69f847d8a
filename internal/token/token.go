// Package token generates and validates the short random keys used to
// address stored content.
package token

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InvalidPattern matches any character not in the key alphabet. A path
// segment containing a match is rejected before it ever reaches the
// storage layer.
var InvalidPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Generator produces random alphanumeric keys of a fixed length.
type Generator struct {
	length int
}

// New returns a Generator producing keys of the given length. Lengths
// less than 1 fall back to 7, matching the original default.
func New(length int) *Generator {
	if length < 1 {
		length = 7
	}
	return &Generator{length: length}
}

// Generate returns a new random key using a cryptographically strong
// source of randomness.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Valid reports whether s is a non-empty key made up entirely of
// alphanumeric characters.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	return !InvalidPattern.MatchString(s)
}
