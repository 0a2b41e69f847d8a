package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateLengthAndShape(t *testing.T) {
	g := New(7)
	for i := 0; i < 50; i++ {
		k, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, k, 7)
		require.True(t, Valid(k), "key %q should be valid", k)
	}
}

func TestGenerateDefaultsOnBadLength(t *testing.T) {
	g := New(0)
	k, err := g.Generate()
	require.NoError(t, err)
	require.Len(t, k, 7)
}

func TestValid(t *testing.T) {
	require.True(t, Valid("abcDEF123"))
	require.False(t, Valid(""))
	require.False(t, Valid("has space"))
	require.False(t, Valid("has/slash"))
	require.False(t, Valid("has.dot"))
}
