package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog, many times over")
	compressed, err := Compress(original)
	require.NoError(t, err)
	require.NotEqual(t, original, compressed)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, original, decompressed)
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("not gzip data"))
	require.Error(t, err)
	var codecErr *Error
	require.ErrorAs(t, err, &codecErr)
	require.Equal(t, "decompress", codecErr.Stage)
}
