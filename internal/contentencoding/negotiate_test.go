package contentencoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAcceptEncodingEmpty(t *testing.T) {
	got := ParseAcceptEncoding("")
	require.Equal(t, map[string]bool{Identity: true}, got)
}

func TestParseAcceptEncodingWithQuality(t *testing.T) {
	got := ParseAcceptEncoding("gzip;q=1.0, br;q=0.8, x-gzip")
	require.True(t, got["gzip"])
	require.True(t, got["br"])
	require.True(t, got[Identity])
}

func TestParseContentEncodingStripsTrailingIdentity(t *testing.T) {
	require.Equal(t, []string{"gzip"}, ParseContentEncoding("gzip, identity"))
	require.Nil(t, ParseContentEncoding(""))
	require.Equal(t, []string{"gzip"}, ParseContentEncoding("x-gzip"))
}

func TestSatisfies(t *testing.T) {
	accepted := ParseAcceptEncoding("gzip")
	require.True(t, Satisfies(accepted, []string{"gzip"}))
	require.False(t, Satisfies(accepted, []string{"br"}))
	require.True(t, Satisfies(map[string]bool{"*": true}, []string{"zstd"}))
}
