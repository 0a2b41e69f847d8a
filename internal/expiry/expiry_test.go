package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolvePrecedence(t *testing.T) {
	p := &Policy{
		Default:   10 * time.Minute,
		UserAgent: map[string]time.Duration{"bot": 1 * time.Minute},
		Origin:    map[string]time.Duration{"https://example.com": 2 * time.Minute},
		Host:      map[string]time.Duration{"example.com": 3 * time.Minute},
	}
	require.Equal(t, 1*time.Minute, p.Resolve("bot", "https://example.com", "example.com"))
	require.Equal(t, 2*time.Minute, p.Resolve("other", "https://example.com", "example.com"))
	require.Equal(t, 3*time.Minute, p.Resolve("other", "other", "example.com"))
	require.Equal(t, 10*time.Minute, p.Resolve("other", "other", "other"))
}

func TestExpiryNeverOnNonPositive(t *testing.T) {
	p := &Policy{Default: 0}
	got := p.Expiry(time.Now(), "ua", "origin", "host")
	require.True(t, IsNever(got))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	require.False(t, IsExpired(Never, now))
	require.True(t, IsExpired(now.Add(-time.Minute), now))
	require.False(t, IsExpired(now.Add(time.Minute), now))
}
