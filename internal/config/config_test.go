package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 7, cfg.KeyLength)
	require.True(t, cfg.MetricsEnabled)
	require.Equal(t, 16, cfg.ExecutorPoolSize)
	require.Equal(t, Duration(30*time.Second), cfg.RequestTimeout)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("BYTEBIN_PORT", "9090")
	t.Setenv("BYTEBIN_KEY_LENGTH", "10")
	t.Setenv("BYTEBIN_METRICS", "false")
	t.Setenv("BYTEBIN_MAX_CONTENT_LIFETIME", "1h")
	t.Setenv("BYTEBIN_ADMIN_API_KEYS", "a,b,c")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 10, cfg.KeyLength)
	require.False(t, cfg.MetricsEnabled)
	require.Equal(t, Duration(time.Hour), cfg.MaxContentLifetime)
	require.Equal(t, []string{"a", "b", "c"}, cfg.AdminAPIKeys)
}

func TestJSONFileOverridesDefaultsButNotEnv(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 1234}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1234, cfg.Port)

	t.Setenv("BYTEBIN_PORT", "5555")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, 5555, cfg.Port)
}

func TestJSONFileLoadsExpiryOverrideMaps(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	body := `{
		"max-content-lifetime-user-agents": {"curl/8.0": "10m"},
		"max-content-lifetime-origins": {"https://example.com": "1h"},
		"max-content-lifetime-hosts": {"bytebin.internal": "24h"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Duration(10*time.Minute), cfg.MaxContentLifetimeByUA["curl/8.0"])
	require.Equal(t, Duration(time.Hour), cfg.MaxContentLifetimeByOrigin["https://example.com"])
	require.Equal(t, Duration(24*time.Hour), cfg.MaxContentLifetimeByHost["bytebin.internal"])
}
