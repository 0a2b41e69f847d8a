// Package config loads the process configuration from built-in
// defaults, an optional JSON file, then environment variables, in that
// order of increasing precedence, mirroring the original's
// dotted-property / upper-snake-env-var convention.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration wraps time.Duration so it reads and writes as a plain
// string ("10m", "1h30m") in the JSON config file, the same
// representation environment variables already use via
// time.ParseDuration, rather than the raw-nanosecond integer
// encoding/json gives time.Duration by default.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds every tunable the engine and its adapters need.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	HTTPHostAliases []string `json:"http-host-aliases"`

	KeyLength        int      `json:"key-length"`
	ExecutorPoolSize int      `json:"executor-pool-size"`
	RequestTimeout   Duration `json:"request-timeout"`

	DataDir   string `json:"data-dir"`
	IndexPath string `json:"index-path"`

	MetricsEnabled bool `json:"metrics"`

	S3Enabled         bool     `json:"s3"`
	S3Bucket          string   `json:"s3-bucket"`
	S3ExpiryThreshold Duration `json:"s3-expiry-threshold"`
	S3SizeThreshold   int64    `json:"s3-size-threshold"`

	MaxContentLength           int64               `json:"max-content-length"`
	MaxContentLifetime         Duration            `json:"max-content-lifetime"`
	MaxContentLifetimeByUA     map[string]Duration `json:"max-content-lifetime-user-agents"`
	MaxContentLifetimeByOrigin map[string]Duration `json:"max-content-lifetime-origins"`
	MaxContentLifetimeByHost   map[string]Duration `json:"max-content-lifetime-hosts"`

	CacheExpiry  Duration `json:"cache-expiry"`
	CacheMaxSize int64    `json:"cache-max-size"`

	RateLimitAPIKeys []string `json:"ratelimit-api-keys"`
	AdminAPIKeys     []string `json:"admin-api-keys"`

	PostRateLimit    int      `json:"post-rate-limit"`
	PostRatePeriod   Duration `json:"post-rate-limit-period"`
	UpdateRateLimit  int      `json:"update-rate-limit"`
	UpdateRatePeriod Duration `json:"update-rate-limit-period"`
	ReadRateLimit    int      `json:"read-rate-limit"`
	ReadRatePeriod   Duration `json:"read-rate-limit-period"`

	ReadNotFoundRateLimit  int      `json:"read-notfound-rate-limit"`
	ReadNotFoundRatePeriod Duration `json:"read-notfound-rate-limit-period"`
	ReadNotFoundMultiplier float64  `json:"read-notfound-rate-limit-multiplier"`
	ReadNotFoundMax        Duration `json:"read-notfound-rate-limit-max"`

	HousekeeperInterval Duration `json:"housekeeper-interval"`
	AuditEveryNTicks    int      `json:"audit-every-n-ticks"`

	LoggingHTTPURI         string   `json:"logging-http-uri"`
	LoggingHTTPFlushPeriod Duration `json:"logging-http-flush-period"`
}

// Default returns the built-in defaults, matching the reference
// service's out-of-the-box configuration.
func Default() Config {
	return Config{
		Host:                   "0.0.0.0",
		Port:                   8080,
		KeyLength:              7,
		ExecutorPoolSize:       16,
		RequestTimeout:         Duration(30 * time.Second),
		DataDir:                "./data",
		IndexPath:              "./data/index.db",
		MetricsEnabled:         true,
		MaxContentLength:       10 << 20,
		MaxContentLifetime:     0, // never, by default
		CacheExpiry:            Duration(10 * time.Minute),
		CacheMaxSize:           200 << 20,
		PostRateLimit:          30,
		PostRatePeriod:         Duration(time.Minute),
		UpdateRateLimit:        60,
		UpdateRatePeriod:       Duration(time.Minute),
		ReadRateLimit:          1000,
		ReadRatePeriod:         Duration(time.Minute),
		ReadNotFoundRateLimit:  20,
		ReadNotFoundRatePeriod: Duration(time.Minute),
		ReadNotFoundMultiplier: 2,
		ReadNotFoundMax:        Duration(time.Hour),
		HousekeeperInterval:    Duration(5 * time.Minute),
		AuditEveryNTicks:       12,
		LoggingHTTPFlushPeriod: Duration(30 * time.Second),
	}
}

// envKey is the single source-of-truth table mapping each field's JSON
// name to its environment variable name: BYTEBIN_ + upper-snake-case.
func envKey(jsonName string) string {
	return "BYTEBIN_" + strings.ToUpper(strings.ReplaceAll(jsonName, "-", "_"))
}

// Load builds a Config from defaults, overridden by the JSON file at
// path (if non-empty and present), then by environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyJSONFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyJSONFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	lookup := os.LookupEnv

	if v, ok := lookup(envKey("host")); ok {
		cfg.Host = v
	}
	if v, ok := lookup(envKey("port")); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey("port"), err)
		}
		cfg.Port = n
	}
	if v, ok := lookup(envKey("http-host-aliases")); ok {
		cfg.HTTPHostAliases = splitNonEmpty(v)
	}
	if v, ok := lookup(envKey("key-length")); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey("key-length"), err)
		}
		cfg.KeyLength = n
	}
	if v, ok := lookup(envKey("data-dir")); ok {
		cfg.DataDir = v
	}
	if v, ok := lookup(envKey("index-path")); ok {
		cfg.IndexPath = v
	}
	if v, ok := lookup(envKey("metrics")); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey("metrics"), err)
		}
		cfg.MetricsEnabled = b
	}
	if v, ok := lookup(envKey("s3")); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey("s3"), err)
		}
		cfg.S3Enabled = b
	}
	if v, ok := lookup(envKey("s3-bucket")); ok {
		cfg.S3Bucket = v
	}
	if v, ok := lookup(envKey("s3-size-threshold")); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey("s3-size-threshold"), err)
		}
		cfg.S3SizeThreshold = n
	}
	if err := applyDuration(lookup, "s3-expiry-threshold", &cfg.S3ExpiryThreshold); err != nil {
		return err
	}
	if v, ok := lookup(envKey("max-content-length")); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey("max-content-length"), err)
		}
		cfg.MaxContentLength = n
	}
	if err := applyDuration(lookup, "max-content-lifetime", &cfg.MaxContentLifetime); err != nil {
		return err
	}
	if err := applyDuration(lookup, "cache-expiry", &cfg.CacheExpiry); err != nil {
		return err
	}
	if v, ok := lookup(envKey("cache-max-size")); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey("cache-max-size"), err)
		}
		cfg.CacheMaxSize = n
	}
	if v, ok := lookup(envKey("ratelimit-api-keys")); ok {
		cfg.RateLimitAPIKeys = splitNonEmpty(v)
	}
	if v, ok := lookup(envKey("admin-api-keys")); ok {
		cfg.AdminAPIKeys = splitNonEmpty(v)
	}
	if err := applyRatePair(lookup, "post-rate-limit", &cfg.PostRateLimit, &cfg.PostRatePeriod); err != nil {
		return err
	}
	if err := applyRatePair(lookup, "update-rate-limit", &cfg.UpdateRateLimit, &cfg.UpdateRatePeriod); err != nil {
		return err
	}
	if err := applyRatePair(lookup, "read-rate-limit", &cfg.ReadRateLimit, &cfg.ReadRatePeriod); err != nil {
		return err
	}
	if v, ok := lookup(envKey("logging-http-uri")); ok {
		cfg.LoggingHTTPURI = v
	}
	if err := applyDuration(lookup, "logging-http-flush-period", &cfg.LoggingHTTPFlushPeriod); err != nil {
		return err
	}
	return nil
}

func applyDuration(lookup func(string) (string, bool), jsonName string, field *Duration) error {
	v, ok := lookup(envKey(jsonName))
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", envKey(jsonName), err)
	}
	*field = Duration(d)
	return nil
}

func applyRatePair(lookup func(string) (string, bool), jsonBase string, limit *int, period *Duration) error {
	if v, ok := lookup(envKey(jsonBase)); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", envKey(jsonBase), err)
		}
		*limit = n
	}
	return applyDuration(lookup, jsonBase+"-period", period)
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
