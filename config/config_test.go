package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var knownKeys = []string{
	"LISTEN_ADDR", "PORT", "ADMIN_ADDR", "ROUTES", "ROUTES_FILE",
	"RATE_ENABLED", "RATE_ALGORITHM", "RATE_WINDOW", "RATE_MAX_REQUESTS", "RATE_MAX_KEYS",
	"RATE_IDLE_TTL", "RATE_CLEANUP_EVERY", "RATE_KEY_HEADER", "TRUST_XFF", "ADD_RATELIMIT_HEADERS",
	"REQUEST_TIMEOUT", "CONCURRENCY_MAX", "CONCURRENCY_TIMEOUT",
	"CORS_ENABLED", "CORS_ALLOWED_ORIGINS", "CORS_MAX_AGE", "SECURITY_HEADERS",
	"RATE_STATS_ENABLED", "RATE_STATS_REDIS_ADDR", "RATE_STATS_PREFIX", "RATE_STATS_TTL",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "LOG_MAX_SIZE",
}

// clearEnv isola o teste de variáveis já definidas no ambiente.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range knownKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROUTES", "/users=http://users.internal/users, /auth=http://auth.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.Equal(t, "", cfg.AdminAddr)
	assert.True(t, cfg.RateEnabled)
	assert.Equal(t, AlgorithmFixed, cfg.RateAlgorithm)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.Equal(t, 100, cfg.RateMaxRequests)
	assert.Equal(t, 10000, cfg.RateMaxKeys)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0, cfg.ConcurrencyMax)
	assert.False(t, cfg.Stats.Enabled)
	assert.Equal(t, "gateway:stats", cfg.Stats.Prefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Log.MaxSize)
	assert.True(t, cfg.CORS.Enabled)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.SecurityHeaders)

	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, Route{Prefix: "/users", Target: "http://users.internal/users"}, cfg.Routes[0])
	assert.Equal(t, Route{Prefix: "/auth", Target: "http://auth.internal"}, cfg.Routes[1])
}

func TestLoad_CORSAndSecurityHeaders(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROUTES", "/users=http://users.internal")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example, ,https://admin.example ")
	t.Setenv("CORS_MAX_AGE", "600")
	t.Setenv("SECURITY_HEADERS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 600, cfg.CORS.MaxAge)
	assert.False(t, cfg.SecurityHeaders)

	t.Setenv("CORS_MAX_AGE", "-1")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS_MAX_AGE")
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROUTES", "/users=http://users.internal")
	t.Setenv("PORT", "8081")
	t.Setenv("RATE_WINDOW", "1000")
	t.Setenv("RATE_MAX_REQUESTS", "2")
	t.Setenv("RATE_ALGORITHM", "TOKEN")
	t.Setenv("REQUEST_TIMEOUT", "250ms")
	t.Setenv("CONCURRENCY_MAX", "50")
	t.Setenv("ADMIN_ADDR", "127.0.0.1:9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.ListenAddr)
	assert.Equal(t, time.Second, cfg.RateWindow)
	assert.Equal(t, 2, cfg.RateMaxRequests)
	assert.Equal(t, AlgorithmToken, cfg.RateAlgorithm)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, 50, cfg.ConcurrencyMax)
	assert.Equal(t, "127.0.0.1:9090", cfg.AdminAddr)

	t.Setenv("LISTEN_ADDR", "0.0.0.0:7000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.ListenAddr)
}

func TestLoad_RoutesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routes:
  - route: /users
    target: http://users.internal/api/users
    preserve_base_path: true
  - route: /auth/
    target: https://auth.internal
`), 0o600))
	t.Setenv("ROUTES_FILE", path)
	t.Setenv("ROUTES", "/payments=http://payments.internal")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Routes, 3)
	assert.True(t, cfg.Routes[0].PreserveBasePath)

	bindings, err := cfg.Bindings()
	require.NoError(t, err)
	assert.Equal(t, "/users", bindings[0].Prefix)
	assert.Equal(t, "/auth", bindings[1].Prefix)
	assert.Equal(t, "payments.internal", bindings[2].Target.Host)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no routes", map[string]string{}, "at least one route"},
		{"bad route syntax", map[string]string{"ROUTES": "/users"}, "expected prefix=target"},
		{"relative prefix", map[string]string{"ROUTES": "users=http://u"}, "must start with /"},
		{"bad target", map[string]string{"ROUTES": "/users=ftp://u"}, "scheme"},
		{"bad window", map[string]string{"ROUTES": "/u=http://u", "RATE_WINDOW": "soon"}, "RATE_WINDOW"},
		{"zero window", map[string]string{"ROUTES": "/u=http://u", "RATE_WINDOW": "0"}, "RATE_WINDOW must be > 0"},
		{"zero max", map[string]string{"ROUTES": "/u=http://u", "RATE_MAX_REQUESTS": "0"}, "RATE_MAX_REQUESTS"},
		{"bad algorithm", map[string]string{"ROUTES": "/u=http://u", "RATE_ALGORITHM": "sliding"}, "RATE_ALGORITHM"},
		{"bad bool", map[string]string{"ROUTES": "/u=http://u", "RATE_ENABLED": "maybe"}, "RATE_ENABLED"},
		{"stats without redis", map[string]string{"ROUTES": "/u=http://u", "RATE_STATS_ENABLED": "true"}, "RATE_STATS_REDIS_ADDR"},
		{"missing file", map[string]string{"ROUTES_FILE": "/does/not/exist.yaml"}, "ROUTES_FILE"},
		{"bad log level", map[string]string{"ROUTES": "/u=http://u", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseMegabytes(t *testing.T) {
	tests := map[string]int{
		"100":   100,
		"512MB": 512,
		"1GiB":  1024,
		"100KB": 1,
	}
	for in, want := range tests {
		got, err := ParseMegabytes(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMegabytes("lots")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("1500")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = ParseDuration("2m")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	_, err = ParseDuration("1 minute")
	assert.Error(t, err)
}
