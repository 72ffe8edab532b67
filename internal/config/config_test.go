package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"EMS_SERVER_ADDR",
	"EMS_DEBUG",
	"EMS_SUBGRAPHS",
	"EMS_AUTH_JWT_SECRET",
	"EMS_AUTH_JWKS_FILE",
	"EMS_STARTUP_TIMEOUT",
	"EMS_DISPATCH_TIMEOUT",
	"EMS_REQUEST_TIMEOUT",
}

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	for _, k := range configEnvVars {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		viper.Reset()
		for _, k := range configEnvVars {
			os.Unsetenv(k)
		}
	})
}

// TestLoad_Defaults verifies the local development defaults once a secret is present
func TestLoad_Defaults(t *testing.T) {
	resetConfig(t)
	os.Setenv("EMS_AUTH_JWT_SECRET", "dev-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.ServerAddr)
	assert.False(t, cfg.Debug)
	assert.Equal(t, DefaultSubgraphs(), cfg.Subgraphs)
	assert.Equal(t, []string{"auth", "employee", "attendance"}, cfg.SubgraphNames())
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Startup.Timeout)
	assert.Equal(t, time.Duration(0), cfg.Startup.SettleDelay)
	assert.Equal(t, 15*time.Second, cfg.Dispatch.Timeout)
	assert.True(t, cfg.EnablePlayground)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBytes)
	assert.Equal(t, time.Minute, cfg.RequestTimeout)
	assert.Equal(t, "emsgateway", cfg.Observability.ServiceName)
}

// TestLoad_WithEnvironmentVariables tests that EMS_ prefixed environment variables work
func TestLoad_WithEnvironmentVariables(t *testing.T) {
	resetConfig(t)

	os.Setenv("EMS_SERVER_ADDR", "0.0.0.0:9000")
	os.Setenv("EMS_DEBUG", "true")
	os.Setenv("EMS_SUBGRAPHS", "auth=http://auth:4001/graphql, employee=http://employee:4004/graphql")
	os.Setenv("EMS_AUTH_JWT_SECRET", "env-secret")
	os.Setenv("EMS_STARTUP_TIMEOUT", "5s")
	os.Setenv("EMS_DISPATCH_TIMEOUT", "2s")
	os.Setenv("EMS_REQUEST_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.Startup.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	require.Len(t, cfg.Subgraphs, 2)
	assert.Equal(t, SubgraphConfig{Name: "auth", URL: "http://auth:4001/graphql"}, cfg.Subgraphs[0])
	assert.Equal(t, SubgraphConfig{Name: "employee", URL: "http://employee:4004/graphql"}, cfg.Subgraphs[1])
}

// TestLoad_WithConfigFile tests config file loading
func TestLoad_WithConfigFile(t *testing.T) {
	resetConfig(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "emsgateway.yaml")

	configContent := `
server_addr: "127.0.0.1:8888"
debug: true
subgraphs:
  - name: auth
    url: http://file-auth:4001/graphql
  - name: attendance
    url: http://file-attendance:4005/graphql
auth:
  jwt_secret: "file-secret"
  issuer: "ems"
startup:
  settle_delay: 2s
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8888", cfg.ServerAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "ems", cfg.Auth.Issuer)
	assert.Equal(t, 2*time.Second, cfg.Startup.SettleDelay)
	assert.Equal(t, []string{"auth", "attendance"}, cfg.SubgraphNames())
	assert.Equal(t, "http://file-attendance:4005/graphql", cfg.Subgraphs[1].URL)
}

// TestLoad_EnvOverridesFile verifies precedence of environment over config file
func TestLoad_EnvOverridesFile(t *testing.T) {
	resetConfig(t)

	configPath := filepath.Join(t.TempDir(), "emsgateway.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server_addr: \"file:1\"\nauth:\n  jwt_secret: file\n"), 0644))
	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())

	os.Setenv("EMS_SERVER_ADDR", "env:2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env:2", cfg.ServerAddr)
	assert.Equal(t, "file", cfg.Auth.JWTSecret)
}

func TestLoad_MissingKeyMaterial(t *testing.T) {
	resetConfig(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestParseSubgraphList(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []SubgraphConfig
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{
			name:  "single",
			input: "auth=http://localhost:4001/graphql",
			want:  []SubgraphConfig{{Name: "auth", URL: "http://localhost:4001/graphql"}},
		},
		{
			name:  "trailing comma and spaces",
			input: " a=http://a/graphql , b=http://b/graphql ,",
			want: []SubgraphConfig{
				{Name: "a", URL: "http://a/graphql"},
				{Name: "b", URL: "http://b/graphql"},
			},
		},
		{name: "missing separator", input: "auth", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubgraphList(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerAddr: ":4000",
			Subgraphs:  DefaultSubgraphs(),
			Auth:       AuthConfig{JWTSecret: "s"},
			Startup: StartupConfig{
				Timeout:        time.Second,
				InitialBackoff: 10 * time.Millisecond,
				MaxBackoff:     100 * time.Millisecond,
			},
			Dispatch:        DispatchConfig{Timeout: time.Second},
			MaxRequestBytes: 1024,
			RequestTimeout:  time.Second,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"no subgraphs", func(c *Config) { c.Subgraphs = nil }, "at least one subgraph"},
		{"empty name", func(c *Config) { c.Subgraphs[0].Name = "" }, "has no name"},
		{"duplicate name", func(c *Config) { c.Subgraphs[1].Name = "auth" }, "duplicate subgraph name"},
		{"relative url", func(c *Config) { c.Subgraphs[0].URL = "/graphql" }, "invalid url"},
		{"bad scheme", func(c *Config) { c.Subgraphs[0].URL = "ftp://x/graphql" }, "invalid url"},
		{"no key material", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"zero startup timeout", func(c *Config) { c.Startup.Timeout = 0 }, "startup.timeout"},
		{"inverted backoff", func(c *Config) { c.Startup.MaxBackoff = time.Millisecond }, "backoff"},
		{"zero dispatch timeout", func(c *Config) { c.Dispatch.Timeout = 0 }, "dispatch.timeout"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
