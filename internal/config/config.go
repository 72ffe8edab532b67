package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "EMS"

// Config holds the gateway configuration. It is built once by Load and never
// mutated afterwards; components receive it by pointer.
type Config struct {
	// Server bind address (host:port)
	ServerAddr string

	// Enable debug logging
	Debug bool

	// Subgraphs is the ordered list of downstream GraphQL services. Order matters:
	// when two subgraphs publish an identical root field, the first one owns it.
	Subgraphs []SubgraphConfig

	// Auth holds the key material used to verify (and, for development, issue)
	// bearer credentials.
	Auth AuthConfig

	// Startup controls the readiness phase that precedes schema composition.
	Startup StartupConfig

	// Dispatch controls downstream subgraph requests.
	Dispatch DispatchConfig

	// HTTP surface options
	EnablePlayground bool
	CORSOrigins      []string
	MaxRequestBytes  int64

	// RequestTimeout bounds one /graphql execution. Dispatches still running
	// when it expires are reported as unavailable fields.
	RequestTimeout time.Duration

	// Observability configuration (OTLP tracing)
	Observability ObservabilityConfig
}

// SubgraphConfig names one downstream GraphQL service.
type SubgraphConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// AuthConfig holds verification settings for bearer tokens.
//
// At least one of JWTSecret (HMAC) or JWKSFile (public keys) must be set.
type AuthConfig struct {
	JWTSecret string
	JWKSFile  string
	Issuer    string
	Audience  string
	Leeway    time.Duration
	TokenTTL  time.Duration
}

// StartupConfig replaces the fixed "sleep then load" readiness approach with a
// bounded retry. SettleDelay is still honoured before the first attempt.
type StartupConfig struct {
	SettleDelay    time.Duration
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DispatchConfig controls requests sent to subgraphs.
type DispatchConfig struct {
	Timeout time.Duration
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPProtocol   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// DefaultSubgraphs mirrors the local development layout of the reference services.
func DefaultSubgraphs() []SubgraphConfig {
	return []SubgraphConfig{
		{Name: "auth", URL: "http://localhost:4001/graphql"},
		{Name: "employee", URL: "http://localhost:4004/graphql"},
		{Name: "attendance", URL: "http://localhost:4005/graphql"},
	}
}

func setDefaults() {
	viper.SetDefault("server_addr", ":4000")
	viper.SetDefault("debug", false)
	viper.SetDefault("auth.leeway", "0s")
	viper.SetDefault("auth.token_ttl", "168h")
	viper.SetDefault("startup.settle_delay", "0s")
	viper.SetDefault("startup.timeout", "30s")
	viper.SetDefault("startup.initial_backoff", "250ms")
	viper.SetDefault("startup.max_backoff", "5s")
	viper.SetDefault("dispatch.timeout", "15s")
	viper.SetDefault("enable_playground", true)
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("max_request_bytes", 1<<20)
	viper.SetDefault("request_timeout", "60s")
	viper.SetDefault("observability.otlp_protocol", "http/protobuf")
	viper.SetDefault("observability.service_name", "emsgateway")
	viper.SetDefault("observability.service_version", "dev")
	viper.SetDefault("observability.environment", "development")
}

// Load reads configuration from an optional config file (already read into
// viper by the caller), EMS_-prefixed environment variables and defaults.
// Environment variables take precedence over the config file.
func Load() (*Config, error) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	setDefaults()

	subgraphs, err := loadSubgraphs()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAddr: viper.GetString("server_addr"),
		Debug:      viper.GetBool("debug"),
		Subgraphs:  subgraphs,
		Auth: AuthConfig{
			JWTSecret: viper.GetString("auth.jwt_secret"),
			JWKSFile:  viper.GetString("auth.jwks_file"),
			Issuer:    viper.GetString("auth.issuer"),
			Audience:  viper.GetString("auth.audience"),
			Leeway:    viper.GetDuration("auth.leeway"),
			TokenTTL:  viper.GetDuration("auth.token_ttl"),
		},
		Startup: StartupConfig{
			SettleDelay:    viper.GetDuration("startup.settle_delay"),
			Timeout:        viper.GetDuration("startup.timeout"),
			InitialBackoff: viper.GetDuration("startup.initial_backoff"),
			MaxBackoff:     viper.GetDuration("startup.max_backoff"),
		},
		Dispatch: DispatchConfig{
			Timeout: viper.GetDuration("dispatch.timeout"),
		},
		EnablePlayground: viper.GetBool("enable_playground"),
		CORSOrigins:      viper.GetStringSlice("cors_origins"),
		MaxRequestBytes:  viper.GetInt64("max_request_bytes"),
		RequestTimeout:   viper.GetDuration("request_timeout"),
		Observability: ObservabilityConfig{
			OTLPEndpoint:   viper.GetString("observability.otlp_endpoint"),
			OTLPProtocol:   viper.GetString("observability.otlp_protocol"),
			OTLPInsecure:   viper.GetBool("observability.otlp_insecure"),
			ServiceName:    viper.GetString("observability.service_name"),
			ServiceVersion: viper.GetString("observability.service_version"),
			Environment:    viper.GetString("observability.environment"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSubgraphs accepts either a YAML list of {name, url} objects or, from the
// environment, a comma separated "name=url" list.
func loadSubgraphs() ([]SubgraphConfig, error) {
	raw := viper.Get("subgraphs")
	switch v := raw.(type) {
	case nil:
		return DefaultSubgraphs(), nil
	case string:
		// An unset --subgraphs flag surfaces as "".
		if strings.TrimSpace(v) == "" {
			return DefaultSubgraphs(), nil
		}
		return ParseSubgraphList(v)
	case []string:
		return ParseSubgraphList(strings.Join(v, ","))
	default:
		var subgraphs []SubgraphConfig
		if err := mapstructure.Decode(v, &subgraphs); err != nil {
			return nil, fmt.Errorf("decode subgraphs: %w", err)
		}
		return subgraphs, nil
	}
}

// ParseSubgraphList parses "auth=http://a/graphql,employee=http://e/graphql".
func ParseSubgraphList(s string) ([]SubgraphConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var subgraphs []SubgraphConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rawURL, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid subgraph entry %q (expected name=url)", entry)
		}
		subgraphs = append(subgraphs, SubgraphConfig{
			Name: strings.TrimSpace(name),
			URL:  strings.TrimSpace(rawURL),
		})
	}
	return subgraphs, nil
}

// Validate checks the configuration for startup-blocking mistakes.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server_addr is required")
	}

	if len(c.Subgraphs) == 0 {
		return fmt.Errorf("at least one subgraph is required")
	}
	seen := make(map[string]bool, len(c.Subgraphs))
	for i, sg := range c.Subgraphs {
		if sg.Name == "" {
			return fmt.Errorf("subgraph at index %d has no name", i)
		}
		if seen[sg.Name] {
			return fmt.Errorf("duplicate subgraph name %q", sg.Name)
		}
		seen[sg.Name] = true

		u, err := url.Parse(sg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("subgraph %q has invalid url %q", sg.Name, sg.URL)
		}
	}

	if c.Auth.JWTSecret == "" && c.Auth.JWKSFile == "" {
		return fmt.Errorf("auth.jwt_secret or auth.jwks_file is required")
	}
	if c.Auth.Leeway < 0 {
		return fmt.Errorf("auth.leeway cannot be negative")
	}

	if c.Startup.Timeout <= 0 {
		return fmt.Errorf("startup.timeout must be positive")
	}
	if c.Startup.SettleDelay < 0 {
		return fmt.Errorf("startup.settle_delay cannot be negative")
	}
	if c.Startup.InitialBackoff <= 0 || c.Startup.MaxBackoff < c.Startup.InitialBackoff {
		return fmt.Errorf("startup backoff must satisfy 0 < initial_backoff <= max_backoff")
	}

	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be positive")
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("max_request_bytes must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	return nil
}

// SubgraphNames returns the configured subgraph names in order.
func (c *Config) SubgraphNames() []string {
	names := make([]string, 0, len(c.Subgraphs))
	for _, sg := range c.Subgraphs {
		names = append(names, sg.Name)
	}
	return names
}
