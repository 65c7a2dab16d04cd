package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honored.
	// Empty means the peer address is always the client IP.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`

	LiveKit   LiveKitConfig   `mapstructure:"livekit" yaml:"livekit"`
	Token     TokenConfig     `mapstructure:"token" yaml:"token"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
}

// LiveKitConfig holds the signing key pair and the endpoint handed to clients.
type LiveKitConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	URL       string `mapstructure:"url" yaml:"url"`
}

// Missing returns the names of unset LiveKit options.
func (c LiveKitConfig) Missing() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "livekit.api_key")
	}
	if c.APISecret == "" {
		missing = append(missing, "livekit.api_secret")
	}
	if c.URL == "" {
		missing = append(missing, "livekit.url")
	}
	return missing
}

// TokenConfig controls issued meeting credentials.
type TokenConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// AuthConfig controls session tokens of the built-in identity provider
// and, optionally, verification against an external JWKS.
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer     string        `mapstructure:"issuer" yaml:"issuer"`
	Audience   string        `mapstructure:"audience" yaml:"audience"`
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	JWKSURL    string        `mapstructure:"jwks_url" yaml:"jwks_url"`
}

// RateLimitConfig bounds per-IP request rates on public endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int `mapstructure:"burst" yaml:"burst"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "wiremeet.db",
		Token: TokenConfig{
			TTL: 2 * time.Hour,
		},
		Auth: AuthConfig{
			JWTSecret:  "",
			Issuer:     "wiremeet",
			Audience:   "wiremeet",
			SessionTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
}
