package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "WIREMEET"
	envConfigDefaultPath = "WIREMEET_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	configPath := resolveConfigPath(explicitPath)
	v := newViper(cfg, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// Watch re-reads the config file on every change and hands the result to onChange.
// It returns immediately; the watcher lives for the rest of the process.
func Watch(logger *zerolog.Logger, path string, onChange func(Config)) {
	v := newViper(Default(), path)
	if err := v.ReadInConfig(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("config watch disabled")
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := Default()
		if err := v.Unmarshal(&cfg); err != nil {
			logger.Warn().Err(err).Str("path", e.Name).Msg("ignoring invalid config change")
			return
		}
		logger.Info().Str("path", e.Name).Msg("config changed")
		onChange(cfg)
	})
	v.WatchConfig()
}

func newViper(cfg Config, configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configPath)

	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("trusted_proxies", cfg.TrustedProxies)
	v.SetDefault("livekit.api_key", cfg.LiveKit.APIKey)
	v.SetDefault("livekit.api_secret", cfg.LiveKit.APISecret)
	v.SetDefault("livekit.url", cfg.LiveKit.URL)
	v.SetDefault("token.ttl", cfg.Token.TTL)
	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.audience", cfg.Auth.Audience)
	v.SetDefault("auth.session_ttl", cfg.Auth.SessionTTL)
	v.SetDefault("auth.jwks_url", cfg.Auth.JWKSURL)
	v.SetDefault("rate_limit.requests_per_minute", cfg.RateLimit.RequestsPerMinute)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("cors.allowed_origins", cfg.CORS.AllowedOrigins)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The conventional LiveKit variables are honored alongside the prefixed ones.
	_ = v.BindEnv("livekit.api_key", envPrefix+"_LIVEKIT_API_KEY", "LIVEKIT_API_KEY")
	_ = v.BindEnv("livekit.api_secret", envPrefix+"_LIVEKIT_API_SECRET", "LIVEKIT_API_SECRET")
	_ = v.BindEnv("livekit.url", envPrefix+"_LIVEKIT_URL", "LIVEKIT_URL")

	return v
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
