package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps persistent CLI flags onto configuration keys.
var flagKeys = map[string]string{
	"db-url":     "database.url",
	"log-level":  "log.level",
	"log-format": "log.format",
	"http-port":  "http.port",
	"grpc-port":  "grpc.port",
}

// secretKeys may never appear in a config file.
var secretKeys = []string{
	"hmac_secret", "http.hmac_secret", "grpc.hmac_secret",
	"api_key", "ai.api_key",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags that were explicitly set override lower layers.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("http.host", def.HTTP.Host)
	v.SetDefault("http.port", def.HTTP.Port)
	v.SetDefault("http.request_timeout", def.HTTP.RequestTimeout.String())
	v.SetDefault("grpc.enabled", def.GRPC.Enabled)
	v.SetDefault("grpc.host", def.GRPC.Host)
	v.SetDefault("grpc.port", def.GRPC.Port)
	v.SetDefault("database.url", def.Database.URL)
	v.SetDefault("ai.base_url", def.AI.BaseURL)
	v.SetDefault("ai.model", def.AI.Model)
	v.SetDefault("ai.timeout", def.AI.Timeout.String())
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	// Bind environment variables with SK_ prefix
	v.SetEnvPrefix("SK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoSecretsInConfig(v); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Host:           v.GetString("http.host"),
			Port:           v.GetInt("http.port"),
			RequestTimeout: v.GetDuration("http.request_timeout"),
		},
		GRPC: GRPCConfig{
			Enabled: v.GetBool("grpc.enabled"),
			Host:    v.GetString("grpc.host"),
			Port:    v.GetInt("grpc.port"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		AI: AIConfig{
			BaseURL: strings.TrimRight(v.GetString("ai.base_url"), "/"),
			Model:   v.GetString("ai.model"),
			Timeout: v.GetDuration("ai.timeout"),
			APIKey:  AIAPIKey(),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port ranges, positive durations and known enums.
func validateConfig(cfg *Config) error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", cfg.HTTP.Port)
	}
	if cfg.GRPC.Enabled && (cfg.GRPC.Port <= 0 || cfg.GRPC.Port > 65535) {
		return fmt.Errorf("grpc.port must be between 1 and 65535, got %d", cfg.GRPC.Port)
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive, got %v", cfg.HTTP.RequestTimeout)
	}
	if cfg.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive, got %v", cfg.AI.Timeout)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url must not be empty")
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range secretKeys {
		if v.InConfig(key) {
			return fmt.Errorf("secrets not allowed in config files (found %q; use SK_HMAC_SECRET or SK_AI_API_KEY environment variables)", key)
		}
	}
	return nil
}
