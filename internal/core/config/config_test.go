package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const (
	testSecretA = "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	testSecretB = "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHMACSecrets(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		t.Setenv("SK_HMAC_SECRET", "")
		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 0 {
			t.Errorf("expected no secrets, got %d", len(secrets))
		}
	})

	t.Run("single secret", func(t *testing.T) {
		t.Setenv("SK_HMAC_SECRET", testSecretA)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		t.Setenv("SK_HMAC_SECRET_1", testSecretA)
		t.Setenv("SK_HMAC_SECRET_2", testSecretB)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Setenv("SK_HMAC_SECRET", "invalid_format")
		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for invalid format")
		}
	})

	t.Run("duplicate secret_id between single and numbered", func(t *testing.T) {
		t.Setenv("SK_HMAC_SECRET", testSecretA)
		t.Setenv("SK_HMAC_SECRET_1", "0123456789abcdef0123456789abcdef:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")
		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for duplicate secret_id")
		}
	})
}

func TestParseHMACSecretWithID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantID  string
		wantErr bool
	}{
		{"valid format", testSecretA, "0123456789abcdef0123456789abcdef", false},
		{"surrounding whitespace", "  " + testSecretB + "\n", "fedcba9876543210fedcba9876543210", false},
		{"missing colon", "0123456789abcdef0123456789abcdef", "", true},
		{"invalid secret_id length", "tooshort:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", "", true},
		{"non-hex chars in secret_id", "0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", "", true},
		{"invalid base64", "0123456789abcdef0123456789abcdef:not-valid-base64!!!", "", true},
		{"secret too short", "0123456789abcdef0123456789abcdef:c2hvcnQ=", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseHMACSecretWithID(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHMACSecretWithID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if id != tt.wantID {
				t.Errorf("ParseHMACSecretWithID() id = %s, want %s", id, tt.wantID)
			}
			if len(secret) < 32 {
				t.Errorf("secret too short: %d bytes", len(secret))
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		want := Default()
		if cfg.HTTP != want.HTTP {
			t.Errorf("HTTP = %+v, want %+v", cfg.HTTP, want.HTTP)
		}
		if cfg.GRPC != want.GRPC {
			t.Errorf("GRPC = %+v, want %+v", cfg.GRPC, want.GRPC)
		}
		if cfg.Database.URL != "sqlite://./data/scorekeeper.db" {
			t.Errorf("expected default database url, got %s", cfg.Database.URL)
		}
		if cfg.AI.Model != "gemini-1.5-flash" || cfg.AI.Timeout != 60*time.Second {
			t.Errorf("AI = %+v, want default model and 60s timeout", cfg.AI)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Errorf("Log = %+v, want info/json", cfg.Log)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("SK_HTTP_PORT", "9999")
		t.Setenv("SK_HTTP_HOST", "127.0.0.1")
		t.Setenv("SK_GRPC_ENABLED", "false")
		t.Setenv("SK_LOG_FORMAT", "CONSOLE")

		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.HTTP.Addr() != "127.0.0.1:9999" {
			t.Errorf("expected 127.0.0.1:9999, got %s", cfg.HTTP.Addr())
		}
		if cfg.GRPC.Enabled {
			t.Error("expected grpc disabled")
		}
		if cfg.Log.Format != "console" {
			t.Errorf("expected console format, got %s", cfg.Log.Format)
		}
	})

	t.Run("ai key fallback", func(t *testing.T) {
		t.Setenv("SK_AI_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.AI.APIKey != "gemini-key" || !cfg.AI.Enabled() {
			t.Errorf("expected GEMINI_API_KEY fallback, got %q", cfg.AI.APIKey)
		}

		t.Setenv("SK_AI_API_KEY", "sk-key")
		if got := AIAPIKey(); got != "sk-key" {
			t.Errorf("AIAPIKey() = %q, want SK_AI_API_KEY to take precedence", got)
		}
	})

	t.Run("flag override", func(t *testing.T) {
		t.Setenv("SK_DATABASE_URL", "sqlite://env.db")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("db-url", "", "")
		fs.String("log-level", "", "")
		if err := fs.Parse([]string{"--db-url", "sqlite://flag.db"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig("", fs)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Database.URL != "sqlite://flag.db" {
			t.Errorf("expected flag to win, got %s", cfg.Database.URL)
		}
		if cfg.Log.Level != "info" {
			t.Errorf("unset flag must not override default, got %q", cfg.Log.Level)
		}
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			key, value string
		}{
			{"SK_HTTP_PORT", "70000"},
			{"SK_GRPC_PORT", "0"},
			{"SK_HTTP_REQUEST_TIMEOUT", "-1s"},
			{"SK_AI_TIMEOUT", "0s"},
			{"SK_LOG_FORMAT", "xml"},
		}
		for _, tt := range tests {
			t.Run(tt.key, func(t *testing.T) {
				t.Setenv(tt.key, tt.value)
				if _, err := LoadConfig("", nil); err == nil {
					t.Errorf("expected error for %s=%s", tt.key, tt.value)
				}
			})
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}
