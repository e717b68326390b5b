package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "42", 10, 42},
		{"uses default for empty", "", 10, 10},
		{"uses default for non-numeric", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tc.envValue)

			result := getEnvAsIntOrDefault("TEST_INT", tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsSecondsOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{"parses seconds", "15", 15 * time.Second},
		{"zero disables", "0", 0},
		{"negative falls back", "-3", time.Minute},
		{"garbage falls back", "1m", time.Minute},
		{"empty falls back", "", time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_SECONDS", tc.envValue)

			result := getEnvAsSecondsOrDefault("TEST_SECONDS", time.Minute)
			if result != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value123")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestLoad_GeminiKeyOptional(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/schoolhub")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("IMPORT_MAX_FILE_MB", "5")

	cfg := Load()
	if cfg.GeminiAPIKey != "" {
		t.Errorf("Expected empty Gemini key, got %q", cfg.GeminiAPIKey)
	}
	if cfg.ImportMaxFileBytes != 5<<20 {
		t.Errorf("Expected 5 MB limit, got %d bytes", cfg.ImportMaxFileBytes)
	}
	if cfg.IsProduction() {
		t.Error("Expected development environment by default")
	}
}

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("SCHOOLHUB_API_URL", "")
	t.Setenv("STREAM_IDLE_TIMEOUT_SECONDS", "")
	t.Setenv("CHAT_REDIS_URL", "")

	cfg := LoadClient()
	if cfg.APIURL != "http://localhost:8080" {
		t.Errorf("Unexpected API URL %q", cfg.APIURL)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("Expected 60s idle timeout, got %v", cfg.IdleTimeout)
	}
	if cfg.ChatRedisURL != "" {
		t.Errorf("Expected SQLite chat store by default, got redis %q", cfg.ChatRedisURL)
	}
}
