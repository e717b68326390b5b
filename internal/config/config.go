package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Gemini AI. An empty key selects the offline mock tutor.
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int

	// Chat
	ChatRateLimitPerMinute int

	// Imports
	ImportMaxFileBytes  int64
	ImportMaxConcurrent int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                   getEnvOrDefault("PORT", "8080"),
		Env:                    getEnvOrDefault("ENV", "development"),
		DatabaseURL:            mustGetEnv("DATABASE_URL"),
		RedisURL:               mustGetEnv("REDIS_URL"),
		JWTSecret:              mustGetEnv("JWT_SECRET"),
		GeminiAPIKey:           getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:            getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs:   getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		ChatRateLimitPerMinute: getEnvAsIntOrDefault("CHAT_RATE_LIMIT_PER_MINUTE", 30),
		ImportMaxFileBytes:     int64(getEnvAsIntOrDefault("IMPORT_MAX_FILE_MB", 20)) << 20,
		ImportMaxConcurrent:    getEnvAsIntOrDefault("IMPORT_MAX_CONCURRENT", 2),
		FrontendURL:            getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ClientConfig drives the schoolctl command line client.
type ClientConfig struct {
	APIURL      string
	Token       string
	IdleTimeout time.Duration

	MaxFileBytes int64

	// Chat history goes to Redis when ChatRedisURL is set, otherwise to
	// the SQLite file at ChatStorePath.
	ChatStorePath string
	ChatRedisURL  string
	ChatTTL       time.Duration

	// JWTSecret is only needed to mint development tokens.
	JWTSecret string
}

func LoadClient() *ClientConfig {
	godotenv.Load()

	return &ClientConfig{
		APIURL:        getEnvOrDefault("SCHOOLHUB_API_URL", "http://localhost:8080"),
		Token:         getEnvOrDefault("SCHOOLHUB_TOKEN", ""),
		IdleTimeout:   getEnvAsSecondsOrDefault("STREAM_IDLE_TIMEOUT_SECONDS", 60*time.Second),
		MaxFileBytes:  int64(getEnvAsIntOrDefault("IMPORT_MAX_FILE_MB", 20)) << 20,
		ChatStorePath: getEnvOrDefault("CHAT_STORE_PATH", "schoolhub-chats.db"),
		ChatRedisURL:  getEnvOrDefault("CHAT_REDIS_URL", ""),
		ChatTTL:       getEnvAsSecondsOrDefault("CHAT_TTL_SECONDS", 30*24*time.Hour),
		JWTSecret:     getEnvOrDefault("JWT_SECRET", ""),
	}
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsSecondsOrDefault reads a whole number of seconds. Zero is kept and
// disables the timeout it configures; negative or malformed values fall back.
func getEnvAsSecondsOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Second
}
