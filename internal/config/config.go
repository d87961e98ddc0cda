package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               int
	LogLevel           string
	DefaultCSV         string
	StaticDir          string
	UploadDir          string
	MaxUploadBytes     int64
	RegistryMaxEntries int
	RegistryTTL        time.Duration
	RemoveEvicted      bool
	RequestTimeout     time.Duration
	DatabaseURL        string
	NatsURL            string
	NatsToken          string
	SlackBotToken      string
	SlackChannel       string
}

// Load reads configuration from the environment. Values in a .env file in
// the working directory are used for keys the environment leaves unset.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:               envInt("ARBITER_PORT", 5000),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		DefaultCSV:         envStr("ARBITER_DEFAULT_CSV", "session-records-sorted.csv"),
		StaticDir:          envStr("ARBITER_STATIC_DIR", "static"),
		UploadDir:          envStr("ARBITER_UPLOAD_DIR", os.TempDir()),
		MaxUploadBytes:     envInt64("ARBITER_MAX_UPLOAD_BYTES", 100*1024*1024),
		RegistryMaxEntries: envInt("ARBITER_REGISTRY_MAX_ENTRIES", 256),
		RegistryTTL:        envDuration("ARBITER_REGISTRY_TTL", 24*time.Hour),
		RemoveEvicted:      envBool("ARBITER_REMOVE_EVICTED", true),
		RequestTimeout:     envDuration("ARBITER_REQUEST_TIMEOUT", 60*time.Second),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		NatsURL:            envStr("NATS_URL", ""),
		NatsToken:          envStr("NATS_TOKEN", ""),
		SlackBotToken:      envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:       envStr("SLACK_UPLOADS_CHANNEL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s", "12h").
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
