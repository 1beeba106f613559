package config

import (
	"os"
	"strconv"
	"time"
)

// Client captures chat client process configuration.
type Client struct {
	ChatURL     string
	Token       string
	SigningKey  string
	AdminAddr   string
	Environment string
	LogLevel    string

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	FlushInterval     time.Duration
	TokenTTL          time.Duration
}

// Defaults mirror the browser client: five reconnect attempts two seconds apart.
const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 2 * time.Second
	DefaultFlushInterval     = 5 * time.Second
	DefaultTokenTTL          = 15 * time.Minute
	DevSigningKey            = "dev-chat-signing-key-change-in-production"
)

// FromEnv builds a Client config from environment variables so main stays lean.
func FromEnv() Client {
	cfg := Client{
		ChatURL:           getenv("CHAT_URL", "ws://localhost:5000/ws"),
		Token:             os.Getenv("CHAT_TOKEN"),
		SigningKey:        getenv("CHAT_SIGNING_KEY", DevSigningKey),
		AdminAddr:         getenv("ADMIN_ADDR", "127.0.0.1:9090"),
		Environment:       getenv("ENVIRONMENT", "development"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		FlushInterval:     DefaultFlushInterval,
		TokenTTL:          DefaultTokenTTL,
	}

	if raw := os.Getenv("CHAT_RECONNECT_ATTEMPTS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			cfg.ReconnectAttempts = n
		}
	}
	if d, ok := durationEnv("CHAT_RECONNECT_DELAY"); ok {
		cfg.ReconnectDelay = d
	}
	if d, ok := durationEnv("CHAT_FLUSH_INTERVAL"); ok {
		cfg.FlushInterval = d
	}
	if d, ok := durationEnv("CHAT_TOKEN_TTL"); ok {
		cfg.TokenTTL = d
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string) (time.Duration, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
