package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("CHAT_URL", "")
	t.Setenv("CHAT_RECONNECT_ATTEMPTS", "")

	cfg := FromEnv()

	assert.Equal(t, "ws://localhost:5000/ws", cfg.ChatURL)
	assert.Equal(t, DevSigningKey, cfg.SigningKey)
	assert.Equal(t, DefaultReconnectAttempts, cfg.ReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CHAT_URL", "wss://chat.example.test/ws")
	t.Setenv("CHAT_RECONNECT_ATTEMPTS", "0")
	t.Setenv("CHAT_RECONNECT_DELAY", "250ms")
	t.Setenv("CHAT_FLUSH_INTERVAL", "nonsense")

	cfg := FromEnv()

	assert.Equal(t, "wss://chat.example.test/ws", cfg.ChatURL)
	assert.Equal(t, 0, cfg.ReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	assert.Equal(t, DefaultFlushInterval, cfg.FlushInterval)
}
