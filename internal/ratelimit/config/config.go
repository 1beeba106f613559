package config

import (
	"os"
	"strconv"
	"time"

	"petchat/internal/ratelimit/models"
	dErrors "petchat/pkg/domain-errors"
)

// Config holds per-class chat rate limits.
type Config struct {
	Limits map[models.OperationClass]Limit
}

// Limit defines sliding window parameters for an operation class.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// Validate rejects limits that would either never admit or never block.
func (l Limit) Validate() error {
	if l.RequestsPerWindow <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "requests per window must be positive")
	}
	if l.Window <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "window must be positive")
	}
	return nil
}

// DefaultConfig returns the chat client policy.
func DefaultConfig() *Config {
	return &Config{
		Limits: map[models.OperationClass]Limit{
			models.ClassMessage: {RequestsPerWindow: 30, Window: time.Minute},
			models.ClassTyping:  {RequestsPerWindow: 60, Window: time.Minute},
			models.ClassJoin:    {RequestsPerWindow: 20, Window: time.Minute},
		},
	}
}

// FromEnv starts from DefaultConfig and applies CHAT_*_LIMIT and
// CHAT_LIMIT_WINDOW overrides. Unparseable values are ignored.
func FromEnv() *Config {
	cfg := DefaultConfig()

	window := time.Duration(0)
	if raw := os.Getenv("CHAT_LIMIT_WINDOW"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			window = d
		}
	}

	overrides := map[models.OperationClass]string{
		models.ClassMessage: "CHAT_MESSAGE_LIMIT",
		models.ClassTyping:  "CHAT_TYPING_LIMIT",
		models.ClassJoin:    "CHAT_JOIN_LIMIT",
	}
	for class, key := range overrides {
		limit := cfg.Limits[class]
		if raw := os.Getenv(key); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				limit.RequestsPerWindow = n
			}
		}
		if window != 0 {
			limit.Window = window
		}
		cfg.Limits[class] = limit
	}
	return cfg
}

// GetLimit returns the limit for class and whether one is configured.
func (c *Config) GetLimit(class models.OperationClass) (Limit, bool) {
	limit, ok := c.Limits[class]
	return limit, ok
}

// Validate checks that every known class has a usable limit.
func (c *Config) Validate() error {
	for _, class := range models.AllClasses {
		limit, ok := c.Limits[class]
		if !ok {
			return dErrors.New(dErrors.CodeInvalidInput, "missing limit for class "+class.String())
		}
		if err := limit.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid limit for class "+class.String()+": "+err.Error())
		}
	}
	return nil
}
