package session

import (
	"time"

	"github.com/danmuck/clichat/internal/protocol/frame"
)

// Config defines transport timeouts and frame limits.
// A zero ReadTimeout or WriteTimeout disables that deadline.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
}

// DefaultConfig returns client-oriented defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		Limits:       frame.DefaultLimits(),
	}
}

// WithDefaults fills unset limits and the dial timeout.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.Limits.MaxMessageBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}
