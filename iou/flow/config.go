package flow

import (
	"fmt"
	"time"

	"github.com/LerianStudio/lib-iou/iou"
	"github.com/LerianStudio/lib-iou/iou/backoff"
)

// Config bounds the waits of a node. Zero fields fall back to DefaultConfig.
type Config struct {
	// SessionTimeout bounds each counterparty signing session.
	SessionTimeout time.Duration `env:"IOU_SESSION_TIMEOUT"`
	// NotarizeTimeout bounds the notarization round trip.
	NotarizeTimeout time.Duration `env:"IOU_NOTARIZE_TIMEOUT"`
	// DeliveryTimeout bounds the distribution of a notarized transition.
	DeliveryTimeout time.Duration `env:"IOU_DELIVERY_TIMEOUT"`
	// DeliveryAttempts is the number of sends tried per participant.
	DeliveryAttempts int `env:"IOU_DELIVERY_ATTEMPTS"`
	// DeliveryBackoff is the initial wait between delivery attempts.
	DeliveryBackoff time.Duration `env:"IOU_DELIVERY_BACKOFF"`
	// MaxConcurrentSessions caps the sessions one attempt opens at once.
	MaxConcurrentSessions int `env:"IOU_MAX_CONCURRENT_SESSIONS"`
	// MaxConcurrentResponders caps the inbound sessions Serve handles at once.
	MaxConcurrentResponders int `env:"IOU_MAX_CONCURRENT_RESPONDERS"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		SessionTimeout:          30 * time.Second,
		NotarizeTimeout:         30 * time.Second,
		DeliveryTimeout:         time.Minute,
		DeliveryAttempts:        5,
		DeliveryBackoff:         200 * time.Millisecond,
		MaxConcurrentSessions:   16,
		MaxConcurrentResponders: 64,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by environment variables.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := iou.SetConfigFromEnvVars(&cfg); err != nil {
		return Config{}, fmt.Errorf("flow config: %w", err)
	}

	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.SessionTimeout <= 0 {
		c.SessionTimeout = def.SessionTimeout
	}

	if c.NotarizeTimeout <= 0 {
		c.NotarizeTimeout = def.NotarizeTimeout
	}

	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = def.DeliveryTimeout
	}

	if c.DeliveryAttempts <= 0 {
		c.DeliveryAttempts = def.DeliveryAttempts
	}

	if c.DeliveryBackoff <= 0 {
		c.DeliveryBackoff = def.DeliveryBackoff
	}

	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = def.MaxConcurrentSessions
	}

	if c.MaxConcurrentResponders <= 0 {
		c.MaxConcurrentResponders = def.MaxConcurrentResponders
	}

	return c
}

func (c Config) deliveryPolicy() backoff.Policy {
	return backoff.Policy{
		Initial:     c.DeliveryBackoff,
		Max:         c.DeliveryTimeout / 4,
		MaxAttempts: c.DeliveryAttempts,
	}
}
