package dispatcher

import (
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
)

// Config configures the dispatcher.
type Config struct {
	// Capacity is the number of tasks one node may own at a time.
	Capacity int
	// MaxAttempts is the attempt count at which a held task is failed out.
	MaxAttempts int
	// RetryBackoff is how far a claim pushes the task's retryAt.
	RetryBackoff time.Duration
	// PollingInterval is the pause between cycles.
	PollingInterval time.Duration
	// PageSize is the number of documents fetched per cycle.
	PageSize int
	// ConditionalClaims makes claims and status updates conditional on the
	// document version read in the same cycle.
	ConditionalClaims bool
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:          core.DefaultNodeCapacity,
		MaxAttempts:       core.DefaultMaxAttempts,
		RetryBackoff:      core.DefaultRetryBackoff,
		PollingInterval:   core.DefaultPollingInterval,
		PageSize:          core.DefaultPageSize,
		ConditionalClaims: true,
	}
}

// withDefaults replaces unset or non-positive values by their defaults.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = def.PollingInterval
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	return c
}

// Limits are the settings that may change while the dispatcher runs.
type Limits struct {
	Capacity        int
	MaxAttempts     int
	PollingInterval time.Duration
}
