package events

import "time"

// Event type constants for config-related events.
const (
	TypeConfigReloaded = "config_reloaded"
)

// ConfigReloadedEvent is emitted when a watched configuration file changed
// and the dispatcher picked up new limits.
type ConfigReloadedEvent struct {
	BaseEvent
	ConfigPath      string        `json:"config_path"`
	Capacity        int           `json:"capacity"`
	PollingInterval time.Duration `json:"polling_interval"`
	MaxAttempts     int           `json:"max_attempts"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// NewConfigReloadedEvent creates a new config_reloaded event.
func NewConfigReloadedEvent(path string, capacity int, interval time.Duration, maxAttempts int, warnings []string) ConfigReloadedEvent {
	return ConfigReloadedEvent{
		BaseEvent:       NewBaseEvent(TypeConfigReloaded, ""),
		ConfigPath:      path,
		Capacity:        capacity,
		PollingInterval: interval,
		MaxAttempts:     maxAttempts,
		Warnings:        warnings,
	}
}
