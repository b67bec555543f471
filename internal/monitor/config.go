package monitor

import "time"

// Config holds retention and persistence policy for the monitoring
// service.
type Config struct {
	// RetentionDays is the maximum age of persisted points in days.
	// Points older than this are dropped during cleanup.
	// Default: 7.
	RetentionDays int

	// CleanupInterval is the interval between retention sweeps.
	// Default: 1 hour.
	CleanupInterval time.Duration

	// CleanupRetryInterval is how long to wait before resuming after a
	// sweep-level failure (e.g., the storage directory is unreadable).
	// Default: 1 minute.
	CleanupRetryInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		RetentionDays:        7,
		CleanupInterval:      time.Hour,
		CleanupRetryInterval: time.Minute,
	}
}

// WithDefaults returns a copy of the config with zero values replaced
// by defaults.
func (c Config) WithDefaults() Config {
	result := c
	if result.RetentionDays <= 0 {
		result.RetentionDays = 7
	}
	if result.CleanupInterval <= 0 {
		result.CleanupInterval = time.Hour
	}
	if result.CleanupRetryInterval <= 0 {
		result.CleanupRetryInterval = time.Minute
	}
	return result
}
