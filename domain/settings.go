package domain

import (
	"time"
)

// Default values for the remote settings fields.
const (
	DefaultMaxRetries        = 3
	DefaultTimeoutSeconds    = 10
	DefaultRetryDelaySeconds = 2
)

// SourceConfig describes one remote location from which configuration JSON
// may be fetched. Immutable once parsed from the settings file.
type SourceConfig struct {
	Name           string            `mapstructure:"name"`            // Display name for logs
	URL            string            `mapstructure:"url"`             // Source endpoint
	Headers        map[string]string `mapstructure:"headers"`         // Optional request headers
	TimeoutSeconds int               `mapstructure:"timeout_seconds"` // Optional per-attempt timeout override
	EncryptionKey  string            `mapstructure:"encryption_key"`  // Optional payload decryption key
}

// Timeout returns the per-attempt timeout for this source, falling back to
// the provided default when the source does not override it.
func (s SourceConfig) Timeout(fallback time.Duration) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return fallback
}

// RemoteSettings configures the remote configuration manager. The sources
// list order is the preference/try order; an empty list means every fetch
// falls back to the cache or fails.
type RemoteSettings struct {
	Sources           []SourceConfig `mapstructure:"sources"`
	MaxRetries        int            `mapstructure:"max_retries"`
	TimeoutSeconds    int            `mapstructure:"timeout_seconds"`
	RetryDelaySeconds int            `mapstructure:"retry_delay_seconds"`
}

// Normalize fills unset fields with their defaults and clamps negative
// values. It returns the receiver for chaining.
func (s RemoteSettings) Normalize() RemoteSettings {
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.RetryDelaySeconds <= 0 {
		s.RetryDelaySeconds = DefaultRetryDelaySeconds
	}
	return s
}

// Timeout returns the default per-attempt timeout.
func (s RemoteSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryDelay returns the delay between retry attempts for one source.
func (s RemoteSettings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}
