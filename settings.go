package caravel

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tfkr-ae/caravel/domain"
)

// Default racing parameters applied when the settings file does not override
// them.
const (
	defaultProbeTimeoutSeconds = 5
	defaultRaceDeadlineSeconds = 10
)

// Settings is the client's local settings file (separate from the remotely
// fetched configuration): where the cache lives, the optional pinned
// authority, the racing budgets and the remote source list.
type Settings struct {
	viper               *viper.Viper
	ConfigDir           string                `mapstructure:"config_dir"`            // Current config dir
	CachePath           string                `mapstructure:"cache_path"`            // SQLite cache file path
	AuthorityFile       string                `mapstructure:"authority_file"`        // Optional pinned certificate PEM
	ProbeTimeoutSeconds int                   `mapstructure:"probe_timeout_seconds"` // Per-candidate probe timeout
	RaceDeadlineSeconds int                   `mapstructure:"race_deadline_seconds"` // Overall race deadline
	Remote              domain.RemoteSettings `mapstructure:"remote"`                // Remote source settings
}

func defaultSettings() *Settings {
	return &Settings{
		ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
		RaceDeadlineSeconds: defaultRaceDeadlineSeconds,
		Remote:              domain.RemoteSettings{}.Normalize(),
	}
}

// ProbeTimeout returns the per-candidate probe timeout.
func (settings *Settings) ProbeTimeout() time.Duration {
	if settings.ProbeTimeoutSeconds <= 0 {
		return defaultProbeTimeoutSeconds * time.Second
	}
	return time.Duration(settings.ProbeTimeoutSeconds) * time.Second
}

// RaceDeadline returns the overall race deadline.
func (settings *Settings) RaceDeadline() time.Duration {
	if settings.RaceDeadlineSeconds <= 0 {
		return defaultRaceDeadlineSeconds * time.Second
	}
	return time.Duration(settings.RaceDeadlineSeconds) * time.Second
}

// Save rewrites the settings file from the struct. Only valid for settings
// loaded through WithConfigDir.
func (settings *Settings) Save() error {
	if settings.viper == nil {
		return fmt.Errorf("settings not backed by a config file")
	}
	if err := settings.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}
