package caravel

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path"

	"github.com/spf13/viper"

	"github.com/tfkr-ae/caravel/domain"
	"github.com/tfkr-ae/caravel/race"
	"github.com/tfkr-ae/caravel/remote"
)

// WithConfigDir configures the accessor to use the specified configuration directory.
// It creates the directory if it doesn't exist and initializes the settings file using Viper.
func WithConfigDir(appConfigDir string) func(*Accessor) error {
	return func(accessor *Accessor) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if os.IsNotExist(err) {
				log.Println("[*] creating config dir")
				err := os.MkdirAll(appConfigDir, 0700)
				if err != nil {
					return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
				}
			} else {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
		}
		// At this point, the directory exists or was created successfully
		accessor.ConfigDir = appConfigDir

		// VIPER
		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(appConfigDir)
		v.SetDefault("cache_path", path.Join(appConfigDir, "caravel_cache.db"))
		v.SetDefault("probe_timeout_seconds", defaultProbeTimeoutSeconds)
		v.SetDefault("race_deadline_seconds", defaultRaceDeadlineSeconds)
		v.SetDefault("remote.max_retries", domain.DefaultMaxRetries)
		v.SetDefault("remote.timeout_seconds", domain.DefaultTimeoutSeconds)
		v.SetDefault("remote.retry_delay_seconds", domain.DefaultRetryDelaySeconds)
		err = v.ReadInConfig()
		if err != nil {
			// need to check if the error is config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// Config file is not found
				err = v.SafeWriteConfig()
				if err != nil {
					return fmt.Errorf("writing config file : %w", err)
				}
			} else {
				return fmt.Errorf("reading config file : %w", err)
			}
		}
		if err := v.Unmarshal(&accessor.Settings); err != nil {
			return fmt.Errorf("unmarshalling config to struct : %w", err)
		}

		accessor.Settings.viper = v
		accessor.Settings.ConfigDir = appConfigDir
		accessor.Settings.Remote = accessor.Settings.Remote.Normalize()
		v.Set("config_dir", appConfigDir)
		// Rewrite entire file from struct
		err = v.WriteConfig()
		if err != nil {
			return fmt.Errorf("writing config after unmarshalling : %w", err)
		}
		return nil
	}
}

// WithCacheStore selects the persistent cache backing the remote manager's
// offline fallback. The default is the no-op store (cache-disabled mode).
func WithCacheStore(store domain.CacheStore) func(*Accessor) error {
	return func(accessor *Accessor) error {
		if store == nil {
			return errors.New("cache store is nil")
		}
		accessor.cache = store
		return nil
	}
}

// WithLogger sets the logger shared with the components the accessor builds.
func WithLogger(logger *slog.Logger) func(*Accessor) error {
	return func(accessor *Accessor) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		accessor.logger = logger
		return nil
	}
}

// WithRacer replaces the racing service, bypassing construction from settings.
func WithRacer(racer *race.Service) func(*Accessor) error {
	return func(accessor *Accessor) error {
		if accessor.racer != nil {
			return errors.New("accessor already has a racing service defined")
		}
		accessor.racer = racer
		return nil
	}
}

// WithManager replaces the remote configuration manager, bypassing
// construction from settings.
func WithManager(manager *remote.Manager) func(*Accessor) error {
	return func(accessor *Accessor) error {
		if accessor.manager != nil {
			return errors.New("accessor already has a remote manager defined")
		}
		accessor.manager = manager
		return nil
	}
}
