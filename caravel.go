// Package caravel provides the core of a proxy client: a background worker
// process that runs the proxy engine outside the foreground UI, a typed IPC
// contract between the two, and an endpoint resolution subsystem that races
// candidate service endpoints and manages remotely fetched configuration with
// a persisted offline fallback. It is designed to be decoupled from GUI
// implementations: platform shells supply the native engine bridge, the
// platform surface and the storage backend through narrow contracts.
//
// The core functionality includes:
//   - Worker process lifecycle with normal and quick-start modes
//   - Duplex mailbox IPC with explicit envelope kinds and correlation ids
//   - Concurrent endpoint racing with optional certificate pinning
//   - Multi-source remote configuration fetching with retry and cache fallback
//   - SQLite-backed configuration cache for fully offline operation
package caravel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tfkr-ae/caravel/domain"
	"github.com/tfkr-ae/caravel/race"
	"github.com/tfkr-ae/caravel/remote"
)

var (
	// ErrNoPanelURLs is returned when the loaded configuration carries no
	// panel URL candidates to race.
	ErrNoPanelURLs = errors.New("configuration has no panel urls")
)

// PanelConfig is the typed view over the fetched configuration JSON.
type PanelConfig struct {
	Provider  string          `json:"provider"`   // Service provider name
	PanelURLs []string        `json:"panel_urls"` // Candidate panel endpoints, preference order
	Features  map[string]bool `json:"features"`   // Feature flags
}

// ParsePanelConfig decodes a configuration payload into its typed form.
func ParsePanelConfig(payload []byte) (*PanelConfig, error) {
	var config PanelConfig
	if err := json.Unmarshal(payload, &config); err != nil {
		return nil, fmt.Errorf("unmarshalling panel config : %w", err)
	}
	return &config, nil
}

// Accessor composes the remote configuration manager and the racing service
// into typed, queryable configuration. It shares no mutable state with the
// worker/IPC path except the resolved endpoint value it hands out.
type Accessor struct {
	ConfigDir string    // The configuration directory
	Settings  *Settings // Local settings loaded from the config dir

	manager *remote.Manager
	racer   *race.Service
	cache   domain.CacheStore
	logger  *slog.Logger

	mu        sync.Mutex
	config    *PanelConfig // Last successfully parsed configuration
	fromCache bool         // Whether config came from the offline cache
}

// New creates an Accessor with default settings and applies any provided
// options. The remote manager and racing service are built from the settings
// afterwards unless options supplied them directly.
func New(options ...func(*Accessor) error) (*Accessor, error) {
	accessor := &Accessor{
		Settings: defaultSettings(),
		cache:    domain.NopCacheStore{},
		logger:   slog.Default(),
	}
	if err := accessor.WithOptions(options...); err != nil {
		return nil, err
	}

	if accessor.racer == nil {
		raceOptions := []func(*race.Service) error{race.WithLogger(accessor.logger)}
		if accessor.Settings.AuthorityFile != "" {
			raceOptions = append(raceOptions, race.WithAuthorityFile(accessor.Settings.AuthorityFile))
		}
		racer, err := race.New(raceOptions...)
		if err != nil {
			return nil, fmt.Errorf("building racing service : %w", err)
		}
		accessor.racer = racer
	}

	if accessor.manager == nil {
		manager, err := remote.New(accessor.Settings.Remote,
			remote.WithCacheStore(accessor.cache),
			remote.WithLogger(accessor.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("building remote manager : %w", err)
		}
		accessor.manager = manager
	}
	return accessor, nil
}

// WithOptions applies a series of configuration functions to the accessor.
// Each option function can modify the accessor and return an error if it fails.
func (accessor *Accessor) WithOptions(options ...func(*Accessor) error) error {
	for _, option := range options {
		if err := option(accessor); err != nil {
			return fmt.Errorf("applying option on accessor : %w", err)
		}
	}
	return nil
}

// Load fetches the configuration through the remote manager's fallback chain
// and replaces the typed view. The offline (cache-served) result is accepted
// and flagged; only total unavailability fails.
func (accessor *Accessor) Load(ctx context.Context) error {
	payload, err := accessor.manager.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration : %w", err)
	}
	config, err := ParsePanelConfig(payload.JSON)
	if err != nil {
		return err
	}

	accessor.mu.Lock()
	accessor.config = config
	accessor.fromCache = payload.FromCache
	accessor.mu.Unlock()

	accessor.logger.Info("configuration loaded", "provider", config.Provider, "panels", len(config.PanelURLs), "offline", payload.FromCache)
	return nil
}

// ensureLoaded loads the configuration on first use.
func (accessor *Accessor) ensureLoaded(ctx context.Context) error {
	accessor.mu.Lock()
	loaded := accessor.config != nil
	accessor.mu.Unlock()
	if loaded {
		return nil
	}
	return accessor.Load(ctx)
}

// Config returns the last-known configuration and whether it was served from
// the offline cache. The second value is only meaningful when the first is
// non-nil.
func (accessor *Accessor) Config() (*PanelConfig, bool) {
	accessor.mu.Lock()
	defer accessor.mu.Unlock()
	return accessor.config, accessor.fromCache
}

// Feature reports a feature flag from the last-known configuration. Unknown
// flags and unloaded configuration read as false.
func (accessor *Accessor) Feature(name string) bool {
	accessor.mu.Lock()
	defer accessor.mu.Unlock()
	if accessor.config == nil {
		return false
	}
	return accessor.config.Features[name]
}

// FastestPanelURL ensures configuration is loaded, races the panel URL
// candidates and returns the winner. When no candidate is reachable it
// degrades to the first candidate of the last-known configuration rather than
// failing: "no reachable endpoint" becomes "best-guess endpoint" for the
// caller.
func (accessor *Accessor) FastestPanelURL(ctx context.Context) (string, error) {
	if err := accessor.ensureLoaded(ctx); err != nil {
		return "", err
	}

	accessor.mu.Lock()
	candidates := make([]string, len(accessor.config.PanelURLs))
	copy(candidates, accessor.config.PanelURLs)
	accessor.mu.Unlock()

	if len(candidates) == 0 {
		return "", ErrNoPanelURLs
	}

	outcome := accessor.racer.Race(ctx, candidates, accessor.Settings.ProbeTimeout(), accessor.Settings.RaceDeadline())
	if outcome.Resolved() {
		return outcome.Winner, nil
	}

	accessor.logger.Warn("no reachable panel, using best-guess endpoint", "url", candidates[0])
	return candidates[0], nil
}

// ClearCache drops the persisted configuration payload, best-effort.
func (accessor *Accessor) ClearCache(ctx context.Context) {
	accessor.manager.ClearCache(ctx)
}
