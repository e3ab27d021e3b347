package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sethvargo/go-retry"

	"github.com/tfkr-ae/caravel/domain"
)

var (
	// ErrUnavailable is returned when every source has exhausted its retries
	// and no cached payload exists. It is a structured result for the offline
	// path, not a crash.
	ErrUnavailable = errors.New("configuration unavailable: all sources failed and no cache exists")

	// ErrNoSources is wrapped into ErrUnavailable failures when the manager
	// was constructed with an empty source list.
	ErrNoSources = errors.New("no remote sources configured")
)

// Payload is the result of a fetch: the configuration JSON plus where it came
// from. FromCache marks the degraded offline result.
type Payload struct {
	JSON      []byte // The configuration document
	Source    string // Name of the source that produced it, or "cache"
	FromCache bool   // True when served from the persisted cache
}

// Manager fetches the authoritative remote configuration, tolerating source
// failure and total network unavailability through the source-retry plus
// cache two-tier fallback.
type Manager struct {
	settings domain.RemoteSettings
	cache    domain.CacheStore
	client   *http.Client
	logger   *slog.Logger
}

// New creates a manager from the given settings. Caching is disabled (no-op
// store) unless WithCacheStore is supplied.
func New(settings domain.RemoteSettings, options ...func(*Manager) error) (*Manager, error) {
	manager := &Manager{
		settings: settings.Normalize(),
		cache:    domain.NopCacheStore{},
		client:   &http.Client{},
		logger:   slog.Default(),
	}
	for _, option := range options {
		if err := option(manager); err != nil {
			return nil, fmt.Errorf("applying option on remote manager : %w", err)
		}
	}
	return manager, nil
}

// WithCacheStore enables offline fallback through the given store.
func WithCacheStore(store domain.CacheStore) func(*Manager) error {
	return func(manager *Manager) error {
		if store == nil {
			return errors.New("cache store is nil")
		}
		manager.cache = store
		return nil
	}
}

// WithClient replaces the HTTP client used for source fetches.
func WithClient(client *http.Client) func(*Manager) error {
	return func(manager *Manager) error {
		manager.client = client
		return nil
	}
}

// WithLogger sets the logger used for fetch lifecycle and swallowed cache
// faults.
func WithLogger(logger *slog.Logger) func(*Manager) error {
	return func(manager *Manager) error {
		manager.logger = logger
		return nil
	}
}

// Fetch tries each source in configured order, retrying each up to
// max_retries times with retry_delay between attempts. The first source that
// yields valid JSON wins; the payload is persisted best-effort and returned.
// When every source is exhausted the persisted cache is consulted; a hit is
// returned flagged FromCache, a miss fails with ErrUnavailable.
func (manager *Manager) Fetch(ctx context.Context) (Payload, error) {
	for _, source := range manager.settings.Sources {
		payload, err := manager.fetchSource(ctx, source)
		if err != nil {
			manager.logger.Warn("source exhausted", "source", source.Name, "error", err)
			continue
		}

		if err := manager.cache.Persist(ctx, payload); err != nil {
			// Persistence is best-effort; a failing cache never fails the fetch.
			manager.logger.Warn("persisting configuration", "source", source.Name, "error", err)
		}
		manager.logger.Info("configuration fetched", "source", source.Name, "bytes", len(payload))
		return Payload{JSON: payload, Source: source.Name}, nil
	}

	cached, err := manager.cache.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoCache) {
			manager.logger.Warn("loading cached configuration", "error", err)
		}
		if len(manager.settings.Sources) == 0 {
			return Payload{}, fmt.Errorf("%w : %w", ErrUnavailable, ErrNoSources)
		}
		return Payload{}, ErrUnavailable
	}
	manager.logger.Info("serving cached configuration", "bytes", len(cached))
	return Payload{JSON: cached, Source: "cache", FromCache: true}, nil
}

// ClearCache drops the persisted payload. Failures are logged and swallowed.
func (manager *Manager) ClearCache(ctx context.Context) {
	if err := manager.cache.Clear(ctx); err != nil {
		manager.logger.Warn("clearing cached configuration", "error", err)
	}
}

// fetchSource runs the retry loop for one source: 1 + max_retries attempts,
// constant retry_delay between them, per-attempt timeout from the source
// override or the default.
func (manager *Manager) fetchSource(ctx context.Context, source domain.SourceConfig) ([]byte, error) {
	backoff := retry.WithMaxRetries(uint64(manager.settings.MaxRetries), retry.NewConstant(manager.settings.RetryDelay()))

	var payload []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempted, err := manager.fetchOnce(ctx, source)
		if err != nil {
			manager.logger.Debug("fetch attempt failed", "source", source.Name, "error", err)
			return retry.RetryableError(err)
		}
		payload = attempted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching source %s : %w", source.Name, err)
	}
	return payload, nil
}

// fetchOnce performs a single attempt against one source and validates the
// payload before accepting it.
func (manager *Manager) fetchOnce(ctx context.Context, source domain.SourceConfig) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, source.Timeout(manager.settings.Timeout()))
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s : %w", source.URL, err)
	}
	for key, value := range source.Headers {
		req.Header.Set(key, value)
	}

	res, err := manager.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s : %w", source.URL, err)
	}

	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("source answered %s", res.Status)
	}

	body, err := decodeBody(res)
	if err != nil {
		return nil, err
	}

	if source.EncryptionKey != "" {
		body, err = decryptPayload(body, source.EncryptionKey)
		if err != nil {
			return nil, err
		}
	}

	// Captive portals answer probes with HTML login pages; never accept one
	// as configuration.
	if mimetype.Detect(body).Is("text/html") {
		return nil, fmt.Errorf("source answered html, not configuration")
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("source answered invalid json")
	}
	return body, nil
}
