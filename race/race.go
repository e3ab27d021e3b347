package race

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tfkr-ae/caravel/domain"
)

// Service races candidate endpoints. The pinned authority, if any, is fixed
// at construction and read-only afterwards; certificate rotation means
// constructing a new Service.
type Service struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a racing service with default transport and applies any
// provided options.
func New(options ...func(*Service) error) (*Service, error) {
	service := &Service{
		client: &http.Client{Transport: newPinnedTransport(nil)},
		logger: slog.Default(),
	}
	for _, option := range options {
		if err := option(service); err != nil {
			return nil, fmt.Errorf("applying option on racing service : %w", err)
		}
	}
	return service, nil
}

// WithAuthorityFile pins probe TLS verification to the single PEM-encoded
// certificate at path.
func WithAuthorityFile(path string) func(*Service) error {
	return func(service *Service) error {
		certPEM, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading authority file %s : %w", path, err)
		}
		block, _ := pem.Decode(certPEM)
		if block == nil || block.Type != "CERTIFICATE" {
			return fmt.Errorf("decoding authority PEM block from %s", path)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parsing authority certificate : %w", err)
		}
		return WithAuthority(cert)(service)
	}
}

// WithAuthority pins probe TLS verification to the given certificate.
func WithAuthority(cert *x509.Certificate) func(*Service) error {
	return func(service *Service) error {
		roots := x509.NewCertPool()
		roots.AddCert(cert)
		service.client = &http.Client{Transport: newPinnedTransport(roots)}
		return nil
	}
}

// WithClient replaces the probe HTTP client entirely. Used by tests and by
// callers that need their own transport.
func WithClient(client *http.Client) func(*Service) error {
	return func(service *Service) error {
		service.client = client
		return nil
	}
}

// WithLogger sets the logger used for probe detail.
func WithLogger(logger *slog.Logger) func(*Service) error {
	return func(service *Service) error {
		service.logger = logger
		return nil
	}
}

// Race probes every candidate concurrently and returns the first reachable
// one. It completes on the first success, when all probes have settled, or
// when the overall deadline elapses, whichever is first. Candidates that
// error or exceed perCandidateTimeout count as unreachable and never block
// completion. An empty outcome means no candidate was reachable; callers
// handle that by falling back, it is not an error.
func (service *Service) Race(ctx context.Context, candidates []string, perCandidateTimeout, overallDeadline time.Duration) domain.RaceOutcome {
	if len(candidates) == 0 {
		return domain.RaceOutcome{}
	}

	raceCtx, cancel := context.WithTimeout(ctx, overallDeadline)
	defer cancel()

	// Buffered so losers settling after the winner never block.
	results := make(chan domain.ProbeResult, len(candidates))
	for _, candidate := range candidates {
		go func(url string) {
			results <- service.probe(raceCtx, url, perCandidateTimeout)
		}(candidate)
	}

	for settled := 0; settled < len(candidates); settled++ {
		select {
		case result := <-results:
			if result.Reachable {
				service.logger.Info("race winner", "url", result.URL, "latency", result.Latency)
				return domain.RaceOutcome{Winner: result.URL, Latency: result.Latency}
			}
		case <-raceCtx.Done():
			service.logger.Info("race deadline elapsed with no winner", "candidates", len(candidates))
			return domain.RaceOutcome{}
		}
	}

	service.logger.Info("all candidates unreachable", "candidates", len(candidates))
	return domain.RaceOutcome{}
}

// probe performs one lightweight liveness request. Any HTTP answer below 500
// proves the endpoint is alive and serving.
func (service *Service) probe(ctx context.Context, url string, timeout time.Duration) domain.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := domain.ProbeResult{URL: url}

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		service.logger.Debug("building probe request", "url", url, "error", err)
		return result
	}

	start := time.Now()
	res, err := service.client.Do(req)
	if err != nil {
		service.logger.Debug("probe failed", "url", url, "error", err)
		return result
	}
	defer res.Body.Close()
	io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	if res.StatusCode >= http.StatusInternalServerError {
		service.logger.Debug("probe answered unhealthy", "url", url, "status", res.StatusCode)
		return result
	}

	result.Reachable = true
	result.Latency = time.Since(start)
	return result
}
