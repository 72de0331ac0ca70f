package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"emicli/internal/config"
	apperrors "emicli/internal/errors"
	"emicli/internal/infrastructure"
)

// Result is the per-descriptor outcome of a fetch: a payload or the failure
// that prevented one. A failed result never aborts its siblings; callers
// inspect the slice and decide.
type Result struct {
	Descriptor Descriptor
	Payload    []byte
	FetchedAt  time.Time
	Duration   time.Duration
	Err        error
}

// OK reports whether the fetch produced a payload.
func (r Result) OK() bool {
	return r.Err == nil
}

// Config tunes the fetcher. The rate limit only paces remote requests;
// local reads are unthrottled.
type Config struct {
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	UserAgent      string

	// MaxParallel bounds concurrent fetches. Values below 2 keep the
	// default sequential behavior.
	MaxParallel int
}

// DefaultConfig returns the fetcher settings used when no pipeline
// configuration is supplied.
func DefaultConfig() Config {
	return Config{
		Timeout:        config.DefaultFetchTimeout,
		RateLimitRPS:   config.DefaultFetchRateLimit,
		RateLimitBurst: config.DefaultFetchBurst,
		UserAgent:      config.DefaultUserAgent,
		MaxParallel:    1,
	}
}

// Fetcher retrieves raw payloads for an ordered descriptor list. Missing
// files and failed HTTP requests become per-descriptor results wrapping
// ErrSourceUnavailable; only a run with zero successes is an error.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewFetcher creates a fetcher with the given configuration. A nil logger
// falls back to the shared application logger.
func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultFetchTimeout
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = config.DefaultFetchRateLimit
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = config.DefaultFetchBurst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUserAgent
	}

	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		logger:  logger.With(slog.String("component", "fetch")),
	}
}

// FetchAll retrieves every descriptor and returns one result per descriptor
// in input order. It returns ErrNoSourcesAvailable when not a single
// descriptor produced a payload; partial failure is not an error.
func (f *Fetcher) FetchAll(ctx context.Context, descriptors []Descriptor) ([]Result, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no descriptors to fetch: %w", apperrors.ErrNoSourcesAvailable)
	}

	results := make([]Result, len(descriptors))

	if f.cfg.MaxParallel > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.cfg.MaxParallel)
		for i, d := range descriptors {
			g.Go(func() error {
				results[i] = f.fetchOne(gctx, d)
				return nil
			})
		}
		// Fetch failures are absorbed into results; only context
		// cancellation can surface here.
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, d := range descriptors {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = f.fetchOne(ctx, d)
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		}
	}

	if succeeded == 0 {
		f.logger.ErrorContext(ctx, "Every source failed to fetch",
			slog.Int("descriptors", len(descriptors)))
		return results, fmt.Errorf("fetched 0 of %d sources: %w",
			len(descriptors), apperrors.ErrNoSourcesAvailable)
	}

	if succeeded < len(descriptors) {
		f.logger.WarnContext(ctx, "Continuing with partial sources",
			slog.Int("succeeded", succeeded),
			slog.Int("failed", len(descriptors)-succeeded))
	}

	return results, nil
}

// fetchOne retrieves a single descriptor, absorbing the failure into the
// result so siblings keep going.
func (f *Fetcher) fetchOne(ctx context.Context, d Descriptor) Result {
	start := time.Now()

	var payload []byte
	var err error
	if d.IsRemote() {
		payload, err = f.fetchRemote(ctx, d)
	} else {
		payload, err = f.fetchLocal(d)
	}

	result := Result{
		Descriptor: d,
		Payload:    payload,
		FetchedAt:  start,
		Duration:   time.Since(start),
		Err:        err,
	}

	if err != nil {
		f.logger.WarnContext(ctx, "Source unavailable, skipping",
			slog.String("series_id", d.SeriesID),
			slog.String("origin", d.Origin),
			slog.String("error", err.Error()))
		return result
	}

	f.logger.DebugContext(ctx, "Source fetched",
		slog.String("series_id", d.SeriesID),
		slog.String("origin", d.Origin),
		slog.Int("bytes", len(payload)),
		slog.Duration("duration", result.Duration))
	return result
}

// fetchLocal reads a staged file from disk. A missing or unreadable file is
// a per-descriptor unavailability, not a pipeline error.
func (f *Fetcher) fetchLocal(d Descriptor) ([]byte, error) {
	payload, err := os.ReadFile(d.Origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSourceUnavailable, err)
	}
	return payload, nil
}

// fetchRemote downloads a payload over HTTP, paced by the politeness
// limiter and bounded by the per-request timeout.
func (f *Fetcher) fetchRemote(ctx context.Context, d Descriptor) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", apperrors.ErrSourceUnavailable, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, d.Origin, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", apperrors.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s returned %s", apperrors.ErrSourceUnavailable, d.Origin, resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", apperrors.ErrSourceUnavailable, err)
	}

	return payload, nil
}
