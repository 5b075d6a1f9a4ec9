// Package resolver turns /play queries into playable tracks.
//
// A [Chain] fronts an ordered list of [Source] implementations, each behind
// its own circuit breaker, and rate-limits lookups so a burst of /play
// commands cannot get the bot's address throttled by YouTube. yt-dlp is the
// primary source; the pure-Go YouTube client takes over YouTube URLs when
// yt-dlp is broken or missing.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/songbird/internal/observe"
	"github.com/MrWong99/songbird/internal/playback"
	"github.com/MrWong99/songbird/internal/resilience"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Sentinel errors. They are the orchestrator's own sentinels so callers can
// match on either package.
var (
	ErrNotFound    = playback.ErrNotFound
	ErrRateLimited = playback.ErrRateLimited
)

// Source turns a query (a URL or free-form search text) into tracks. Sources
// return at most max tracks and wrap [ErrNotFound] when nothing matches.
type Source interface {
	Resolve(ctx context.Context, query string, max int) ([]playback.Track, error)
}

// Named pairs a [Source] with the label used in logs and metrics.
type Named struct {
	Name   string
	Source Source
}

// Config configures a [Chain].
type Config struct {
	// PerSecond and Burst bound lookups across all guilds. PerSecond <= 0
	// disables limiting.
	PerSecond float64
	Burst     int

	// MaxPlaylistItems caps how many tracks one query may add. Default: 50.
	MaxPlaylistItems int

	// Breaker is the per-source circuit breaker template.
	Breaker resilience.CircuitBreakerConfig

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Chain is a rate-limited, failover [playback.Resolver].
//
// Chain is safe for concurrent use.
type Chain struct {
	group    *resilience.FallbackGroup[Source]
	metrics  *observe.Metrics
	maxItems int
	limiter  *rate.Limiter
}

var _ playback.Resolver = (*Chain)(nil)

// NewChain builds a chain trying sources in order. At least one source is
// required.
func NewChain(cfg Config, sources ...Named) (*Chain, error) {
	if len(sources) == 0 {
		return nil, errors.New("resolver: at least one source is required")
	}
	if cfg.MaxPlaylistItems <= 0 {
		cfg.MaxPlaylistItems = 50
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	breaker := cfg.Breaker
	breaker.Ignore = func(err error) bool { return errors.Is(err, ErrNotFound) }

	group := resilience.NewFallbackGroup(sources[0].Source, sources[0].Name, resilience.FallbackConfig{
		CircuitBreaker: breaker,
		Terminal: func(err error) bool {
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	for _, s := range sources[1:] {
		group.AddFallback(s.Name, s.Source)
	}

	return &Chain{
		group:    group,
		metrics:  cfg.Metrics,
		maxItems: cfg.MaxPlaylistItems,
		limiter:  newLimiter(cfg.PerSecond, cfg.Burst),
	}, nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
}

// SetRateLimit replaces the lookup rate limit. It is used by config hot
// reload.
func (c *Chain) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Limit(perSecond))
	c.limiter.SetBurst(max(burst, 1))
}

// Sources returns the source names in the order they are tried.
func (c *Chain) Sources() []string { return c.group.Names() }

// Resolve implements [playback.Resolver].
func (c *Chain) Resolve(ctx context.Context, query string, req playback.Requester) ([]playback.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("resolver: empty query: %w", ErrNotFound)
	}

	if !c.limiter.Allow() {
		return nil, fmt.Errorf("resolver: %w", ErrRateLimited)
	}

	tracks, err := resilience.ExecuteWithResult(c.group, func(name string, src Source) ([]playback.Track, error) {
		sctx, span := observe.StartSpan(ctx, "resolver."+name,
			trace.WithAttributes(attribute.String("query", query)),
		)
		start := time.Now()
		tracks, err := src.Resolve(sctx, query, c.maxItems)
		if err == nil && len(tracks) == 0 {
			err = fmt.Errorf("resolver: %s: no results: %w", name, ErrNotFound)
		}
		c.metrics.RecordResolve(sctx, name, resolveStatus(err), time.Since(start))
		span.SetAttributes(attribute.Int("tracks", len(tracks)))
		observe.EndSpan(span, err)
		if err != nil {
			return nil, err
		}
		for i := range tracks {
			tracks[i].Source = name
		}
		return tracks, nil
	})
	if err != nil {
		return nil, err
	}

	if len(tracks) > c.maxItems {
		tracks = tracks[:c.maxItems]
	}
	for i := range tracks {
		tracks[i].Requester = req
		if tracks[i].Query == "" {
			tracks[i].Query = query
		}
	}
	return tracks, nil
}

func resolveStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
