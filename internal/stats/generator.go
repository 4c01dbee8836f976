// Package stats drives the periodic regeneration of cached time-series
// views across the configured lookback-window × granularity matrix.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chainstats/internal/cache"
	"chainstats/internal/metrics"
	"chainstats/internal/series"
	"chainstats/internal/storage"
)

// Metric names an aggregated series family.
type Metric string

const (
	MetricBlockchain Metric = "blockchain"
	MetricPrice      Metric = "price"
)

// ErrNotReady signals that a series has no cache entry yet, either because
// no cycle has completed or because the entry is mid-regeneration. Distinct
// from a genuinely empty series.
var ErrNotReady = errors.New("stats: series not ready")

// Per-job stagger steps within one cycle, keyed by the combination's
// position in the configured lists.
const (
	staggerOuterStep = 10 * time.Second
	staggerInnerStep = 5 * time.Second
)

// Options configure the regeneration matrix and cadence.
type Options struct {
	HoursBack         []int
	Granularities     []series.Granularity
	Interval          time.Duration
	StaggerBase       time.Duration
	PendingNoiseFloor decimal.Decimal
}

// Generator owns the regeneration cycle and the cached-series reads.
type Generator struct {
	opts   Options
	store  storage.SampleStore
	cache  *cache.Cache
	logger zerolog.Logger
	mets   *metrics.Metrics

	mu        sync.Mutex
	lastRunAt time.Time
	nextRunAt time.Time

	wg  sync.WaitGroup
	now func() time.Time
}

// New constructs a Generator.
func New(opts Options, store storage.SampleStore, c *cache.Cache, mets *metrics.Metrics, logger zerolog.Logger) *Generator {
	return &Generator{
		opts:   opts,
		store:  store,
		cache:  c,
		logger: logger.With().Str("component", "stats").Logger(),
		mets:   mets,
	}
}

// Key is the cache key for a line series.
func Key(metric Metric, hoursBack int, g series.Granularity) string {
	return fmt.Sprintf("%s-%d-%s", metric, hoursBack, g)
}

// CandleKey is the cache key for a candlestick series.
func CandleKey(hoursBack int, g series.Granularity) string {
	return Key(MetricPrice, hoursBack, g) + "-candle"
}

// Allows reports whether the (window, granularity) pair is configured.
func (g *Generator) Allows(hoursBack int, gran series.Granularity) bool {
	okHours := false
	for _, h := range g.opts.HoursBack {
		if h == hoursBack {
			okHours = true
			break
		}
	}
	if !okHours {
		return false
	}
	for _, cg := range g.opts.Granularities {
		if cg == gran {
			return true
		}
	}
	return false
}

// Start launches the regeneration loop: one cycle immediately, then one per
// configured interval, each cycle armed only after the previous completed.
func (g *Generator) Start(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		g.RunCycle(ctx)
		for {
			timer := time.NewTimer(g.opts.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			g.RunCycle(ctx)
		}
	}()
}

// Stop waits for the regeneration loop to exit after its context is
// cancelled.
func (g *Generator) Stop() {
	g.wg.Wait()
}

// RunCycle regenerates every configured (window, granularity) combination.
// Jobs are staggered with linearly increasing delays so one cycle does not
// issue all store queries at once; failures are per-job and never abort
// siblings.
func (g *Generator) RunCycle(ctx context.Context) {
	started := g.clock()

	var wg sync.WaitGroup
	for outer, hoursBack := range g.opts.HoursBack {
		for inner, gran := range g.opts.Granularities {
			delay := g.opts.StaggerBase +
				time.Duration(outer)*staggerOuterStep +
				time.Duration(inner)*staggerInnerStep

			g.logger.Debug().
				Int("hours_back", hoursBack).
				Str("granularity", string(gran)).
				Dur("delay", delay).
				Msg("scheduling regeneration job")

			wg.Add(1)
			go func() {
				defer wg.Done()

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}

				g.regenerateBlockchain(ctx, hoursBack, gran)
				g.regeneratePrice(ctx, hoursBack, gran)
			}()
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	finished := g.clock()
	g.mets.RegenCycles.Inc()
	g.mets.RegenDuration.Observe(finished.Sub(started).Seconds())

	g.mu.Lock()
	g.lastRunAt = finished
	g.nextRunAt = finished.Add(g.opts.Interval)
	g.mu.Unlock()

	g.logger.Info().
		Time("last_run", finished).
		Time("next_run", finished.Add(g.opts.Interval)).
		Msg("regeneration cycle complete")
}

func (g *Generator) regenerateBlockchain(ctx context.Context, hoursBack int, gran series.Granularity) {
	key := Key(MetricBlockchain, hoursBack, gran)
	g.cache.Delete(key)

	values, err := g.loadValues(ctx, storage.SourceBlockchain, hoursBack, "unconfirmed_count")
	if err != nil {
		g.jobFailed(key, err)
		return
	}
	values = series.FilterFloor(values, g.opts.PendingNoiseFloor)

	points := series.ReduceLine(series.Bucketize(values, gran))
	g.cache.Add(key, cache.Entry{CreatedAt: g.clock(), Data: points})
}

func (g *Generator) regeneratePrice(ctx context.Context, hoursBack int, gran series.Granularity) {
	lineKey := Key(MetricPrice, hoursBack, gran)
	candleKey := CandleKey(hoursBack, gran)
	g.cache.Delete(lineKey)
	g.cache.Delete(candleKey)

	values, err := g.loadValues(ctx, storage.SourcePrice, hoursBack, "price_usd")
	if err != nil {
		g.jobFailed(lineKey, err)
		return
	}

	buckets := series.Bucketize(values, gran)
	now := g.clock()
	g.cache.Add(lineKey, cache.Entry{CreatedAt: now, Data: series.ReduceLine(buckets)})
	g.cache.Add(candleKey, cache.Entry{CreatedAt: now, Data: series.ReduceCandle(buckets)})
}

func (g *Generator) loadValues(ctx context.Context, source storage.Source, hoursBack int, path string) ([]series.Value, error) {
	since := g.clock().Add(-time.Duration(hoursBack) * time.Hour)
	samples, err := g.store.ListSamplesSince(ctx, source, since)
	if err != nil {
		return nil, err
	}
	return series.Extract(samples, path), nil
}

func (g *Generator) jobFailed(key string, err error) {
	g.mets.RegenJobErrors.Inc()
	g.logger.Error().Err(err).Str("key", key).Msg("regeneration job failed")
}

// Cached returns the line series for a (metric, window, granularity)
// combination, or ErrNotReady when no entry exists.
func (g *Generator) Cached(metric Metric, hoursBack int, gran series.Granularity) (cache.Entry, error) {
	entry, ok := g.cache.Find(Key(metric, hoursBack, gran))
	if !ok {
		return cache.Entry{}, ErrNotReady
	}
	return entry, nil
}

// CachedCandles returns the price candlestick series, or ErrNotReady.
func (g *Generator) CachedCandles(hoursBack int, gran series.Granularity) (cache.Entry, error) {
	entry, ok := g.cache.Find(CandleKey(hoursBack, gran))
	if !ok {
		return cache.Entry{}, ErrNotReady
	}
	return entry, nil
}

// LastRun returns when the last cycle completed (zero before the first).
func (g *Generator) LastRun() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRunAt
}

// NextRun returns when the next cycle is due (zero before the first
// completes).
func (g *Generator) NextRun() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextRunAt
}

func (g *Generator) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now().UTC()
}
