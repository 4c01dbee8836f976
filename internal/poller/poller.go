// Package poller runs one fetch loop per external source, with the cadence
// derived from each source's daily request budget.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chainstats/internal/metrics"
)

// Action is the per-tick work of a job: fetch, validate, persist, react.
// Errors are logged and swallowed; they never stop the schedule.
type Action func(ctx context.Context) error

// Job binds a key and a request budget to an action.
type Job struct {
	Key            string
	RequestsPerDay int
	Action         Action

	cancel context.CancelFunc
}

// Interval converts the daily request budget into a tick interval.
func (j *Job) Interval() time.Duration {
	if j.RequestsPerDay <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(float64(24*time.Hour) / float64(j.RequestsPerDay))
}

// Poller owns the polling schedules. At most one loop runs per job key.
type Poller struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	wg     sync.WaitGroup
	logger zerolog.Logger
	mets   *metrics.Metrics
}

// New constructs a Poller.
func New(logger zerolog.Logger, mets *metrics.Metrics) *Poller {
	return &Poller{
		jobs:   make(map[string]*Job),
		logger: logger.With().Str("component", "poller").Logger(),
		mets:   mets,
	}
}

// Schedule starts the job's loop. Idempotent: if the job key already holds
// an active handle this is a no-op, so repeated calls never produce
// duplicate timers. The first tick runs immediately; each subsequent timer
// is armed only after the previous tick has completed, so ticks of one job
// never overlap.
func (p *Poller) Schedule(ctx context.Context, job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.jobs[job.Key]; ok && existing.cancel != nil {
		p.logger.Debug().Str("job", job.Key).Msg("job already scheduled")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	p.jobs[job.Key] = job

	p.logger.Info().
		Str("job", job.Key).
		Int("requests_per_day", job.RequestsPerDay).
		Dur("interval", job.Interval()).
		Msg("scheduling poll job")

	p.wg.Add(1)
	go p.loop(jobCtx, job)
}

// Active reports whether the job key currently holds a schedule handle.
func (p *Poller) Active(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[key]
	return ok && job.cancel != nil
}

// Stop cancels every job loop and clears the handles. Safe to call more
// than once. In-flight ticks are not aborted; they finish naturally.
func (p *Poller) Stop() {
	p.mu.Lock()
	for key, job := range p.jobs {
		if job.cancel != nil {
			p.logger.Info().Str("job", key).Msg("stopping poll job")
			job.cancel()
			job.cancel = nil
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, job *Job) {
	defer p.wg.Done()

	p.runOnce(ctx, job)

	interval := job.Interval()
	for {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		p.runOnce(ctx, job)
	}
}

func (p *Poller) runOnce(ctx context.Context, job *Job) {
	if ctx.Err() != nil {
		return
	}
	p.mets.PollsTotal.WithLabelValues(job.Key).Inc()
	if err := job.Action(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.mets.PollErrors.WithLabelValues(job.Key).Inc()
		p.logger.Error().Err(err).Str("job", job.Key).Msg("poll tick failed")
	}
}
