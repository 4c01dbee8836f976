package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chainstats/internal/metrics"
)

func newTestPoller() *Poller {
	return New(zerolog.Nop(), metrics.NewNop())
}

// Budget high enough that the interval is ~10ms, so tests observe several
// ticks quickly.
const fastBudget = 8_640_000

func TestScheduleRunsActionImmediately(t *testing.T) {
	p := newTestPoller()
	defer p.Stop()

	ran := make(chan struct{}, 1)
	p.Schedule(context.Background(), &Job{
		Key:            "price",
		RequestsPerDay: 1, // 24h interval; only the immediate run fires
		Action: func(ctx context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("action should run immediately on schedule")
	}
}

func TestScheduleIsIdempotent(t *testing.T) {
	p := newTestPoller()
	defer p.Stop()

	var runs atomic.Int64
	job := &Job{
		Key:            "blockchain",
		RequestsPerDay: 1,
		Action: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	p.Schedule(context.Background(), job)
	p.Schedule(context.Background(), job)
	p.Schedule(context.Background(), &Job{Key: "blockchain", RequestsPerDay: 1, Action: job.Action})

	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("duplicate schedules must not duplicate timers: %d immediate runs", got)
	}
	if !p.Active("blockchain") {
		t.Fatal("job should hold an active handle")
	}
}

func TestFailedTickDoesNotStopSchedule(t *testing.T) {
	p := newTestPoller()
	defer p.Stop()

	var runs atomic.Int64
	p.Schedule(context.Background(), &Job{
		Key:            "price",
		RequestsPerDay: fastBudget,
		Action: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("upstream timeout")
		},
	})

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("schedule should keep ticking after failures, saw %d runs", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTicksNeverOverlap(t *testing.T) {
	p := newTestPoller()
	defer p.Stop()

	var inFlight atomic.Int64
	var overlapped atomic.Bool
	var runs atomic.Int64

	p.Schedule(context.Background(), &Job{
		Key:            "slow",
		RequestsPerDay: fastBudget,
		Action: func(ctx context.Context) error {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			// Slower than the tick interval: completion must gate the
			// next timer.
			time.Sleep(30 * time.Millisecond)
			inFlight.Add(-1)
			runs.Add(1)
			return nil
		},
	})

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, saw %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if overlapped.Load() {
		t.Fatal("ticks of one job must never run concurrently")
	}
}

func TestStopClearsHandlesAndIsRepeatable(t *testing.T) {
	p := newTestPoller()

	p.Schedule(context.Background(), &Job{
		Key:            "price",
		RequestsPerDay: fastBudget,
		Action:         func(ctx context.Context) error { return nil },
	})

	p.Stop()
	if p.Active("price") {
		t.Fatal("handle should be cleared after Stop")
	}
	p.Stop() // second call must be safe

	// A fresh schedule after Stop re-arms the job.
	ran := make(chan struct{}, 1)
	p.Schedule(context.Background(), &Job{
		Key:            "price",
		RequestsPerDay: 1,
		Action: func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job should be schedulable again after Stop")
	}
	p.Stop()
}

func TestIntervalFromBudget(t *testing.T) {
	job := &Job{RequestsPerDay: 86400}
	if got := job.Interval(); got != time.Second {
		t.Fatalf("86400/day should tick every second, got %s", got)
	}
	job = &Job{RequestsPerDay: 0}
	if got := job.Interval(); got != 24*time.Hour {
		t.Fatalf("zero budget should fall back to daily, got %s", got)
	}
}
