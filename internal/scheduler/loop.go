// Package scheduler runs the device's periodic jobs and serialized requests
// on one goroutine. Jobs never overlap, so anything they touch needs no locks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("scheduler loop stopped")

// Job is a periodic unit of work. Interval zero means every iteration.
type Job struct {
	Name      string
	Interval  time.Duration
	Immediate bool
	Run       func(ctx context.Context, now time.Time)
}

// Observer receives job timings.
type Observer interface {
	ObserveJob(name string, elapsed time.Duration, panicked bool)
}

type entry struct {
	job     Job
	next    time.Time
	started bool
}

type request struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Options configures a Loop.
type Options struct {
	// Tick is the pause between iterations.
	Tick time.Duration
	// Budget is the time slice a single job is expected to fit in.
	Budget time.Duration
	// Observer may be nil.
	Observer Observer
}

// Loop is a cooperative, single-goroutine scheduler.
type Loop struct {
	opts     Options
	jobs     []*entry
	requests chan request
	stopped  chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	triggered map[string]bool

	ticks atomic.Uint64
}

// New creates a loop. Jobs run in the order they are added.
func New(opts Options) *Loop {
	if opts.Tick <= 0 {
		opts.Tick = 50 * time.Millisecond
	}
	if opts.Budget <= 0 {
		opts.Budget = 15 * time.Second
	}
	return &Loop{
		opts:      opts,
		requests:  make(chan request),
		stopped:   make(chan struct{}),
		triggered: make(map[string]bool),
	}
}

// Add registers a job. It must be called before Run.
func (l *Loop) Add(job Job) {
	l.jobs = append(l.jobs, &entry{job: job})
	log.Debug().
		Str("job", job.Name).
		Dur("interval", job.Interval).
		Bool("immediate", job.Immediate).
		Msg("Job registered")
}

// Jobs returns the registered job names in execution order.
func (l *Loop) Jobs() []string {
	names := make([]string, len(l.jobs))
	for i, e := range l.jobs {
		names[i] = e.job.Name
	}
	return names
}

// Ticks returns the number of completed iterations.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Trigger makes the named job due on the next iteration. Safe from any goroutine.
func (l *Loop) Trigger(name string) {
	l.mu.Lock()
	l.triggered[name] = true
	l.mu.Unlock()
}

func (l *Loop) takeTrigger(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.triggered[name] {
		return false
	}
	delete(l.triggered, name)
	return true
}

// Step runs one iteration: every due job, in registration order.
func (l *Loop) Step(ctx context.Context, now time.Time) {
	l.ticks.Add(1)
	for _, e := range l.jobs {
		if ctx.Err() != nil {
			return
		}
		triggered := l.takeTrigger(e.job.Name)
		if !l.due(e, now) && !triggered {
			continue
		}
		e.next = now.Add(e.job.Interval)
		l.runJob(ctx, e.job, now)
	}
}

func (l *Loop) due(e *entry, now time.Time) bool {
	if !e.started {
		e.started = true
		if e.job.Immediate || e.job.Interval == 0 {
			return true
		}
		e.next = now.Add(e.job.Interval)
		return false
	}
	return !now.Before(e.next)
}

func (l *Loop) runJob(ctx context.Context, job Job, now time.Time) {
	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				log.Error().
					Interface("panic", r).
					Str("job", job.Name).
					Msg("Job panicked")
			}
		}()
		job.Run(ctx, now)
	}()

	elapsed := time.Since(start)
	if elapsed > l.opts.Budget {
		log.Warn().
			Str("job", job.Name).
			Dur("elapsed", elapsed).
			Dur("budget", l.opts.Budget).
			Msg("Job overran its time slice")
	}
	if l.opts.Observer != nil {
		l.opts.Observer.ObserveJob(job.Name, elapsed, panicked)
	}
}

// Do runs fn on the loop goroutine between iterations and returns its error.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) serve(ctx context.Context, req request) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Request panicked")
				err = fmt.Errorf("request panicked: %v", r)
			}
		}()
		err = req.fn(ctx)
	}()
	req.done <- err
}

// Run iterates until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })

	log.Info().
		Int("jobs", len(l.jobs)).
		Dur("tick", l.opts.Tick).
		Msg("Scheduler loop started")

	ticker := time.NewTicker(l.opts.Tick)
	defer ticker.Stop()

	l.Step(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("ticks", l.ticks.Load()).Msg("Scheduler loop stopping")
			return nil
		case req := <-l.requests:
			l.serve(ctx, req)
		case now := <-ticker.C:
			l.Step(ctx, now)
		}
	}
}

// Running reports whether Run is active. Used for readiness.
func (l *Loop) Running() bool {
	select {
	case <-l.stopped:
		return false
	default:
		return l.ticks.Load() > 0
	}
}
