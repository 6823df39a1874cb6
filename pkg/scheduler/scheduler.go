// Package scheduler runs a task repeatedly, aligned to the wall clock: with
// an interval of one minute the task fires at the top of each minute, not
// one minute after startup.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// A Runner executes Task every Interval, aligned to the wall clock. Run
// blocks until the context is canceled, so a Runner can be handed to a task
// manager directly.
type Runner struct {
	Task     Task
	Interval time.Duration
	Logger   *slog.Logger

	lock    sync.RWMutex
	lastRun time.Time
	lastErr error
	runs    int
}

func (r *Runner) Run(ctx context.Context) error {
	for {
		timer := time.NewTimer(time.Until(nextAligned(time.Now(), r.Interval)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case now := <-timer.C:
			err := r.Task.Run(ctx)
			if err != nil {
				err = &RunError{Err: err}
				r.Logger.Error("scheduled run failed", "err", err)
			}
			r.setResult(now, err)
		}
	}
}

// Last returns the time and outcome of the most recent run. A failed run
// reports a RunError.
func (r *Runner) Last() (time.Time, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.lastRun, r.lastErr
}

// Runs returns the number of completed runs.
func (r *Runner) Runs() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.runs
}

func (r *Runner) setResult(at time.Time, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.lastRun = at
	r.lastErr = err
	r.runs++
}

// nextAligned returns the first instant after now that is a whole multiple
// of interval on the wall clock.
func nextAligned(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// Schedule starts a Runner in the background and returns a handle to cancel
// it and wait for it to wind down.
func Schedule(ctx context.Context, task Task, interval time.Duration, logger *slog.Logger) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		Runner: Runner{Task: task, Interval: interval, Logger: logger},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(j.done)
		_ = j.Runner.Run(ctx)
	}()
	return j
}

type Job struct {
	Runner
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *Job) Cancel() {
	j.cancel()
}

// Done closes when the job has stopped running.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
