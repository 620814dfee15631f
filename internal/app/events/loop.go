// Package events serializes every state change of the ephemeral-room
// subsystem onto one goroutine.
//
// Membership changes, commands, button presses and timer callbacks are all
// jobs on the same Loop, so the room registry and the proposal table only
// ever see one writer. Jobs run in arrival order; a job that posts more
// work has it queued behind whatever is already waiting.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrLoopClosed = errors.New("event loop closed")

type Job func(ctx context.Context)

type Loop struct {
	mu     sync.Mutex
	queue  []Job
	closed bool

	wake    chan struct{}
	stopped chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post queues job without waiting. It reports false once the loop stopped.
func (l *Loop) Post(job Job) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, job)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do queues job and waits until it ran. Never call Do from inside a job.
func (l *Loop) Do(ctx context.Context, job Job) error {
	done := make(chan struct{})
	ok := l.Post(func(ctx context.Context) {
		defer close(done)
		job(ctx)
	})
	if !ok {
		return ErrLoopClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopClosed
	}
}

// Flush waits until the queue is empty, including jobs queued by the jobs
// it waited for.
func (l *Loop) Flush(ctx context.Context) error {
	for {
		more := false
		if err := l.Do(ctx, func(context.Context) { more = l.Len() > 0 }); err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Len returns the number of queued jobs.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes jobs until ctx is done. Jobs still queued at that point are
// dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.stopped)
	}()

	log.Info().Str("module", "app.events").Msg("event loop started")
	for {
		if ctx.Err() != nil {
			log.Info().Str("module", "app.events").Msg("event loop stopped")
			return nil
		}
		job := l.next()
		if job == nil {
			select {
			case <-ctx.Done():
			case <-l.wake:
			}
			continue
		}
		l.run(ctx, job)
	}
}

func (l *Loop) next() Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	job := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return job
}

func (l *Loop) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.events").Interface("panic", r).Msg("job panicked, invariant violated")
		}
	}()
	job(ctx)
}
