package sched

import (
	"context"
	"errors"
	"log/slog"
)

// ErrLoopClosed is returned when work is posted to or awaited on a stopped loop.
var ErrLoopClosed = errors.New("sched: loop closed")

// Loop is a cooperative single-threaded event loop.
//
// Tasks run one at a time in FIFO order on whichever goroutine drives the
// loop through Run, RunUntil or Drain. A task never preempts another; a
// pending operation suspends its caller by registering a continuation and
// returning control to the loop.
//
// Thread-safety model:
//   - Post(): safe from any goroutine
//   - Run(), RunUntil(), Drain(): must be driven by one goroutine at a time
type Loop struct {
	queue  *taskQueue
	logger *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger used for task failures.
func WithLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// NewLoop creates an idle loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{queue: newTaskQueue(), logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post schedules t to run on the loop. Returns false if the loop is stopped.
func (l *Loop) Post(t Task) bool {
	return l.queue.Enqueue(t)
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int { return l.queue.Len() }

// Stop closes the loop. Queued tasks are dropped by Run.
func (l *Loop) Stop() { l.queue.Close() }

// Drain runs queued tasks, including tasks they post, until the queue is
// empty. Returns the number of tasks run.
func (l *Loop) Drain() int {
	n := 0
	for {
		t, ok := l.queue.TryDequeue()
		if !ok {
			return n
		}
		l.runTask(t)
		n++
	}
}

// Run drives the loop until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop starting")
	for {
		if t, ok := l.queue.TryDequeue(); ok {
			l.runTask(t)
			continue
		}
		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case _, open := <-l.queue.Wait():
			if !open && l.queue.Len() == 0 {
				l.logger.Debug("loop stopped")
				return nil
			}
		}
	}
}

// RunUntil drives the loop until p completes and returns its outcome. The
// calling goroutine is the one suspended; other tasks keep running. When
// ctx is cancelled first, RunUntil returns ctx.Err() and p stays pending.
func (l *Loop) RunUntil(ctx context.Context, p *Pending) (any, error) {
	for !p.Done() {
		if t, ok := l.queue.TryDequeue(); ok {
			l.runTask(t)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, open := <-l.queue.Wait():
			if !open && l.queue.Len() == 0 && !p.Done() {
				return nil, ErrLoopClosed
			}
		}
	}
	return p.Result()
}

func (l *Loop) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
		}
	}()
	t()
}
