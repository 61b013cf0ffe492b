package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotDone is returned by Result on a pending operation that has not completed.
var ErrNotDone = errors.New("sched: pending operation has not completed")

// Pending is the handle of an operation that completes later on a loop,
// with a value or an error. A Pending completes at most once; continuations
// registered with Then run as loop tasks after completion, in registration
// order.
type Pending struct {
	loop *Loop

	mu    sync.Mutex
	done  bool
	value any
	err   error
	conts []Task
}

// NewPending returns an incomplete handle bound to loop.
func NewPending(loop *Loop) *Pending {
	return &Pending{loop: loop}
}

// Resolved returns a handle already completed with v.
func Resolved(loop *Loop, v any) *Pending {
	p := NewPending(loop)
	p.Resolve(v)
	return p
}

// Rejected returns a handle already completed with err.
func Rejected(loop *Loop, err error) *Pending {
	p := NewPending(loop)
	p.Reject(err)
	return p
}

// Loop returns the loop the handle completes on.
func (p *Pending) Loop() *Loop { return p.loop }

// Resolve completes p with v. Later completions are ignored.
func (p *Pending) Resolve(v any) { p.complete(v, nil) }

// Reject completes p with err. Later completions are ignored.
func (p *Pending) Reject(err error) { p.complete(nil, err) }

// Settle completes p with v and err.
func (p *Pending) Settle(v any, err error) { p.complete(v, err) }

func (p *Pending) complete(v any, err error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done, p.value, p.err = true, v, err
	conts := p.conts
	p.conts = nil
	p.mu.Unlock()

	for _, c := range conts {
		p.loop.Post(c)
	}
}

// Done reports whether p has completed.
func (p *Pending) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Result returns the outcome of a completed operation, or ErrNotDone.
func (p *Pending) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		return nil, ErrNotDone
	}
	return p.value, p.err
}

// Then registers fn to run on the loop once p completes and returns a handle
// for fn's outcome. If fn returns a *Pending, the returned handle follows it.
func (p *Pending) Then(fn func(v any, err error) (any, error)) *Pending {
	next := NewPending(p.loop)
	cont := func() {
		v, err := p.Result()
		out, ferr := safeCall(fn, v, err)
		next.follow(out, ferr)
	}

	p.mu.Lock()
	if !p.done {
		p.conts = append(p.conts, cont)
		p.mu.Unlock()
		return next
	}
	p.mu.Unlock()
	p.loop.Post(cont)
	return next
}

// follow completes p with v and err, or with the outcome of v when v is
// itself pending.
func (p *Pending) follow(v any, err error) {
	if inner, ok := v.(*Pending); ok && err == nil {
		inner.Then(func(iv any, ierr error) (any, error) {
			p.complete(iv, ierr)
			return nil, nil
		})
		return
	}
	p.complete(v, err)
}

func safeCall(fn func(any, error) (any, error), v any, err error) (out any, ferr error) {
	defer func() {
		if r := recover(); r != nil {
			out, ferr = nil, fmt.Errorf("sched: continuation panicked: %v", r)
		}
	}()
	return fn(v, err)
}

// Spawn runs fn as a loop task and returns a handle for its outcome. If fn
// returns a *Pending, the handle follows it.
func (l *Loop) Spawn(fn func() (any, error)) *Pending {
	p := NewPending(l)
	if !l.Post(func() {
		out, err := safeCall(func(any, error) (any, error) { return fn() }, nil, nil)
		p.follow(out, err)
	}) {
		p.Reject(ErrLoopClosed)
	}
	return p
}

// Yield is a suspension point. The returned handle completes on a later
// loop turn, or with ctx.Err() if ctx is already cancelled when the loop
// gets to it. Cancellation is observed only here: work already running is
// never aborted.
func (l *Loop) Yield(ctx context.Context) *Pending {
	return l.Spawn(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	})
}
