package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoop_FIFO tests that tasks run in posting order.
func TestLoop_FIFO(t *testing.T) {
	l := NewLoop()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, l.Post(func() { order = append(order, i) }))
	}
	assert.Equal(t, 5, l.Drain())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

// TestPending_Then tests that continuations run after completion, on the loop.
func TestPending_Then(t *testing.T) {
	l := NewLoop()
	p := NewPending(l)
	next := p.Then(func(v any, err error) (any, error) {
		return v.(int) + 1, err
	})

	assert.Equal(t, 0, l.Drain(), "nothing runs before completion")
	p.Resolve(41)
	assert.False(t, next.Done(), "continuation is a loop task")

	v, err := l.RunUntil(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

// TestPending_CompletesOnce tests that later completions are ignored.
func TestPending_CompletesOnce(t *testing.T) {
	l := NewLoop()
	p := NewPending(l)
	p.Resolve(1)
	p.Reject(errors.New("late"))
	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// TestPending_ResultNotDone tests the error for an incomplete handle.
func TestPending_ResultNotDone(t *testing.T) {
	_, err := NewPending(NewLoop()).Result()
	assert.ErrorIs(t, err, ErrNotDone)
}

// TestPending_FollowsInner tests that a continuation returning a handle is flattened.
func TestPending_FollowsInner(t *testing.T) {
	l := NewLoop()
	inner := NewPending(l)
	outer := Resolved(l, nil).Then(func(any, error) (any, error) {
		return inner, nil
	})
	l.Drain()
	assert.False(t, outer.Done())

	inner.Resolve("ok")
	v, err := l.RunUntil(context.Background(), outer)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

// TestPending_PanicRejects tests that a panicking continuation rejects its handle.
func TestPending_PanicRejects(t *testing.T) {
	l := NewLoop()
	next := Resolved(l, nil).Then(func(any, error) (any, error) {
		panic("boom")
	})
	_, err := l.RunUntil(context.Background(), next)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

// TestSpawn tests that spawned work runs on the loop.
func TestSpawn(t *testing.T) {
	l := NewLoop()
	ran := false
	p := l.Spawn(func() (any, error) {
		ran = true
		return 7, nil
	})
	assert.False(t, ran)
	v, err := l.RunUntil(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 7, v)
}

// TestYield_Cancelled tests that a cancelled context is observed at the suspension point.
func TestYield_Cancelled(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.RunUntil(context.Background(), l.Yield(ctx))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRunUntil_ContextDeadline tests that an unresolvable handle returns on deadline.
func TestRunUntil_ContextDeadline(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.RunUntil(ctx, NewPending(l))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRunUntil_Closed tests that a stopped loop cannot complete a handle.
func TestRunUntil_Closed(t *testing.T) {
	l := NewLoop()
	l.Stop()
	assert.False(t, l.Post(func() {}))

	_, err := l.RunUntil(context.Background(), NewPending(l))
	assert.ErrorIs(t, err, ErrLoopClosed)

	p := l.Spawn(func() (any, error) { return nil, nil })
	_, err = p.Result()
	assert.ErrorIs(t, err, ErrLoopClosed)
}

// TestRun_StopsOnCancel tests that Run returns when its context ends.
func TestRun_StopsOnCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	p := l.Spawn(func() (any, error) { return 1, nil })
	for !p.Done() {
		time.Sleep(time.Millisecond)
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
