// Package sched provides the cooperative single-threaded scheduling model
// that asynchronous members run under.
//
// A Loop runs tasks one at a time in FIFO order. A Pending is the handle an
// asynchronous member returns: it suspends the caller, not the loop, and
// completes once the wrapped work completes. Continuations registered with
// Then run as later loop tasks, so before/after logic around an awaited call
// unwinds in registration order without threads.
//
// Cancellation is cooperative: a cancelled context is observed only at
// suspension points (Yield, RunUntil).
package sched
