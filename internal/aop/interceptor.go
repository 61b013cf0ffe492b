package aop

import (
	"context"
	"errors"

	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/sched"
)

// ErrInvalidContext is returned when an intercept context is built without a
// member or without an input list.
var ErrInvalidContext = errors.New("aop: intercept context requires a member and inputs")

// InterceptContext describes one intercepted invocation.
//
// Inputs holds the argument values in position order. For by-ref and out
// parameters the slot is live: a value stored there before or during the
// call is what the original member sees and what is written back to the
// caller, even when the chain fails.
type InterceptContext struct {
	// Main is the intercepted member, closed over the call-site type
	// arguments for generic methods.
	Main *ir.Method
	// Target is the receiver; nil for static members.
	Target any
	// Inputs are the argument values.
	Inputs []any
	// Context carries cancellation for cooperative suspension points.
	Context context.Context
	// Loop runs the continuations of asynchronous shapes.
	Loop *sched.Loop
}

// NewInterceptContext creates a context for invoking main on target.
func NewInterceptContext(main *ir.Method, target any, inputs []any) (*InterceptContext, error) {
	if main == nil || inputs == nil {
		return nil, ErrInvalidContext
	}
	return &InterceptContext{Main: main, Target: target, Inputs: inputs, Context: context.Background()}, nil
}

// Terminal continuations, one per invocation shape. Each runs the rest of
// the chain and finally the original member.
type (
	Intercept           func() error
	InterceptValue      func() (any, error)
	InterceptAsync      func() *sched.Pending
	InterceptValueAsync func() *sched.Pending
)

// Interceptor is around-advice. The chain calls the method matching the
// shape of the intercepted member; an implementation calls next to proceed.
type Interceptor interface {
	Run(ic *InterceptContext, next Intercept) error
	RunValue(ic *InterceptContext, next InterceptValue) (any, error)
	RunAsync(ic *InterceptContext, next InterceptAsync) *sched.Pending
	RunValueAsync(ic *InterceptContext, next InterceptValueAsync) *sched.Pending
}

// PassThrough proceeds without advice. Embed it to override only the shapes
// an interceptor cares about.
type PassThrough struct{}

func (PassThrough) Run(_ *InterceptContext, next Intercept) error { return next() }

func (PassThrough) RunValue(_ *InterceptContext, next InterceptValue) (any, error) { return next() }

func (PassThrough) RunAsync(_ *InterceptContext, next InterceptAsync) *sched.Pending { return next() }

func (PassThrough) RunValueAsync(_ *InterceptContext, next InterceptValueAsync) *sched.Pending {
	return next()
}

// Hooks is an interceptor built from before and after functions, for every
// shape. Before may fail, which skips the call and After. After observes the
// outcome once the call completes; for asynchronous shapes that is when the
// pending result settles.
type Hooks struct {
	Before func(ic *InterceptContext) error
	After  func(ic *InterceptContext, result any, err error)
}

func (h Hooks) before(ic *InterceptContext) error {
	if h.Before == nil {
		return nil
	}
	return h.Before(ic)
}

func (h Hooks) after(ic *InterceptContext, result any, err error) {
	if h.After != nil {
		h.After(ic, result, err)
	}
}

func (h Hooks) Run(ic *InterceptContext, next Intercept) error {
	if err := h.before(ic); err != nil {
		return err
	}
	err := next()
	h.after(ic, nil, err)
	return err
}

func (h Hooks) RunValue(ic *InterceptContext, next InterceptValue) (any, error) {
	if err := h.before(ic); err != nil {
		return nil, err
	}
	v, err := next()
	h.after(ic, v, err)
	return v, err
}

func (h Hooks) RunAsync(ic *InterceptContext, next InterceptAsync) *sched.Pending {
	return h.runPending(ic, next)
}

func (h Hooks) RunValueAsync(ic *InterceptContext, next InterceptValueAsync) *sched.Pending {
	return h.runPending(ic, next)
}

func (h Hooks) runPending(ic *InterceptContext, next func() *sched.Pending) *sched.Pending {
	if err := h.before(ic); err != nil {
		return sched.Rejected(ic.Loop, err)
	}
	return next().Then(func(v any, err error) (any, error) {
		h.after(ic, v, err)
		return v, err
	})
}
