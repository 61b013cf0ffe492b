package aop

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/sched"
)

// compose wraps terminal in the chain so that chain[0] runs outermost:
// before-logic runs in chain order and after-logic unwinds in reverse.
func compose[F any](n int, terminal F, wrap func(i int, next F) F) F {
	next := terminal
	for i := n - 1; i >= 0; i-- {
		next = wrap(i, next)
	}
	return next
}

// Run invokes call, a member returning no value, through chain.
func Run(ic *InterceptContext, chain []Interceptor, call func() error) error {
	run := compose(len(chain), Intercept(call), func(i int, next Intercept) Intercept {
		return func() error { return chain[i].Run(ic, next) }
	})
	return run()
}

// Invoke invokes call, a member returning T, through chain. A result the
// chain replaced with a value that is not a T is an error.
func Invoke[T any](ic *InterceptContext, chain []Interceptor, call func() (T, error)) (T, error) {
	terminal := InterceptValue(func() (any, error) { return call() })
	run := compose(len(chain), terminal, func(i int, next InterceptValue) InterceptValue {
		return func() (any, error) { return chain[i].RunValue(ic, next) }
	})
	v, err := run()
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](v)
}

// RunAsync invokes call, an asynchronous member with no result, through
// chain. The returned handle completes once the wrapped call completes.
func RunAsync(ic *InterceptContext, chain []Interceptor, call func() *sched.Pending) *sched.Pending {
	run := compose(len(chain), InterceptAsync(call), func(i int, next InterceptAsync) InterceptAsync {
		return func() *sched.Pending { return chain[i].RunAsync(ic, next) }
	})
	return run()
}

// InvokeAsync invokes call, an asynchronous member producing a T, through
// chain. The returned handle completes with a T once the wrapped call
// completes.
func InvokeAsync[T any](ic *InterceptContext, chain []Interceptor, call func() *sched.Pending) *sched.Pending {
	run := compose(len(chain), InterceptValueAsync(call), func(i int, next InterceptValueAsync) InterceptValueAsync {
		return func() *sched.Pending { return chain[i].RunValueAsync(ic, next) }
	})
	return run().Then(func(v any, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return as[T](v)
	})
}

func as[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("aop: result %T is not %T", v, zero)
	}
	return t, nil
}
