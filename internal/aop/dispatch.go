package aop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/sched"
)

// ProxyDescriptor maps one original member to the proxy member generated
// for it, with its invocation shape and interceptor chain.
type ProxyDescriptor struct {
	Original  *ir.Method
	Generated *ir.Method
	Shape     Shape
	Chain     []Interceptor

	loop   *sched.Loop
	logger *slog.Logger
}

// Dispatch runs one intercepted invocation of the original member.
//
// inputs is the packaged argument list shared with the caller: by-ref
// positions are passed to the original member as references into inputs,
// so whatever the chain or the member stores there is what the proxy writes
// back. typeArgs closes a generic original member at the call site. ctx
// becomes the InterceptContext's Context; a nil ctx means Background. Errors
// from the chain or the member are returned unchanged. For asynchronous
// shapes the result is the *sched.Pending of the wrapped call.
func (d *ProxyDescriptor) Dispatch(ctx context.Context, invoker ir.Invoker, this any, inputs []any, typeArgs []*ir.Type) (any, error) {
	main := d.Original
	if main.IsGenericDefinition() {
		closed, err := main.Instantiate(typeArgs...)
		if err != nil {
			return nil, err
		}
		main = closed
	}
	ic, err := NewInterceptContext(main, this, inputs)
	if err != nil {
		return nil, err
	}
	ic.Loop = d.loop
	if ctx != nil {
		ic.Context = ctx
	}

	call := func() (any, error) {
		args := make([]any, len(main.Params))
		for i, p := range main.Params {
			if p.ByRef() {
				args[i] = &slot{items: inputs, i: i}
			} else {
				args[i] = inputs[i]
			}
		}
		return invoker.InvokeContext(ic.Context, main, this, args)
	}
	d.logger.Debug("dispatch", "member", main.Key(), "shape", d.Shape.String(), "interceptors", len(d.Chain))

	switch d.Shape {
	case SyncVoid:
		return nil, Run(ic, d.Chain, func() error {
			_, err := call()
			return err
		})
	case SyncValue:
		return Invoke[any](ic, d.Chain, call)
	case AsyncVoid:
		return RunAsync(ic, d.Chain, d.pending(call)), nil
	default:
		return InvokeAsync[any](ic, d.Chain, d.pending(call)), nil
	}
}

// pending adapts the original call of an asynchronous member to return its
// handle, rejecting on a synchronous failure.
func (d *ProxyDescriptor) pending(call func() (any, error)) func() *sched.Pending {
	return func() *sched.Pending {
		v, err := call()
		if err != nil {
			return sched.Rejected(d.loop, err)
		}
		switch p := v.(type) {
		case *sched.Pending:
			return p
		case nil:
			return sched.Rejected(d.loop, fmt.Errorf("aop: %s returned no pending handle", d.Original.Key()))
		}
		return sched.Rejected(d.loop, fmt.Errorf("aop: %s returned %T, not a pending handle", d.Original.Key(), v))
	}
}

// slot is the reference a by-ref argument is passed as: one position of the
// packaged input list.
type slot struct {
	items []any
	i     int
}

func (s *slot) Load() any { return s.items[s.i] }
func (s *slot) Store(v any) { s.items[s.i] = v }

// Await drives loop until p completes. It is a convenience for callers of
// asynchronous proxy members outside a running loop.
func Await(ctx context.Context, p *sched.Pending) (any, error) {
	return p.Loop().RunUntil(ctx, p)
}
