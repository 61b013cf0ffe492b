package vm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/lower"
)

// DefaultMaxDepth is the default limit on nested member invocations.
const DefaultMaxDepth = 1024

// Machine executes members: emitted instruction streams and native Go
// implementations alike. It implements ir.Invoker so native members can
// call back into emitted code.
//
// A Machine is not safe for concurrent use; drive it from one goroutine,
// typically the goroutine running the scheduling loop.
type Machine struct {
	maxDepth int
	logger   *slog.Logger
	statics  map[string]any
	depth    int
	ctx      context.Context
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxDepth sets the nested invocation limit.
//
// Default: 1024 (DefaultMaxDepth)
func WithMaxDepth(n int) Option {
	return func(m *Machine) {
		m.maxDepth = n
	}
}

// WithLogger sets the logger for escaping exceptions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// New creates a Machine.
func New(opts ...Option) *Machine {
	m := &Machine{
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
		statics:  make(map[string]any),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Invoke calls method without virtual dispatch. By-ref arguments must be
// ir.Reference values. Exceptions that escape surface as errors: an exception raised
// from a Go error is returned as that error, others as *Exception.
func (m *Machine) Invoke(method *ir.Method, this any, args []any) (any, error) {
	return m.invoke(method, this, args)
}

// InvokeContext is Invoke with ctx handed to every native member the call
// reaches, interception chains included.
func (m *Machine) InvokeContext(ctx context.Context, method *ir.Method, this any, args []any) (any, error) {
	defer m.enter(ctx)()
	return m.Invoke(method, this, args)
}

// InvokeVirtualContext is InvokeVirtual with ctx handed to every native
// member the call reaches.
func (m *Machine) InvokeVirtualContext(ctx context.Context, method *ir.Method, this any, args []any) (any, error) {
	defer m.enter(ctx)()
	return m.InvokeVirtual(method, this, args)
}

// enter installs ctx for the duration of one outer invocation and returns
// the function restoring the previous one.
func (m *Machine) enter(ctx context.Context) func() {
	prev := m.ctx
	if ctx != nil {
		m.ctx = ctx
	}
	return func() { m.ctx = prev }
}

// InvokeVirtual calls the implementation of method selected by the runtime
// type of this.
func (m *Machine) InvokeVirtual(method *ir.Method, this any, args []any) (any, error) {
	impl, err := m.resolve(method, this)
	if err != nil {
		return nil, err
	}
	return m.invoke(impl, this, args)
}

// Construct allocates an instance of c.Declaring and runs c on it.
func (m *Machine) Construct(c *ir.Constructor, args ...any) (any, error) {
	obj, exc := m.construct(c, args)
	if exc != nil {
		return nil, errorOf(exc)
	}
	return obj, nil
}

// resolve selects the implementation of method for the receiver this.
func (m *Machine) resolve(method *ir.Method, this any) (*ir.Method, error) {
	if method.IsStatic() {
		return method, nil
	}
	if this == nil {
		return nil, errorOf(NewException(ir.Exception, "null reference calling "+method.Key()))
	}
	inst, ok := this.(ir.Instance)
	if !ok {
		return method, nil
	}
	impl := inst.RuntimeType().ResolveVirtual(method)
	if impl != method && impl.IsGenericDefinition() && len(method.TypeArgs) > 0 {
		closed, err := impl.Instantiate(method.TypeArgs...)
		if err != nil {
			return nil, err
		}
		return closed, nil
	}
	return impl, nil
}

func (m *Machine) invoke(method *ir.Method, this any, args []any) (any, error) {
	v, exc := m.call(method, this, args)
	if exc != nil {
		if m.depth == 0 {
			m.logger.Debug("exception escaped", "member", method.Key(), "type", exc.Type.Key())
		}
		return nil, errorOf(exc)
	}
	return v, nil
}

// call runs method and returns either its result or the exception object it
// raised.
func (m *Machine) call(method *ir.Method, this any, args []any) (any, *Object) {
	if len(args) != len(method.Params) {
		return nil, NewException(ir.Exception, fmt.Sprintf("%s: expected %d argument(s), got %d", method.Key(), len(method.Params), len(args)))
	}
	if m.depth >= m.maxDepth {
		return nil, NewException(ir.Exception, "maximum invocation depth exceeded in "+method.Key())
	}
	m.depth++
	defer func() { m.depth-- }()

	switch impl := method.Implementation().(type) {
	case ir.NativeFunc:
		v, err := impl(&ir.Call{Context: m.ctx, Invoker: m, Method: method, This: this, Args: args, TypeArgs: method.TypeArgs})
		if err != nil {
			return nil, exceptionOf(err)
		}
		return v, nil
	case *lower.EmittedMember:
		f := newFrame(impl, this, args, substitution(method.Declaring, method))
		return m.exec(f)
	case nil:
		if method.Attributes.Has(ir.MethodRuntimeProvided) {
			return nil, NewException(ir.Exception, method.Key()+" is provided by the runtime and has no implementation")
		}
		return nil, NewException(ir.Exception, method.Key()+" has no implementation")
	default:
		return nil, NewException(ir.Exception, fmt.Sprintf("%s: unsupported implementation %T", method.Key(), impl))
	}
}

// construct allocates an instance of c.Declaring and runs c on it.
func (m *Machine) construct(c *ir.Constructor, args []any) (any, *Object) {
	if c.Declaring.Abstract {
		return nil, NewException(ir.Exception, "cannot construct abstract type "+c.Declaring.Key())
	}
	obj := NewObject(c.Declaring)
	if exc := m.runConstructor(c, obj, args); exc != nil {
		return nil, exc
	}
	return obj, nil
}

// runConstructor runs c on an existing instance; base constructor calls
// from emitted bodies take this path.
func (m *Machine) runConstructor(c *ir.Constructor, this any, args []any) *Object {
	if len(args) != len(c.Params) {
		return NewException(ir.Exception, fmt.Sprintf("%s: expected %d argument(s), got %d", c.Key(), len(c.Params), len(args)))
	}
	if m.depth >= m.maxDepth {
		return NewException(ir.Exception, "maximum invocation depth exceeded in "+c.Key())
	}
	m.depth++
	defer func() { m.depth-- }()

	switch impl := c.Implementation().(type) {
	case nil:
		return nil
	case ir.NativeFunc:
		if _, err := impl(&ir.Call{Context: m.ctx, Invoker: m, This: this, Args: args}); err != nil {
			return exceptionOf(err)
		}
		return nil
	case *lower.EmittedMember:
		f := newFrame(impl, this, args, substitution(c.Declaring, nil))
		_, exc := m.exec(f)
		return exc
	}
	return NewException(ir.Exception, fmt.Sprintf("%s: unsupported implementation %T", c.Key(), c.Impl))
}

// substitution maps the generic parameters visible in a body to the type
// arguments of the invocation: those of the declaring type and its bases,
// then those of method.
func substitution(declaring *ir.Type, method *ir.Method) map[*ir.Type]*ir.Type {
	var subst map[*ir.Type]*ir.Type
	add := func(params, args []*ir.Type) {
		if len(params) == 0 || len(params) != len(args) {
			return
		}
		if subst == nil {
			subst = make(map[*ir.Type]*ir.Type)
		}
		for i, p := range params {
			if p != args[i] {
				subst[p] = args[i]
			}
		}
	}
	for cur := declaring; cur != nil; cur = cur.Base {
		if cur.Definition != nil {
			add(cur.Definition.GenericParams, cur.GenericArgs)
		}
	}
	if method != nil {
		add(method.GenericParams, method.TypeArgs)
	}
	return subst
}
