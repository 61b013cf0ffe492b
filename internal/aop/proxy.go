package aop

import (
	"fmt"
	"log/slog"

	"github.com/tinylit/DeltaExpression/internal/emit"
	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/sched"
	"github.com/tinylit/DeltaExpression/internal/vm"
)

// Proxy is a generated type deriving from Base whose intercepted virtual
// members dispatch through their interceptor chains.
type Proxy struct {
	Type        *ir.Type
	Base        *ir.Type
	Descriptors []*ProxyDescriptor
}

// Descriptor returns the descriptor generated for original, or nil when the
// member is not intercepted.
func (p *Proxy) Descriptor(original *ir.Method) *ProxyDescriptor {
	def := original.Definition()
	for _, d := range p.Descriptors {
		if d.Original == original || d.Original.Definition() == def {
			return d
		}
	}
	return nil
}

// ProxyBuilder synthesizes proxy types for the members registered in a
// Registry.
type ProxyBuilder struct {
	registry *Registry
	loop     *sched.Loop
	names    emit.NameGenerator
	logger   *slog.Logger
}

// Option configures a ProxyBuilder.
type Option func(*ProxyBuilder)

// WithLoop sets the loop asynchronous proxy members complete on.
//
// Default: a new sched.Loop, available from Loop().
func WithLoop(l *sched.Loop) Option {
	return func(b *ProxyBuilder) {
		b.loop = l
	}
}

// WithNameGenerator sets the generator for proxy type names.
//
// Default: emit.UUIDv7Names
func WithNameGenerator(g emit.NameGenerator) Option {
	return func(b *ProxyBuilder) {
		b.names = g
	}
}

// WithLogger sets the logger for proxy generation and dispatch.
func WithLogger(l *slog.Logger) Option {
	return func(b *ProxyBuilder) {
		b.logger = l
	}
}

// NewProxyBuilder creates a builder reading chains from registry.
func NewProxyBuilder(registry *Registry, opts ...Option) *ProxyBuilder {
	b := &ProxyBuilder{
		registry: registry,
		names:    emit.UUIDv7Names{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.loop == nil {
		b.loop = sched.NewLoop(sched.WithLogger(b.logger))
	}
	return b
}

// Loop returns the loop asynchronous proxy members complete on.
func (b *ProxyBuilder) Loop() *sched.Loop { return b.loop }

// Build derives a proxy type from base. Every accessible constructor of base
// is forwarded; every virtual member with a registered chain is overridden
// by a member that packages its arguments, dispatches through the chain and
// writes by-ref arguments back. Members without a chain are inherited.
func (b *ProxyBuilder) Build(base *ir.Type) (*Proxy, error) {
	if base.Kind != ir.KindClass || base.Sealed || base.IsGenericDefinition() {
		return nil, ir.NewUnsupportedMember(base.Key(), "proxies derive only from non-sealed closed classes")
	}
	te := emit.NewTypeEmitter("", base, emit.WithNameGenerator(b.names), emit.WithLogger(b.logger))
	for _, c := range base.Constructors {
		if c.Private {
			continue
		}
		if err := forwardConstructor(te, c); err != nil {
			return nil, err
		}
	}

	proxy := &Proxy{Base: base}
	for _, m := range base.VirtualMethods() {
		chain := b.registry.Chain(m)
		if len(chain) == 0 || m.Attributes.Has(ir.MethodRuntimeProvided) {
			continue
		}
		desc, err := b.override(te, m, chain, len(proxy.Descriptors))
		if err != nil {
			return nil, err
		}
		proxy.Descriptors = append(proxy.Descriptors, desc)
	}

	t, err := te.CreateType()
	if err != nil {
		return nil, err
	}
	proxy.Type = t
	b.logger.Debug("proxy generated", "type", t.Key(), "base", base.Key(), "members", len(proxy.Descriptors))
	return proxy, nil
}

func forwardConstructor(te *emit.TypeEmitter, c *ir.Constructor) error {
	ce, err := te.DefineConstructor()
	if err != nil {
		return err
	}
	args := make([]expr.Node, len(c.Params))
	for i, p := range c.Params {
		np := ce.DefineParameterFrom(p)
		np.Type = te.Resolve(p.Type)
		args[i] = expr.Arg(np)
	}
	return ce.InvokeBaseConstructorWith(c, args...)
}

// override emits the proxy member for m:
//
//	inputs = new object[]{ args... }
//	try {
//	    return (R) dispatch(this, inputs)
//	} finally {
//	    refArg = (T) inputs[i]   // each by-ref parameter
//	}
func (b *ProxyBuilder) override(te *emit.TypeEmitter, m *ir.Method, chain []Interceptor, n int) (*ProxyDescriptor, error) {
	shape := ShapeOf(m)
	if m.Attributes.Has(ir.MethodAbstract) {
		return nil, ir.NewUnsupportedMember(m.Key(), "abstract members have no implementation to intercept")
	}
	if shape.Async() {
		for _, p := range m.Params {
			if p.ByRef() {
				return nil, ir.NewUnsupportedMember(m.Key(), "asynchronous members cannot take by-ref parameters")
			}
		}
	}

	me, err := te.DefineOverride(m)
	if err != nil {
		return nil, err
	}
	desc := &ProxyDescriptor{Original: m, Shape: shape, Chain: chain, loop: b.loop, logger: b.logger}

	dispatch, err := te.DefineNative(fmt.Sprintf("%s$dispatch%d", m.Name, n), ir.Object, ir.MethodStatic|ir.MethodPrivate,
		func(c *ir.Call) (any, error) {
			inputs, ok := c.Args[1].(*vm.Array)
			if !ok {
				return nil, fmt.Errorf("aop: %s: inputs are %T, not an array", m.Key(), c.Args[1])
			}
			return desc.Dispatch(c.Context, c.Invoker, c.Args[0], inputs.Items, c.TypeArgs)
		},
		ir.Param("target", ir.Object), ir.Param("inputs", ir.ArrayOf(ir.Object)),
	)
	if err != nil {
		return nil, err
	}
	callee := dispatch
	if len(m.GenericParams) > 0 {
		dispatch.GenericParams = m.GenericParams
		if callee, err = dispatch.Instantiate(m.GenericParams...); err != nil {
			return nil, err
		}
	}

	params := me.Parameters()
	items := make([]expr.Node, len(params))
	for i, p := range params {
		if p.Direction == ir.Out {
			items[i] = expr.Default(p.Type)
		} else {
			items[i] = expr.Arg(p)
		}
	}
	inputs := expr.NewVariable("inputs", ir.ArrayOf(ir.Object))
	if err := me.Declare(inputs); err != nil {
		return nil, err
	}
	packaged, err := expr.NewArray(ir.Object, items...)
	if err != nil {
		return nil, err
	}
	pack, err := expr.Assign(expr.Var(inputs), packaged)
	if err != nil {
		return nil, err
	}

	call, err := expr.Call(nil, callee, me.This(), expr.Var(inputs))
	if err != nil {
		return nil, err
	}
	var main expr.Node = call
	if shape != SyncVoid {
		result, err := expr.Convert(call, me.Method().Return)
		if err != nil {
			return nil, err
		}
		if main, err = expr.Return(result); err != nil {
			return nil, err
		}
	}

	var writeBack []expr.Node
	for i, p := range params {
		if !p.ByRef() {
			continue
		}
		slot, err := expr.Index(expr.Var(inputs), expr.Int(int64(i)))
		if err != nil {
			return nil, err
		}
		value, err := expr.Convert(slot, p.Type)
		if err != nil {
			return nil, err
		}
		store, err := expr.Assign(expr.Arg(p), value)
		if err != nil {
			return nil, err
		}
		writeBack = append(writeBack, store)
	}
	if len(writeBack) > 0 {
		cleanup, err := expr.Block(writeBack...)
		if err != nil {
			return nil, err
		}
		if main, err = expr.TryFinally(main, cleanup); err != nil {
			return nil, err
		}
	}
	if err := me.Append(pack, main); err != nil {
		return nil, err
	}

	desc.Generated = me.Method()
	b.logger.Debug("proxy member generated", "member", m.Key(), "shape", shape.String(), "interceptors", len(chain))
	return desc, nil
}
