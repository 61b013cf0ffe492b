package emit

import (
	"fmt"
	"log/slog"

	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/lower"
)

// TypeEmitter assembles a new class from emitted members.
//
// The type handle exists from the start so bodies can refer to it (this,
// fields, sibling members), but its constructor, method and property lists
// are only populated by CreateType, after every body is sealed. A
// TypeEmitter is owned by a single build sequence and is not safe for
// concurrent use.
type TypeEmitter struct {
	t          *ir.Type
	resolution map[*ir.Type]*ir.Type
	ctors      []*ConstructorEmitter
	methods    []*MethodEmitter
	natives    []*ir.Method
	properties []*ir.Property
	finalized  bool

	names  NameGenerator
	logger *slog.Logger
}

// Option configures a TypeEmitter.
type Option func(*TypeEmitter)

// WithNameGenerator sets the generator used to name types declared without
// an explicit name.
//
// Default: UUIDv7Names
func WithNameGenerator(g NameGenerator) Option {
	return func(te *TypeEmitter) {
		te.names = g
	}
}

// WithLogger sets the logger for emission events.
func WithLogger(l *slog.Logger) Option {
	return func(te *TypeEmitter) {
		te.logger = l
	}
}

// WithInterfaces declares interfaces the new type implements.
func WithInterfaces(ifaces ...*ir.Type) Option {
	return func(te *TypeEmitter) {
		te.t.Interfaces = append(te.t.Interfaces, ifaces...)
	}
}

// NewTypeEmitter starts a class named name deriving from base (object when
// nil). An empty name is synthesized as "<base>_<generated>".
func NewTypeEmitter(name string, base *ir.Type, opts ...Option) *TypeEmitter {
	if base == nil {
		base = ir.Object
	}
	te := &TypeEmitter{
		t:      ir.NewClass(name, base),
		names:  UUIDv7Names{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(te)
	}
	if name == "" {
		te.t.Name = base.Name + "_" + te.names.Generate()
	}
	te.resolution = make(map[*ir.Type]*ir.Type)
	if base.Definition != nil {
		te.resolution = ir.GenericMap(base.Definition, base.GenericArgs)
	}
	return te
}

// Type returns the type under construction. It is complete only after
// CreateType succeeds.
func (te *TypeEmitter) Type() *ir.Type { return te.t }

// Base returns the base type.
func (te *TypeEmitter) Base() *ir.Type { return te.t.Base }

// Finalized reports whether CreateType has completed.
func (te *TypeEmitter) Finalized() bool { return te.finalized }

// Resolve maps generic parameters of the base type's definition to the
// base type's arguments.
func (te *TypeEmitter) Resolve(t *ir.Type) *ir.Type { return ir.Substitute(t, te.resolution) }

// DefineField adds a field.
func (te *TypeEmitter) DefineField(name string, t *ir.Type, static bool) (*ir.Field, error) {
	if te.finalized {
		return nil, ir.NewBodySealed(te.t.Key())
	}
	f := te.t.DefineField(name, t)
	f.Static = static
	return f, nil
}

// DefineConstructor adds a constructor. Declare its parameters on the
// returned emitter before building the body.
func (te *TypeEmitter) DefineConstructor() (*ConstructorEmitter, error) {
	if te.finalized {
		return nil, ir.NewBodySealed(te.t.Key())
	}
	c := &ConstructorEmitter{ctor: &ir.Constructor{Declaring: te.t}}
	c.te = te
	c.body = lower.NewBody(fmt.Sprintf("%s..ctor#%d", te.t.Key(), len(te.ctors)))
	te.ctors = append(te.ctors, c)
	return c, nil
}

// DefineMethod adds a method.
func (te *TypeEmitter) DefineMethod(name string, ret *ir.Type, attrs ir.MethodAttributes) (*MethodEmitter, error) {
	if te.finalized {
		return nil, ir.NewBodySealed(te.t.Key())
	}
	if ret == nil {
		ret = ir.Void
	}
	m := &MethodEmitter{method: &ir.Method{Name: name, Declaring: te.t, Return: ret, Attributes: attrs}}
	m.te = te
	m.body = lower.NewBody(te.t.Key() + "." + name)
	te.methods = append(te.methods, m)
	return m, nil
}

// DefineOverride adds a method overriding base. The signature is copied
// through the generic resolution map of the base type, including parameter
// names, directions, defaults and metadata; a generic base method keeps its
// type parameters.
func (te *TypeEmitter) DefineOverride(base *ir.Method) (*MethodEmitter, error) {
	if base.IsStatic() || !base.IsVirtual() || base.Attributes.Has(ir.MethodFinal) {
		return nil, ir.NewUnsupportedMember(base.Key(), "only non-final virtual instance methods can be overridden")
	}
	attrs := base.Attributes&^(ir.MethodAbstract|ir.MethodRuntimeProvided) | ir.MethodVirtual
	m, err := te.DefineMethod(base.Name, te.Resolve(base.Return), attrs)
	if err != nil {
		return nil, err
	}
	m.method.GenericParams = base.GenericParams
	m.method.Overrides = base
	m.method.Metadata = base.Metadata
	for _, p := range base.Params {
		c := m.DefineParameterFrom(p)
		c.Type = te.Resolve(p.Type)
	}
	return m, nil
}

// DefineNative adds a method implemented in Go.
func (te *TypeEmitter) DefineNative(name string, ret *ir.Type, attrs ir.MethodAttributes, fn ir.NativeFunc, params ...*ir.Parameter) (*ir.Method, error) {
	if te.finalized {
		return nil, ir.NewBodySealed(te.t.Key())
	}
	if ret == nil {
		ret = ir.Void
	}
	for i, p := range params {
		p.Position = i + 1
	}
	m := &ir.Method{Name: name, Declaring: te.t, Params: params, Return: ret, Attributes: attrs, Impl: fn}
	te.natives = append(te.natives, m)
	return m, nil
}

// DefineProperty adds a property backed by emitted accessors. Either
// accessor may be nil.
func (te *TypeEmitter) DefineProperty(name string, t *ir.Type, getter, setter *MethodEmitter) (*ir.Property, error) {
	if te.finalized {
		return nil, ir.NewBodySealed(te.t.Key())
	}
	p := &ir.Property{Name: name, Declaring: te.t, Type: t}
	if getter != nil {
		p.Getter = getter.method
	}
	if setter != nil {
		p.Setter = setter.method
	}
	te.properties = append(te.properties, p)
	return p, nil
}

// CreateType emits every member and finalizes the type. Constructors are
// emitted in sibling dependency order; a cycle fails with MEMBER_CYCLE. A
// type without constructors gets a parameterless one chaining to the base.
// After CreateType returns successfully the emitter rejects further
// definitions with BODY_SEALED.
func (te *TypeEmitter) CreateType() (*ir.Type, error) {
	if te.finalized {
		return nil, ir.NewBodySealed(te.t.Key())
	}
	if len(te.ctors) == 0 {
		if _, err := te.DefineConstructor(); err != nil {
			return nil, err
		}
	}

	order, err := constructorOrder(te.ctors)
	if err != nil {
		return nil, err
	}
	for _, c := range order {
		if _, err := c.Emit(); err != nil {
			return nil, err
		}
	}
	for _, m := range te.methods {
		if _, err := m.Emit(); err != nil {
			return nil, err
		}
	}

	ctors := make([]*ir.Constructor, len(te.ctors))
	for i, c := range te.ctors {
		ctors[i] = c.Constructor()
	}
	methods := make([]*ir.Method, 0, len(te.methods)+len(te.natives))
	for _, m := range te.methods {
		methods = append(methods, m.Method())
	}
	methods = append(methods, te.natives...)

	te.t.Constructors = ctors
	te.t.Methods = methods
	te.t.Properties = te.properties
	te.finalized = true
	te.logger.Debug("type finalized",
		"type", te.t.Key(),
		"base", te.t.Base.Key(),
		"constructors", len(ctors),
		"methods", len(methods),
	)
	return te.t, nil
}
