package ir

import "strings"

// Direction is the passing mode of a parameter.
type Direction int

const (
	// In passes the argument by value.
	In Direction = iota
	// Ref passes the argument by reference; the callee may read and write it.
	Ref
	// Out passes the argument by reference for the callee to write.
	Out
)

func (d Direction) String() string {
	switch d {
	case Ref:
		return "ref"
	case Out:
		return "out"
	}
	return "in"
}

// Metadata is a custom annotation carried on a parameter or member.
type Metadata struct {
	Name   string
	Values []any
}

// Parameter describes one parameter of a callable member.
//
// Type is the declared element type; for Ref and Out parameters the slot
// type is RefOf(Type). Position is 1-based and stable once assigned.
type Parameter struct {
	Position   int
	Name       string
	Type       *Type
	Direction  Direction
	Default    any
	HasDefault bool
	Metadata   []Metadata
}

// Param declares a by-value parameter for host type metadata.
func Param(name string, t *Type) *Parameter {
	return &Parameter{Name: name, Type: t, Direction: In}
}

// RefParam declares a by-reference parameter for host type metadata.
func RefParam(name string, t *Type) *Parameter {
	return &Parameter{Name: name, Type: t, Direction: Ref}
}

// OutParam declares an out parameter for host type metadata.
func OutParam(name string, t *Type) *Parameter {
	return &Parameter{Name: name, Type: t, Direction: Out}
}

// ByRef reports whether the parameter is passed by reference.
func (p *Parameter) ByRef() bool { return p.Direction != In }

// SlotType returns the type of the argument slot: RefOf(Type) for by-ref parameters.
func (p *Parameter) SlotType() *Type {
	if p.ByRef() {
		return RefOf(p.Type)
	}
	return p.Type
}

// SetDefault records a default value for the parameter.
func (p *Parameter) SetDefault(v any) {
	p.Default = v
	p.HasDefault = true
}

// AddMetadata attaches a custom annotation to the parameter.
func (p *Parameter) AddMetadata(name string, values ...any) {
	p.Metadata = append(p.Metadata, Metadata{Name: name, Values: values})
}

// clone returns a deep-enough copy for freezing into a finalized member.
func (p *Parameter) clone() *Parameter {
	c := *p
	c.Metadata = append([]Metadata(nil), p.Metadata...)
	return &c
}

// Signature is an ordered, append-only parameter list under construction.
type Signature struct {
	params []*Parameter
}

// DefineParameter appends a parameter and assigns it the next position.
func (s *Signature) DefineParameter(t *Type, dir Direction, name string) *Parameter {
	p := &Parameter{Position: len(s.params) + 1, Name: name, Type: t, Direction: dir}
	s.params = append(s.params, p)
	return p
}

// DefineParameterFrom clones an existing parameter's name, direction,
// default value and metadata into the next position.
func (s *Signature) DefineParameterFrom(src *Parameter) *Parameter {
	p := s.DefineParameter(src.Type, src.Direction, src.Name)
	if src.HasDefault {
		p.SetDefault(src.Default)
	}
	for _, md := range src.Metadata {
		p.AddMetadata(md.Name, md.Values...)
	}
	return p
}

// Parameters returns the parameters in position order.
func (s *Signature) Parameters() []*Parameter {
	return append([]*Parameter(nil), s.params...)
}

// Len returns the number of declared parameters.
func (s *Signature) Len() int { return len(s.params) }

// Freeze returns copies of the parameters for a finalized member.
func (s *Signature) Freeze() []*Parameter {
	out := make([]*Parameter, len(s.params))
	for i, p := range s.params {
		out[i] = p.clone()
	}
	return out
}

// MethodAttributes are emission-time flags of a method.
type MethodAttributes uint32

const (
	MethodStatic MethodAttributes = 1 << iota
	MethodVirtual
	MethodAbstract
	MethodFinal
	MethodPrivate
	// MethodRuntimeProvided marks members whose implementation is supplied by
	// the platform; emitters never write a body for them.
	MethodRuntimeProvided
)

// Has reports whether all flags in f are set.
func (a MethodAttributes) Has(f MethodAttributes) bool { return a&f == f }

// Method describes a method of a type.
//
// Impl is either a NativeFunc or an emitted instruction stream produced by the
// lowering engine; nil for abstract and runtime-provided members.
type Method struct {
	Name          string
	Declaring     *Type
	Params        []*Parameter
	Return        *Type
	Attributes    MethodAttributes
	GenericParams []*Type
	TypeArgs      []*Type
	Origin        *Method // generic or uninstantiated member this one was derived from
	Overrides     *Method
	Metadata      []Metadata
	Impl          any
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool { return m.Attributes.Has(MethodStatic) }

// IsVirtual reports whether calls may dispatch on the receiver's runtime type.
func (m *Method) IsVirtual() bool {
	return m.Attributes.Has(MethodVirtual) || m.Attributes.Has(MethodAbstract) ||
		(m.Declaring != nil && m.Declaring.Kind == KindInterface)
}

// IsGenericDefinition reports whether the method declares open type parameters.
func (m *Method) IsGenericDefinition() bool { return len(m.GenericParams) > 0 && len(m.TypeArgs) == 0 }

// ParamTypes returns the slot types of the parameters.
func (m *Method) ParamTypes() []*Type { return slotTypes(m.Params) }

// Definition returns the generic or uninstantiated member m derives from.
func (m *Method) Definition() *Method {
	for m.Origin != nil {
		m = m.Origin
	}
	return m
}

// Instantiate closes a generic method over typeArgs.
func (m *Method) Instantiate(typeArgs ...*Type) (*Method, error) {
	if !m.IsGenericDefinition() {
		return nil, NewSignatureNotFound(m.Declaring, m.Name+"<>", typeArgs)
	}
	if len(typeArgs) != len(m.GenericParams) {
		return nil, NewArityMismatch(m.Key(), len(m.GenericParams), len(typeArgs))
	}
	subst := make(map[*Type]*Type, len(typeArgs))
	for i, p := range m.GenericParams {
		subst[p] = typeArgs[i]
	}
	inst := m.substitute(m.Declaring, subst)
	inst.TypeArgs = typeArgs
	return inst, nil
}

func (m *Method) substitute(declaring *Type, subst map[*Type]*Type) *Method {
	return &Method{
		Name:          m.Name,
		Declaring:     declaring,
		Params:        substituteParams(m.Params, subst),
		Return:        Substitute(m.Return, subst),
		Attributes:    m.Attributes,
		GenericParams: m.GenericParams,
		TypeArgs:      m.TypeArgs,
		Origin:        m,
		Overrides:     m.Overrides,
		Metadata:      m.Metadata,
		Impl:          m.Impl,
	}
}

// Implementation returns the body of m. Members instantiated before their
// declaring type was finalized take it from the member they derive from.
func (m *Method) Implementation() any {
	for cur := m; cur != nil; cur = cur.Origin {
		if cur.Impl != nil {
			return cur.Impl
		}
	}
	return nil
}

// SameSignature reports whether m and other have the same name and the
// identical parameter slot types.
func (m *Method) SameSignature(other *Method) bool {
	if m.Name != other.Name || len(m.Params) != len(other.Params) {
		return false
	}
	for i, p := range m.Params {
		if p.Direction != other.Params[i].Direction {
			return false
		}
		if !Identical(p.Type, other.Params[i].Type) && !(p.Type.Kind == KindGenericParam && other.Params[i].Type.Kind == KindGenericParam) {
			return false
		}
	}
	return true
}

// OverridesMethod reports whether m is, or transitively overrides, base.
func (m *Method) OverridesMethod(base *Method) bool {
	target := base.Definition()
	for cur := m; cur != nil; cur = cur.Overrides {
		if cur == base || cur.Definition() == target {
			return true
		}
	}
	return false
}

// Constructor describes a constructor of a type.
type Constructor struct {
	Declaring  *Type
	Params     []*Parameter
	Private    bool
	Attributes MethodAttributes // only MethodRuntimeProvided is meaningful
	Metadata  []Metadata
	Origin    *Constructor
	Impl      any
}

// Implementation returns the body of c, following Origin like
// Method.Implementation.
func (c *Constructor) Implementation() any {
	for cur := c; cur != nil; cur = cur.Origin {
		if cur.Impl != nil {
			return cur.Impl
		}
	}
	return nil
}

// ParamTypes returns the slot types of the parameters.
func (c *Constructor) ParamTypes() []*Type { return slotTypes(c.Params) }

// Key returns the canonical member key of the constructor.
func (c *Constructor) Key() string {
	return c.Declaring.Key() + "..ctor(" + paramKeys(c.Params) + ")"
}

// Field describes a field of a type.
type Field struct {
	Name      string
	Declaring *Type
	Type      *Type
	Static    bool
}

// Property describes a property backed by accessor methods.
type Property struct {
	Name      string
	Declaring *Type
	Type      *Type
	Getter    *Method
	Setter    *Method
}

// DefineField adds a field to a host type.
func (t *Type) DefineField(name string, ft *Type) *Field {
	f := &Field{Name: name, Declaring: t, Type: ft}
	t.Fields = append(t.Fields, f)
	return f
}

// DefineConstructor adds a constructor to a host type. Parameter positions
// are assigned in argument order.
func (t *Type) DefineConstructor(impl any, params ...*Parameter) *Constructor {
	c := &Constructor{Declaring: t, Params: numbered(params), Impl: impl}
	t.Constructors = append(t.Constructors, c)
	return c
}

// DefineMethod adds a method to a host type. Parameter positions are assigned
// in argument order.
func (t *Type) DefineMethod(name string, ret *Type, attrs MethodAttributes, impl any, params ...*Parameter) *Method {
	if ret == nil {
		ret = Void
	}
	m := &Method{Name: name, Declaring: t, Params: numbered(params), Return: ret, Attributes: attrs, Impl: impl}
	t.Methods = append(t.Methods, m)
	return m
}

// DefineProperty adds a property with the given accessors to a host type.
func (t *Type) DefineProperty(name string, pt *Type, getter, setter *Method) *Property {
	p := &Property{Name: name, Declaring: t, Type: pt, Getter: getter, Setter: setter}
	t.Properties = append(t.Properties, p)
	return p
}

func numbered(params []*Parameter) []*Parameter {
	for i, p := range params {
		p.Position = i + 1
	}
	return params
}

func substituteParams(params []*Parameter, subst map[*Type]*Type) []*Parameter {
	out := make([]*Parameter, len(params))
	for i, p := range params {
		c := p.clone()
		c.Type = Substitute(p.Type, subst)
		out[i] = c
	}
	return out
}

func slotTypes(params []*Parameter) []*Type {
	out := make([]*Type, len(params))
	for i, p := range params {
		out[i] = p.SlotType()
	}
	return out
}

func paramKeys(params []*Parameter) string {
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = p.SlotType().Key()
	}
	return strings.Join(keys, ",")
}
