package ir

import (
	"strings"
	"sync"
)

// Kind classifies a type reference.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindClass
	KindInterface
	KindGenericParam
	KindArray
	KindByRef
	KindPending
	KindNull
)

var kindNames = [...]string{
	KindVoid:         "void",
	KindBool:         "bool",
	KindInt:          "int",
	KindFloat:        "float",
	KindString:       "string",
	KindObject:       "object",
	KindClass:        "class",
	KindInterface:    "interface",
	KindGenericParam: "generic-param",
	KindArray:        "array",
	KindByRef:        "byref",
	KindPending:      "pending",
	KindNull:         "null",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Type is a reference to a type in the target type system. It doubles as the
// reflected metadata for classes and interfaces: the member lists are what the
// signature resolution boundary searches.
//
// A Type must not be mutated once it has been finalized by a type emitter or
// handed to concurrent readers.
type Type struct {
	Name       string
	Kind       Kind
	Elem       *Type // array, by-ref and pending element; nil for a valueless pending
	Base       *Type
	Interfaces []*Type

	GenericParams []*Type // non-empty on a generic type definition
	GenericArgs   []*Type // non-empty on a constructed generic type
	Definition    *Type   // generic definition of a constructed type

	Abstract bool
	Sealed   bool

	Fields       []*Field
	Constructors []*Constructor
	Methods      []*Method
	Properties   []*Property

	mu        sync.Mutex
	instances map[string]*Type
	derived   map[Kind]*Type
}

// Well-known types.
var (
	Void      = &Type{Name: "void", Kind: KindVoid}
	Bool      = &Type{Name: "bool", Kind: KindBool, Sealed: true}
	Int       = &Type{Name: "int", Kind: KindInt, Sealed: true}
	Float     = &Type{Name: "float", Kind: KindFloat, Sealed: true}
	String    = &Type{Name: "string", Kind: KindString, Sealed: true}
	Object    = &Type{Name: "object", Kind: KindObject}
	Null      = &Type{Name: "null", Kind: KindNull}
	Pending   = &Type{Name: "pending", Kind: KindPending}
	Exception = NewClass("Exception", Object)
)

func init() {
	Object.Constructors = []*Constructor{{Declaring: Object}}
	message := Exception.DefineField("Message", String)
	Exception.DefineConstructor(nil)
	Exception.DefineConstructor(NativeFunc(func(c *Call) (any, error) {
		if obj, ok := c.This.(Instance); ok {
			obj.Set(message, c.Args[0])
		}
		return nil, nil
	}), Param("message", String))
}

// NewClass declares a class type deriving from base. A nil base means object.
func NewClass(name string, base *Type, interfaces ...*Type) *Type {
	if base == nil && name != "object" {
		base = Object
	}
	return &Type{Name: name, Kind: KindClass, Base: base, Interfaces: interfaces}
}

// NewInterface declares an interface type extending the given interfaces.
func NewInterface(name string, extends ...*Type) *Type {
	return &Type{Name: name, Kind: KindInterface, Interfaces: extends, Abstract: true}
}

// NewGenericParam declares a generic type parameter.
func NewGenericParam(name string) *Type {
	return &Type{Name: name, Kind: KindGenericParam}
}

// NewGenericClass declares a generic class definition over the named parameters.
func NewGenericClass(name string, base *Type, params ...string) *Type {
	t := NewClass(name, base)
	for _, p := range params {
		t.GenericParams = append(t.GenericParams, NewGenericParam(p))
	}
	return t
}

// ArrayOf returns the array type with the given element type.
func ArrayOf(elem *Type) *Type { return elem.derive(KindArray) }

// RefOf returns the by-reference type of elem.
func RefOf(elem *Type) *Type { return elem.derive(KindByRef) }

// PendingOf returns the pending-result type producing a value of elem.
// PendingOf(Void) is the valueless Pending.
func PendingOf(elem *Type) *Type {
	if elem == nil || elem.Kind == KindVoid {
		return Pending
	}
	return elem.derive(KindPending)
}

func (t *Type) derive(kind Kind) *Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.derived[kind]; ok {
		return d
	}
	if t.derived == nil {
		t.derived = make(map[Kind]*Type)
	}
	d := &Type{Kind: kind, Elem: t}
	switch kind {
	case KindArray:
		d.Name = t.Key() + "[]"
		d.Base = Object
	case KindByRef:
		d.Name = "&" + t.Key()
	case KindPending:
		d.Name = "pending<" + t.Key() + ">"
	}
	t.derived[kind] = d
	return d
}

// Key returns the canonical name of the type instantiation.
func (t *Type) Key() string {
	if t == nil {
		return "<nil>"
	}
	if len(t.GenericArgs) == 0 || t.Definition == nil {
		return normalizeName(t.Name)
	}
	args := make([]string, len(t.GenericArgs))
	for i, a := range t.GenericArgs {
		args[i] = a.Key()
	}
	return normalizeName(t.Definition.Name) + "<" + strings.Join(args, ",") + ">"
}

func (t *Type) String() string { return t.Key() }

// IsGenericDefinition reports whether t declares open generic parameters.
func (t *Type) IsGenericDefinition() bool { return len(t.GenericParams) > 0 && t.Definition == nil }

// ContainsGenericParams reports whether t mentions an unresolved generic parameter.
func (t *Type) ContainsGenericParams() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindGenericParam:
		return true
	case KindArray, KindByRef, KindPending:
		return t.Elem.ContainsGenericParams()
	}
	for _, a := range t.GenericArgs {
		if a.ContainsGenericParams() {
			return true
		}
	}
	return t.IsGenericDefinition()
}

// IsValue reports whether values of t are stored inline (not references).
func IsValue(t *Type) bool {
	switch t.Kind {
	case KindBool, KindInt, KindFloat:
		return true
	}
	return false
}

// IsReference reports whether t admits null.
func IsReference(t *Type) bool {
	switch t.Kind {
	case KindString, KindObject, KindClass, KindInterface, KindArray, KindPending, KindNull:
		return true
	}
	return false
}

// Identical reports whether a and b denote the identical type instantiation.
func Identical(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindArray, KindByRef, KindPending:
		return Identical(a.Elem, b.Elem)
	}
	return a.Key() == b.Key()
}

// AssignableTo reports whether a value of type from may be stored where a
// value of type to is expected. The relation is directional: it never holds
// from a base type to a derived type.
func AssignableTo(from, to *Type) bool {
	if from == nil || to == nil {
		return false
	}
	if Identical(from, to) {
		return true
	}
	if from.Kind == KindVoid || to.Kind == KindVoid || from.Kind == KindByRef || to.Kind == KindByRef {
		return false
	}
	if from.Kind == KindNull {
		return IsReference(to)
	}
	switch to.Kind {
	case KindObject:
		return true
	case KindFloat:
		return from.Kind == KindInt
	case KindPending:
		return from.Kind == KindPending && to.Elem == nil
	case KindArray:
		return from.Kind == KindArray && IsReference(from.Elem) && AssignableTo(from.Elem, to.Elem)
	case KindClass:
		for b := from.Base; b != nil; b = b.Base {
			if Identical(b, to) {
				return true
			}
		}
		return false
	case KindInterface:
		return implements(from, to)
	}
	return false
}

func implements(t, iface *Type) bool {
	for cur := t; cur != nil; cur = cur.Base {
		for _, i := range cur.Interfaces {
			if Identical(i, iface) || implements(i, iface) {
				return true
			}
		}
	}
	return false
}

// Instantiate closes a generic type definition over args. Instances are
// cached so repeated instantiation yields the same pointer.
func (t *Type) Instantiate(args ...*Type) (*Type, error) {
	if !t.IsGenericDefinition() {
		return nil, NewSignatureNotFound(t, "instantiate", args)
	}
	if len(args) != len(t.GenericParams) {
		return nil, NewArityMismatch(t.Key(), len(t.GenericParams), len(args))
	}
	inst := &Type{Name: t.Name, Kind: t.Kind, Definition: t, GenericArgs: args, Abstract: t.Abstract, Sealed: t.Sealed}
	key := inst.Key()

	// The instance is cached before its members are built so that members
	// mentioning the instance itself resolve to the same pointer.
	t.mu.Lock()
	if cached, ok := t.instances[key]; ok {
		t.mu.Unlock()
		return cached, nil
	}
	if t.instances == nil {
		t.instances = make(map[string]*Type)
	}
	t.instances[key] = inst
	t.mu.Unlock()

	subst := GenericMap(t, args)
	inst.Base = Substitute(t.Base, subst)
	for _, i := range t.Interfaces {
		inst.Interfaces = append(inst.Interfaces, Substitute(i, subst))
	}
	for _, f := range t.Fields {
		inst.Fields = append(inst.Fields, &Field{Name: f.Name, Declaring: inst, Type: Substitute(f.Type, subst), Static: f.Static})
	}
	for _, c := range t.Constructors {
		inst.Constructors = append(inst.Constructors, &Constructor{
			Declaring: inst, Params: substituteParams(c.Params, subst), Private: c.Private, Attributes: c.Attributes, Impl: c.Impl, Origin: c,
		})
	}
	methods := make(map[*Method]*Method, len(t.Methods))
	for _, m := range t.Methods {
		cm := m.substitute(inst, subst)
		methods[m] = cm
		inst.Methods = append(inst.Methods, cm)
	}
	for _, p := range t.Properties {
		inst.Properties = append(inst.Properties, &Property{
			Name: p.Name, Declaring: inst, Type: Substitute(p.Type, subst),
			Getter: methods[p.Getter], Setter: methods[p.Setter],
		})
	}
	return inst, nil
}

// GenericMap pairs the generic parameters of def with args.
func GenericMap(def *Type, args []*Type) map[*Type]*Type {
	m := make(map[*Type]*Type, len(args))
	for i, p := range def.GenericParams {
		if i < len(args) {
			m[p] = args[i]
		}
	}
	return m
}

// Substitute resolves generic parameters of t through m.
func Substitute(t *Type, m map[*Type]*Type) *Type {
	if t == nil || len(m) == 0 {
		return t
	}
	switch t.Kind {
	case KindGenericParam:
		if r, ok := m[t]; ok {
			return r
		}
		return t
	case KindArray:
		return ArrayOf(Substitute(t.Elem, m))
	case KindByRef:
		return RefOf(Substitute(t.Elem, m))
	case KindPending:
		return PendingOf(Substitute(t.Elem, m))
	}
	if t.Definition != nil {
		args := make([]*Type, len(t.GenericArgs))
		changed := false
		for i, a := range t.GenericArgs {
			args[i] = Substitute(a, m)
			changed = changed || args[i] != a
		}
		if changed {
			if inst, err := t.Definition.Instantiate(args...); err == nil {
				return inst
			}
		}
	}
	return t
}

// Zero returns the runtime zero value for t.
func Zero(t *Type) any {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case KindBool:
		return false
	case KindInt:
		return int64(0)
	case KindFloat:
		return float64(0)
	case KindString:
		return ""
	}
	return nil
}
