package expr

import (
	"github.com/tinylit/DeltaExpression/internal/ir"
)

// CheckArguments verifies that args fit params: the count must match exactly
// and each argument's type must be identical or assignable to its parameter.
// By-ref parameters take an addressable argument of the identical element
// type. The first offending position is reported.
func CheckArguments(member string, params []*ir.Parameter, args []Node) error {
	if len(args) != len(params) {
		return ir.NewArityMismatch(member, len(params), len(args))
	}
	for i, p := range params {
		a := args[i]
		if a == nil {
			return ir.NewTypeMismatch(member, i+1, p.Type, ir.Void)
		}
		if !argumentFits(p, a) {
			return ir.NewTypeMismatch(member, i+1, p.SlotType(), a.Type())
		}
	}
	return nil
}

func argumentFits(p *ir.Parameter, a Node) bool {
	if p.ByRef() {
		if _, ok := a.(Addressable); !ok {
			return false
		}
		return ir.Identical(a.Type(), p.Type) || p.Type.ContainsGenericParams()
	}
	if ir.Identical(a.Type(), p.Type) || ir.AssignableTo(a.Type(), p.Type) {
		return true
	}
	return p.Type.ContainsGenericParams() && !IsVoid(a)
}

// receiver returns the instance target for a member declared on declaring.
// A nil target on an instance member means this.
func receiver(member string, target Node, declaring *ir.Type, static bool) (Node, error) {
	if static {
		if target != nil {
			return nil, ir.NewInvalidTarget(member + ": static member accessed through an instance")
		}
		return nil, nil
	}
	if target == nil {
		return This(declaring), nil
	}
	if !ir.AssignableTo(target.Type(), declaring) {
		return nil, ir.NewReceiverMismatch(member, declaring, target.Type())
	}
	return target, nil
}

// FieldExpr reads or designates a field. Target is nil for static fields.
type FieldExpr struct {
	meta
	Target Node
	Field  *ir.Field
}

// Field accesses f on target. A nil target on an instance field means this.
func Field(target Node, f *ir.Field) (*FieldExpr, error) {
	recv, err := receiver(f.Name, target, f.Declaring, f.Static)
	if err != nil {
		return nil, err
	}
	if err := Adopt(recv); err != nil {
		return nil, err
	}
	return &FieldExpr{meta: meta{typ: f.Type}, Target: recv, Field: f}, nil
}

func (*FieldExpr) addressable() {}
func (*FieldExpr) assignable()  {}

// PropertyExpr reads a property through its getter or writes it through its setter.
type PropertyExpr struct {
	meta
	Target   Node
	Property *ir.Property
}

// Property accesses p on target. A nil target on an instance property means this.
func Property(target Node, p *ir.Property) (*PropertyExpr, error) {
	static := (p.Getter != nil && p.Getter.IsStatic()) || (p.Setter != nil && p.Setter.IsStatic())
	recv, err := receiver(p.Name, target, p.Declaring, static)
	if err != nil {
		return nil, err
	}
	if err := Adopt(recv); err != nil {
		return nil, err
	}
	return &PropertyExpr{meta: meta{typ: p.Type}, Target: recv, Property: p}, nil
}

func (*PropertyExpr) assignable() {}

// CallExpr invokes a method. Target is nil for static methods. Virtual is
// false for calls that must bind to exactly Method, such as base calls.
type CallExpr struct {
	meta
	Target  Node
	Method  *ir.Method
	Args    []Node
	Virtual bool
}

// Call invokes m on target with args, dispatching virtually when m is
// virtual. A nil target on an instance method means this.
func Call(target Node, m *ir.Method, args ...Node) (*CallExpr, error) {
	return newCall(target, m, args, m.IsVirtual())
}

// CallBase invokes exactly m on target, bypassing virtual dispatch.
func CallBase(target Node, m *ir.Method, args ...Node) (*CallExpr, error) {
	return newCall(target, m, args, false)
}

func newCall(target Node, m *ir.Method, args []Node, virtual bool) (*CallExpr, error) {
	if m.IsGenericDefinition() {
		return nil, ir.NewUnsupportedMember(m.Key(), "generic method definition must be instantiated before it is invoked")
	}
	recv, err := receiver(m.Key(), target, m.Declaring, m.IsStatic())
	if err != nil {
		return nil, err
	}
	if err := CheckArguments(m.Key(), m.Params, args); err != nil {
		return nil, err
	}
	if err := Adopt(append([]Node{recv}, args...)...); err != nil {
		return nil, err
	}
	return &CallExpr{meta: meta{typ: m.Return}, Target: recv, Method: m, Args: args, Virtual: virtual}, nil
}

// InitExpr runs a constructor on an already allocated instance. Constructor
// bodies use it to chain to a base or sibling constructor.
type InitExpr struct {
	meta
	Target      Node
	Constructor *ir.Constructor
	Args        []Node
}

// Init runs c on target, which defaults to this.
func Init(target Node, c *ir.Constructor, args ...Node) (*InitExpr, error) {
	recv, err := receiver(c.Key(), target, c.Declaring, false)
	if err != nil {
		return nil, err
	}
	if err := CheckArguments(c.Key(), c.Params, args); err != nil {
		return nil, err
	}
	if err := Adopt(append([]Node{recv}, args...)...); err != nil {
		return nil, err
	}
	return &InitExpr{meta: meta{typ: ir.Void}, Target: recv, Constructor: c, Args: args}, nil
}

// NewExpr constructs an instance of Constructor.Declaring.
type NewExpr struct {
	meta
	Constructor *ir.Constructor
	Args        []Node
}

// New constructs an instance through c.
func New(c *ir.Constructor, args ...Node) (*NewExpr, error) {
	if c.Declaring.Abstract {
		return nil, ir.NewUnsupportedMember(c.Key(), "cannot construct an abstract type")
	}
	if err := CheckArguments(c.Key(), c.Params, args); err != nil {
		return nil, err
	}
	if err := Adopt(args...); err != nil {
		return nil, err
	}
	return &NewExpr{meta: meta{typ: c.Declaring}, Constructor: c, Args: args}, nil
}

// NewOf constructs an instance of t, resolving the constructor from the
// arguments: an exact match on static types wins, then the first constructor
// whose parameters accept the arguments.
func NewOf(t *ir.Type, args ...Node) (*NewExpr, error) {
	argTypes := make([]*ir.Type, len(args))
	for i, a := range args {
		argTypes[i] = a.Type()
	}
	if c, err := t.Constructor(argTypes...); err == nil {
		return New(c, args...)
	}
	for _, c := range t.Constructors {
		if !c.Private && CheckArguments(c.Key(), c.Params, args) == nil {
			return New(c, args...)
		}
	}
	return nil, ir.NewSignatureNotFound(t, ".ctor", argTypes)
}
