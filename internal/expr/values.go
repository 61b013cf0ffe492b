package expr

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// ConstExpr is a literal value.
type ConstExpr struct {
	meta
	Value any
}

// Const creates a literal of type t. The Go value must match the kind of t:
// bool, int/int64, float64 or string for the primitive kinds; nil for any
// reference type; any non-nil host value for object and class types.
func Const(v any, t *ir.Type) (*ConstExpr, error) {
	val, ok := normalizeConst(v, t)
	if !ok {
		return nil, &ir.BuildError{
			Code:     ir.CodeTypeMismatch,
			Message:  fmt.Sprintf("literal %v (%T) is not a %s", v, v, t.Key()),
			Expected: t,
		}
	}
	return &ConstExpr{meta: meta{typ: t}, Value: val}, nil
}

func normalizeConst(v any, t *ir.Type) (any, bool) {
	if v == nil {
		return nil, ir.IsReference(t)
	}
	switch t.Kind {
	case ir.KindBool:
		b, ok := v.(bool)
		return b, ok
	case ir.KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), true
		case int64:
			return n, true
		case int32:
			return int64(n), true
		}
		return nil, false
	case ir.KindFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
		return nil, false
	case ir.KindString:
		s, ok := v.(string)
		return s, ok
	case ir.KindObject, ir.KindClass, ir.KindInterface:
		return v, true
	}
	return nil, false
}

// Int creates an int literal.
func Int(v int64) *ConstExpr { return &ConstExpr{meta: meta{typ: ir.Int}, Value: v} }

// Bool creates a bool literal.
func Bool(v bool) *ConstExpr { return &ConstExpr{meta: meta{typ: ir.Bool}, Value: v} }

// Str creates a string literal.
func Str(v string) *ConstExpr { return &ConstExpr{meta: meta{typ: ir.String}, Value: v} }

// Float creates a float literal.
func Float(v float64) *ConstExpr { return &ConstExpr{meta: meta{typ: ir.Float}, Value: v} }

// Null creates the null literal.
func Null() *ConstExpr { return &ConstExpr{meta: meta{typ: ir.Null}} }

// DefaultExpr produces the zero value of its type.
type DefaultExpr struct {
	meta
}

// Default creates the zero value of t.
func Default(t *ir.Type) *DefaultExpr { return &DefaultExpr{meta: meta{typ: t}} }

// Variable is storage local to one member body. Its type is fixed at
// declaration; its value may be written any number of times. The lowering
// engine assigns the slot on first use.
type Variable struct {
	Name string
	Type *ir.Type
}

// NewVariable declares a local variable.
func NewVariable(name string, t *ir.Type) *Variable {
	return &Variable{Name: name, Type: t}
}

// VarExpr reads or designates a local variable.
type VarExpr struct {
	meta
	Var *Variable
}

// Var references v.
func Var(v *Variable) *VarExpr { return &VarExpr{meta: meta{typ: v.Type}, Var: v} }

func (*VarExpr) addressable() {}
func (*VarExpr) assignable()  {}

// ArgExpr reads or designates a parameter of the member being built. For a
// by-ref parameter the result type is the element type: reads dereference,
// assignments write through.
type ArgExpr struct {
	meta
	Param *ir.Parameter
}

// Arg references parameter p.
func Arg(p *ir.Parameter) *ArgExpr { return &ArgExpr{meta: meta{typ: p.Type}, Param: p} }

func (*ArgExpr) addressable() {}
func (*ArgExpr) assignable()  {}

// ThisExpr is the receiver of an instance member.
type ThisExpr struct {
	meta
}

// This references the receiver, statically typed as t.
func This(t *ir.Type) *ThisExpr { return &ThisExpr{meta: meta{typ: t}} }
