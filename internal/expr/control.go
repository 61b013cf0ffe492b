package expr

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// BlockExpr evaluates Stmts in order. A block is a statement: the value of
// any non-void child is discarded.
type BlockExpr struct {
	meta
	Vars  []*Variable
	Stmts []Node
}

// Block groups stmts into a single statement.
func Block(stmts ...Node) (*BlockExpr, error) {
	return Scope(nil, stmts...)
}

// Scope groups stmts and declares vars up front so their slots are assigned
// in declaration order.
func Scope(vars []*Variable, stmts ...Node) (*BlockExpr, error) {
	for i, s := range stmts {
		if s == nil {
			return nil, ir.NewInvalidTarget(fmt.Sprintf("block statement %d is nil", i+1))
		}
	}
	if err := Adopt(stmts...); err != nil {
		return nil, err
	}
	return &BlockExpr{meta: meta{typ: ir.Void}, Vars: vars, Stmts: stmts}, nil
}

// IfExpr evaluates Then when Test is true and Else, if present, otherwise.
type IfExpr struct {
	meta
	Test Node
	Then Node
	Else Node
}

// If runs then when test holds. The result is void; a value produced by then
// is discarded.
func If(test, then Node) (*IfExpr, error) {
	if err := checkCondition(test); err != nil {
		return nil, err
	}
	if err := Adopt(test, then); err != nil {
		return nil, err
	}
	return &IfExpr{meta: meta{typ: ir.Void}, Test: test, Then: then}, nil
}

// IfElse selects between then and otherwise. When both branches produce the
// identical type the conditional yields that value; otherwise it is void.
func IfElse(test, then, otherwise Node) (*IfExpr, error) {
	if err := checkCondition(test); err != nil {
		return nil, err
	}
	t := ir.Void
	if !IsVoid(then) && !IsVoid(otherwise) && ir.Identical(then.Type(), otherwise.Type()) {
		t = then.Type()
	}
	if err := Adopt(test, then, otherwise); err != nil {
		return nil, err
	}
	return &IfExpr{meta: meta{typ: t}, Test: test, Then: then, Else: otherwise}, nil
}

func checkCondition(test Node) error {
	if test == nil || test.Type().Kind != ir.KindBool {
		actual := ir.Void
		if test != nil {
			actual = test.Type()
		}
		return ir.NewInvalidCondition(actual)
	}
	return nil
}

// LoopExpr evaluates Body while Test holds, checking Test before each pass.
type LoopExpr struct {
	meta
	Test Node
	Body Node
}

// Loop repeats body while test holds.
func Loop(test, body Node) (*LoopExpr, error) {
	if err := checkCondition(test); err != nil {
		return nil, err
	}
	if err := Adopt(test, body); err != nil {
		return nil, err
	}
	return &LoopExpr{meta: meta{typ: ir.Void}, Test: test, Body: body}, nil
}

// ReturnExpr leaves the member, optionally with a value. The value is checked
// against the member's return type when the body is lowered.
type ReturnExpr struct {
	meta
	Value Node
}

// Return leaves the member with value; pass nil to return from a void member.
func Return(value Node) (*ReturnExpr, error) {
	if value != nil && IsVoid(value) {
		return nil, ir.NewTypeMismatch("return", 1, ir.Object, ir.Void)
	}
	if err := Adopt(value); err != nil {
		return nil, err
	}
	return &ReturnExpr{meta: meta{typ: ir.Void}, Value: value}, nil
}

// ThrowExpr raises an exception object.
type ThrowExpr struct {
	meta
	Value Node
}

// Throw raises value, which must be an exception.
func Throw(value Node) (*ThrowExpr, error) {
	if value == nil || !ir.AssignableTo(value.Type(), ir.Exception) {
		actual := ir.Void
		if value != nil {
			actual = value.Type()
		}
		return nil, ir.NewTypeMismatch("throw", 1, ir.Exception, actual)
	}
	if err := Adopt(value); err != nil {
		return nil, err
	}
	return &ThrowExpr{meta: meta{typ: ir.Void}, Value: value}, nil
}

// Catch handles exceptions assignable to Type. Var, when set, receives the
// caught exception.
type Catch struct {
	Type *ir.Type
	Var  *Variable
	Body Node
}

// NewCatch creates a handler for exceptions of type t.
func NewCatch(t *ir.Type, v *Variable, body Node) (*Catch, error) {
	if !ir.AssignableTo(t, ir.Exception) {
		return nil, ir.NewTypeMismatch("catch", 1, ir.Exception, t)
	}
	if v != nil && !ir.AssignableTo(t, v.Type) {
		return nil, ir.NewTypeMismatch("catch", 2, v.Type, t)
	}
	if err := Adopt(body); err != nil {
		return nil, err
	}
	return &Catch{Type: t, Var: v, Body: body}, nil
}

// TryExpr guards Body with Catches and a Finally block. It is a statement.
type TryExpr struct {
	meta
	Body    Node
	Catches []*Catch
	Finally Node
}

// Try guards body. At least one catch or a finally block is required; pass a
// nil finally to omit it.
func Try(body Node, catches []*Catch, finally Node) (*TryExpr, error) {
	if len(catches) == 0 && finally == nil {
		return nil, ir.NewInvalidTarget("try requires a catch or a finally block")
	}
	if err := Adopt(body, finally); err != nil {
		return nil, err
	}
	return &TryExpr{meta: meta{typ: ir.Void}, Body: body, Catches: catches, Finally: finally}, nil
}

// TryFinally guards body with a finally block.
func TryFinally(body, finally Node) (*TryExpr, error) {
	return Try(body, nil, finally)
}
