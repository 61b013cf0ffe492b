package expr

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// AssignExpr stores Value into Target. It is a statement.
type AssignExpr struct {
	meta
	Target Assignable
	Value  Node
}

// Assign writes value into target. The target must be a variable, parameter,
// field, array element or writable property.
func Assign(target Node, value Node) (*AssignExpr, error) {
	dst, ok := target.(Assignable)
	if !ok {
		return nil, ir.NewInvalidTarget(fmt.Sprintf("%s cannot be assigned", describe(target)))
	}
	if p, ok := dst.(*PropertyExpr); ok && p.Property.Setter == nil {
		return nil, ir.NewInvalidTarget(fmt.Sprintf("property %s has no setter", p.Property.Name))
	}
	if IsVoid(value) || !(ir.Identical(value.Type(), dst.Type()) || ir.AssignableTo(value.Type(), dst.Type())) {
		return nil, ir.NewTypeMismatch("=", 1, dst.Type(), value.Type())
	}
	if err := Adopt(dst, value); err != nil {
		return nil, err
	}
	return &AssignExpr{meta: meta{typ: ir.Void}, Target: dst, Value: value}, nil
}

// BinaryOp is a binary operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAndAlso
	OpOrElse
)

var binaryNames = [...]string{"+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">=", "&&", "||"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// Comparison reports whether op produces a bool from two operands.
func (op BinaryOp) Comparison() bool { return op >= OpEq && op <= OpGe }

// BinaryExpr applies Op to Left and Right.
type BinaryExpr struct {
	meta
	Op    BinaryOp
	Left  Node
	Right Node
}

// Binary combines left and right with op.
//
// Arithmetic takes two numbers of the same kind, or int and float which
// widens to float; + also concatenates strings. Ordering comparisons take
// numbers or strings. Equality takes any two operands where one is assignable
// to the other. && and || take bools and short-circuit.
func Binary(op BinaryOp, left, right Node) (*BinaryExpr, error) {
	lt, rt := left.Type(), right.Type()
	var result *ir.Type
	switch {
	case op == OpAndAlso || op == OpOrElse:
		if lt.Kind != ir.KindBool {
			return nil, ir.NewTypeMismatch(op.String(), 1, ir.Bool, lt)
		}
		if rt.Kind != ir.KindBool {
			return nil, ir.NewTypeMismatch(op.String(), 2, ir.Bool, rt)
		}
		result = ir.Bool
	case op == OpEq || op == OpNe:
		if IsVoid(left) || IsVoid(right) ||
			!(ir.AssignableTo(lt, rt) || ir.AssignableTo(rt, lt)) {
			return nil, ir.NewTypeMismatch(op.String(), 2, lt, rt)
		}
		result = ir.Bool
	case op.Comparison():
		if _, err := numericResult(op, lt, rt); err != nil {
			if lt.Kind != ir.KindString || rt.Kind != ir.KindString {
				return nil, err
			}
		}
		result = ir.Bool
	case op == OpAdd && lt.Kind == ir.KindString:
		if rt.Kind != ir.KindString {
			return nil, ir.NewTypeMismatch(op.String(), 2, ir.String, rt)
		}
		result = ir.String
	default:
		t, err := numericResult(op, lt, rt)
		if err != nil {
			return nil, err
		}
		result = t
	}
	if err := Adopt(left, right); err != nil {
		return nil, err
	}
	return &BinaryExpr{meta: meta{typ: result}, Op: op, Left: left, Right: right}, nil
}

func numericResult(op BinaryOp, lt, rt *ir.Type) (*ir.Type, error) {
	if !isNumeric(lt) {
		return nil, ir.NewTypeMismatch(op.String(), 1, ir.Float, lt)
	}
	if !isNumeric(rt) {
		return nil, ir.NewTypeMismatch(op.String(), 2, ir.Float, rt)
	}
	if lt.Kind == ir.KindFloat || rt.Kind == ir.KindFloat {
		return ir.Float, nil
	}
	return ir.Int, nil
}

func isNumeric(t *ir.Type) bool { return t.Kind == ir.KindInt || t.Kind == ir.KindFloat }

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

func (op UnaryOp) String() string {
	if op == OpNot {
		return "!"
	}
	return "-"
}

// UnaryExpr applies Op to Operand.
type UnaryExpr struct {
	meta
	Op      UnaryOp
	Operand Node
}

// Unary applies op to operand: ! takes a bool, - takes a number.
func Unary(op UnaryOp, operand Node) (*UnaryExpr, error) {
	t := operand.Type()
	switch op {
	case OpNot:
		if t.Kind != ir.KindBool {
			return nil, ir.NewTypeMismatch(op.String(), 1, ir.Bool, t)
		}
	case OpNeg:
		if !isNumeric(t) {
			return nil, ir.NewTypeMismatch(op.String(), 1, ir.Float, t)
		}
	}
	if err := Adopt(operand); err != nil {
		return nil, err
	}
	return &UnaryExpr{meta: meta{typ: t}, Op: op, Operand: operand}, nil
}

// Not negates a bool.
func Not(operand Node) (*UnaryExpr, error) { return Unary(OpNot, operand) }

// ConvertExpr changes the static type of Operand. Conversions between int
// and float change the value; conversions to and from object or generic
// parameters box and unbox; conversions down a class hierarchy are checked
// at run time.
type ConvertExpr struct {
	meta
	Operand Node
}

// Convert converts operand to t.
func Convert(operand Node, t *ir.Type) (*ConvertExpr, error) {
	from := operand.Type()
	if IsVoid(operand) || !convertible(from, t) {
		return nil, ir.NewTypeMismatch("convert", 1, t, from)
	}
	if err := Adopt(operand); err != nil {
		return nil, err
	}
	return &ConvertExpr{meta: meta{typ: t}, Operand: operand}, nil
}

func convertible(from, to *ir.Type) bool {
	switch {
	case ir.Identical(from, to), ir.AssignableTo(from, to), ir.AssignableTo(to, from):
		return true
	case isNumeric(from) && isNumeric(to):
		return true
	case from.ContainsGenericParams() || to.ContainsGenericParams():
		return true
	case from.Kind == ir.KindInterface && ir.IsReference(to), to.Kind == ir.KindInterface && ir.IsReference(from):
		return true
	}
	return false
}

// ArrayExpr creates a one-dimensional array initialized from Items.
type ArrayExpr struct {
	meta
	Elem  *ir.Type
	Items []Node
}

// NewArray creates an array of elem holding items.
func NewArray(elem *ir.Type, items ...Node) (*ArrayExpr, error) {
	for i, it := range items {
		if IsVoid(it) || !(ir.Identical(it.Type(), elem) || ir.AssignableTo(it.Type(), elem)) {
			return nil, ir.NewTypeMismatch(ir.ArrayOf(elem).Key(), i+1, elem, it.Type())
		}
	}
	if err := Adopt(items...); err != nil {
		return nil, err
	}
	return &ArrayExpr{meta: meta{typ: ir.ArrayOf(elem)}, Elem: elem, Items: items}, nil
}

// IndexExpr reads or designates an array element.
type IndexExpr struct {
	meta
	Array Node
	Index Node
}

// Index designates array[index].
func Index(array, index Node) (*IndexExpr, error) {
	at := array.Type()
	if at.Kind != ir.KindArray {
		return nil, ir.NewInvalidTarget(fmt.Sprintf("%s is not an array", describe(array)))
	}
	if index.Type().Kind != ir.KindInt {
		return nil, ir.NewTypeMismatch("[]", 1, ir.Int, index.Type())
	}
	if err := Adopt(array, index); err != nil {
		return nil, err
	}
	return &IndexExpr{meta: meta{typ: at.Elem}, Array: array, Index: index}, nil
}

func (*IndexExpr) addressable() {}
func (*IndexExpr) assignable()  {}

// LengthExpr reads the length of an array.
type LengthExpr struct {
	meta
	Array Node
}

// Length reads the element count of array.
func Length(array Node) (*LengthExpr, error) {
	if array.Type().Kind != ir.KindArray {
		return nil, ir.NewInvalidTarget(fmt.Sprintf("%s is not an array", describe(array)))
	}
	if err := Adopt(array); err != nil {
		return nil, err
	}
	return &LengthExpr{meta: meta{typ: ir.Int}, Array: array}, nil
}
