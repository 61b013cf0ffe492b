package vm

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/lower"
	"github.com/tinylit/DeltaExpression/internal/sched"
)

// InstanceOf reports whether the runtime value v may be stored in a
// location of type t.
func InstanceOf(v any, t *ir.Type) bool {
	if t == nil {
		return false
	}
	if v == nil {
		return ir.IsReference(t) || t.Kind == ir.KindGenericParam
	}
	switch t.Kind {
	case ir.KindObject, ir.KindGenericParam:
		return true
	case ir.KindBool:
		_, ok := v.(bool)
		return ok
	case ir.KindInt:
		_, ok := v.(int64)
		return ok
	case ir.KindFloat:
		_, ok := v.(float64)
		return ok
	case ir.KindString:
		_, ok := v.(string)
		return ok
	case ir.KindPending:
		_, ok := v.(*sched.Pending)
		return ok
	case ir.KindArray:
		a, ok := v.(*Array)
		return ok && ir.AssignableTo(a.RuntimeType(), t)
	case ir.KindClass, ir.KindInterface:
		inst, ok := v.(ir.Instance)
		return ok && ir.AssignableTo(inst.RuntimeType(), t)
	}
	return false
}

func describe(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case ir.Instance:
		return v.RuntimeType().Key()
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	}
	return fmt.Sprintf("%T", v)
}

func arith(op lower.Op, a, b any) (any, *Object) {
	switch x := a.(type) {
	case int64:
		y := b.(int64)
		switch op {
		case lower.Add:
			return x + y, nil
		case lower.Sub:
			return x - y, nil
		case lower.Mul:
			return x * y, nil
		case lower.Div, lower.Rem:
			if y == 0 {
				return nil, NewException(ir.Exception, "integer division by zero")
			}
			if op == lower.Div {
				return x / y, nil
			}
			return x % y, nil
		}
	case float64:
		y := b.(float64)
		switch op {
		case lower.Add:
			return x + y, nil
		case lower.Sub:
			return x - y, nil
		case lower.Mul:
			return x * y, nil
		case lower.Div:
			return x / y, nil
		case lower.Rem:
			return x - y*float64(int64(x/y)), nil
		}
	case string:
		if op == lower.Add {
			return x + b.(string), nil
		}
	}
	return nil, NewException(ir.Exception, fmt.Sprintf("%s is not defined on %s", op, describe(a)))
}

func compare(op lower.Op, a, b any) bool {
	switch op {
	case lower.Ceq:
		return a == b
	case lower.Cne:
		return a != b
	}
	var c int
	switch x := a.(type) {
	case int64:
		c = cmp3(x, b.(int64))
	case float64:
		c = cmp3(x, b.(float64))
	case string:
		c = cmp3(x, b.(string))
	}
	switch op {
	case lower.Clt:
		return c < 0
	case lower.Cle:
		return c <= 0
	case lower.Cgt:
		return c > 0
	}
	return c >= 0
}

func cmp3[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
