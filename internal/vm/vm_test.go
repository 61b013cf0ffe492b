package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/lower"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// implement lowers stmts as the body of method and installs it.
func implement(t *testing.T, method *ir.Method, stmts ...expr.Node) {
	t.Helper()
	body := lower.NewBody(method.Key())
	require.NoError(t, body.Append(stmts...))
	em, err := body.Seal(lower.Member{
		Key:       method.Key(),
		Declaring: method.Declaring,
		Params:    method.Params,
		Return:    method.Return,
		Static:    method.IsStatic(),
	})
	require.NoError(t, err)
	method.Impl = em
}

func plus(a expr.Node, n int64) expr.Node {
	return must(expr.Binary(expr.OpAdd, a, expr.Int(n)))
}

// TestInvoke_FinallyAfterReturn tests that a return inside a protected region
// yields the value computed before the finally handler runs.
func TestInvoke_FinallyAfterReturn(t *testing.T) {
	host := ir.NewClass("Host", nil)
	bump := host.DefineMethod("Bump", ir.Int, ir.MethodStatic, nil, ir.RefParam("c", ir.Int))
	c := bump.Params[0]

	guarded := must(expr.Block(
		must(expr.Assign(expr.Arg(c), plus(expr.Arg(c), 1))),
		must(expr.Return(must(expr.Binary(expr.OpMul, expr.Arg(c), expr.Int(10))))),
	))
	cleanup := must(expr.Assign(expr.Arg(c), plus(expr.Arg(c), 100)))
	implement(t, bump, must(expr.TryFinally(guarded, cleanup)))

	cell := &ir.Cell{Value: int64(0)}
	v, err := New().Invoke(bump, nil, []any{cell})
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
	assert.Equal(t, int64(101), cell.Value)
}

// TestInvoke_FinallyOnCompletion tests that a protected region completing
// normally runs its finally handler before the statements after it.
func TestInvoke_FinallyOnCompletion(t *testing.T) {
	host := ir.NewClass("Host", nil)
	bump := host.DefineMethod("Bump", ir.Int, ir.MethodStatic, nil, ir.RefParam("c", ir.Int))
	c := bump.Params[0]

	guarded := must(expr.Block(must(expr.Assign(expr.Arg(c), plus(expr.Arg(c), 1)))))
	cleanup := must(expr.Assign(expr.Arg(c), plus(expr.Arg(c), 100)))
	implement(t, bump,
		must(expr.TryFinally(guarded, cleanup)),
		must(expr.Return(expr.Arg(c))),
	)

	cell := &ir.Cell{Value: int64(0)}
	v, err := New().Invoke(bump, nil, []any{cell})
	require.NoError(t, err)
	assert.Equal(t, int64(101), v)
	assert.Equal(t, int64(101), cell.Value)
}

// TestInvokeContext tests that the invocation context reaches native
// members and is dropped once the invocation returns.
func TestInvokeContext(t *testing.T) {
	type key struct{}
	var seen []context.Context
	host := ir.NewClass("Host", nil)
	record := host.DefineMethod("Seen", ir.Void, ir.MethodStatic, ir.NativeFunc(func(c *ir.Call) (any, error) {
		seen = append(seen, c.Context)
		return nil, nil
	}))

	m := New()
	ctx := context.WithValue(context.Background(), key{}, "outer")
	_, err := m.InvokeContext(ctx, record, nil, nil)
	require.NoError(t, err)
	_, err = m.Invoke(record, nil, nil)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "outer", seen[0].Value(key{}))
	assert.Nil(t, seen[1].Value(key{}))
}

// TestInvoke_Catch tests that a runtime exception is caught by type.
func TestInvoke_Catch(t *testing.T) {
	host := ir.NewClass("Host", nil)
	safe := host.DefineMethod("Safe", ir.Int, ir.MethodStatic, nil, ir.Param("d", ir.Int))
	d := safe.Params[0]

	e := expr.NewVariable("e", ir.Exception)
	handler := must(expr.NewCatch(ir.Exception, e, must(expr.Return(expr.Int(-1)))))
	div := must(expr.Return(must(expr.Binary(expr.OpDiv, expr.Int(10), expr.Arg(d)))))
	implement(t, safe, must(expr.Try(div, []*expr.Catch{handler}, nil)))

	m := New()
	tests := []struct {
		d    int64
		want int64
	}{
		{2, 5},
		{0, -1},
		{-5, -2},
	}
	for _, tt := range tests {
		v, err := m.Invoke(safe, nil, []any{tt.d})
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, "d=%d", tt.d)
	}
}

// TestInvoke_UncaughtException tests that a thrown object escapes as *Exception.
func TestInvoke_UncaughtException(t *testing.T) {
	host := ir.NewClass("Host", nil)
	fail := host.DefineMethod("Fail", nil, ir.MethodStatic, nil)
	implement(t, fail, must(expr.Throw(must(expr.NewOf(ir.Exception, expr.Str("boom"))))))

	_, err := New().Invoke(fail, nil, nil)
	var exc *Exception
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, "boom", exc.Message())
	assert.Equal(t, "Exception: boom", err.Error())
}

// TestInvoke_NativeErrorSurfaces tests that a Go error raised by a native
// member crosses emitted frames unchanged and still runs finally handlers.
func TestInvoke_NativeErrorSurfaces(t *testing.T) {
	sentinel := errors.New("disk full")
	host := ir.NewClass("Host", nil)
	native := host.DefineMethod("Write", nil, ir.MethodStatic, ir.NativeFunc(func(*ir.Call) (any, error) {
		return nil, sentinel
	}))
	wrapper := host.DefineMethod("Guarded", nil, ir.MethodStatic, nil, ir.RefParam("flag", ir.Int))
	flag := wrapper.Params[0]
	implement(t, wrapper, must(expr.TryFinally(
		must(expr.Call(nil, native)),
		must(expr.Assign(expr.Arg(flag), expr.Int(1))),
	)))

	cell := &ir.Cell{Value: int64(0)}
	_, err := New().Invoke(wrapper, nil, []any{cell})
	assert.Same(t, sentinel, err)
	assert.Equal(t, int64(1), cell.Value)
}

// TestInvoke_VirtualDispatch tests that callvirt selects the override.
func TestInvoke_VirtualDispatch(t *testing.T) {
	animal := ir.NewClass("Animal", nil)
	animal.DefineConstructor(nil)
	speak := animal.DefineMethod("Speak", ir.String, ir.MethodVirtual, ir.NativeFunc(func(*ir.Call) (any, error) {
		return "...", nil
	}))
	dog := ir.NewClass("Dog", animal)
	dog.DefineConstructor(nil)
	bark := dog.DefineMethod("Speak", ir.String, ir.MethodVirtual, ir.NativeFunc(func(*ir.Call) (any, error) {
		return "woof", nil
	}))
	bark.Overrides = speak

	host := ir.NewClass("Host", nil)
	talk := host.DefineMethod("Talk", ir.String, ir.MethodStatic, nil, ir.Param("a", animal))
	implement(t, talk, must(expr.Return(must(expr.Call(expr.Arg(talk.Params[0]), speak)))))

	m := New()
	d, err := m.Construct(dog.Constructors[0])
	require.NoError(t, err)
	a, err := m.Construct(animal.Constructors[0])
	require.NoError(t, err)

	v, err := m.Invoke(talk, nil, []any{d})
	require.NoError(t, err)
	assert.Equal(t, "woof", v)

	v, err = m.Invoke(talk, nil, []any{a})
	require.NoError(t, err)
	assert.Equal(t, "...", v)

	v, err = m.InvokeVirtual(speak, d, nil)
	require.NoError(t, err)
	assert.Equal(t, "woof", v)

	_, err = m.Invoke(talk, nil, []any{nil})
	assert.ErrorContains(t, err, "null reference")
}

// TestInvoke_ByRefLocal tests that a callee writes through to the caller's local.
func TestInvoke_ByRefLocal(t *testing.T) {
	host := ir.NewClass("Host", nil)
	inc := host.DefineMethod("Inc", nil, ir.MethodStatic, ir.NativeFunc(func(c *ir.Call) (any, error) {
		r := c.Args[0].(ir.Reference)
		r.Store(r.Load().(int64) + 1)
		return nil, nil
	}), ir.RefParam("v", ir.Int))
	caller := host.DefineMethod("Caller", ir.Int, ir.MethodStatic, nil)

	x := expr.NewVariable("x", ir.Int)
	implement(t, caller, must(expr.Scope([]*expr.Variable{x},
		must(expr.Assign(expr.Var(x), expr.Int(5))),
		must(expr.Call(nil, inc, expr.Var(x))),
		must(expr.Call(nil, inc, expr.Var(x))),
		must(expr.Return(expr.Var(x))),
	)))

	v, err := New().Invoke(caller, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

// TestInvoke_GenericCast tests that a cast to a generic parameter checks the
// closed type argument.
func TestInvoke_GenericCast(t *testing.T) {
	host := ir.NewClass("Host", nil)
	unbox := host.DefineMethod("Unbox", nil, ir.MethodStatic, nil, ir.Param("o", ir.Object))
	tp := ir.NewGenericParam("T")
	unbox.GenericParams = []*ir.Type{tp}
	unbox.Return = tp
	implement(t, unbox, must(expr.Return(must(expr.Convert(expr.Arg(unbox.Params[0]), tp)))))

	asString := must(unbox.Instantiate(ir.String))
	m := New()

	v, err := m.Invoke(asString, nil, []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = m.Invoke(asString, nil, []any{int64(1)})
	assert.ErrorContains(t, err, "cannot cast int to string")
}

// TestInvoke_DepthLimit tests that unbounded recursion fails instead of
// exhausting the Go stack.
func TestInvoke_DepthLimit(t *testing.T) {
	host := ir.NewClass("Host", nil)
	spin := host.DefineMethod("Spin", ir.Int, ir.MethodStatic, nil, ir.Param("n", ir.Int))
	implement(t, spin, must(expr.Return(must(expr.Call(nil, spin, plus(expr.Arg(spin.Params[0]), 1))))))

	_, err := New(WithMaxDepth(8)).Invoke(spin, nil, []any{int64(0)})
	assert.ErrorContains(t, err, "maximum invocation depth exceeded")
}

// TestConstruct_InitChain tests that an emitted constructor chains to its
// base and initializes fields.
func TestConstruct_InitChain(t *testing.T) {
	point := ir.NewClass("Point", nil)
	xf := point.DefineField("X", ir.Int)
	ctor := point.DefineConstructor(nil, ir.Param("x", ir.Int))

	body := lower.NewBody(ctor.Key())
	require.NoError(t, body.Append(
		must(expr.Init(nil, ir.Object.Constructors[0])),
		must(expr.Assign(must(expr.Field(nil, xf)), expr.Arg(ctor.Params[0]))),
	))
	em, err := body.Seal(lower.Member{Key: ctor.Key(), Declaring: point, Params: ctor.Params, Return: ir.Void})
	require.NoError(t, err)
	ctor.Impl = em

	obj, err := New().Construct(ctor, int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), obj.(*Object).Get(xf))
}

// TestInstanceOf tests runtime type checks.
func TestInstanceOf(t *testing.T) {
	animal := ir.NewClass("Animal", nil)
	dog := ir.NewClass("Dog", animal)
	d := NewObject(dog)

	tests := []struct {
		name string
		v    any
		t    *ir.Type
		want bool
	}{
		{"int", int64(1), ir.Int, true},
		{"int as float", int64(1), ir.Float, false},
		{"string", "s", ir.String, true},
		{"null string", nil, ir.String, true},
		{"null int", nil, ir.Int, false},
		{"derived as base", d, animal, true},
		{"base as derived", NewObject(animal), dog, false},
		{"anything as object", int64(1), ir.Object, true},
		{"array", NewArray(ir.Int, 2), ir.ArrayOf(ir.Int), true},
		{"array elem mismatch", NewArray(ir.Int, 2), ir.ArrayOf(ir.String), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InstanceOf(tt.v, tt.t))
		})
	}
}
