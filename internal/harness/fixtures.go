package harness

import (
	"errors"
	"log/slog"

	"github.com/tinylit/DeltaExpression/internal/emit"
	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/sched"
)

// Env is what a fixture may use while building its type.
type Env struct {
	Loop   *sched.Loop
	Logger *slog.Logger

	// Record appends an entry to the scenario trace.
	Record func(entry string)
}

// Fixture builds the base type a scenario proxies.
type Fixture func(env Env) (*ir.Type, error)

// Fixtures are the base types scenarios can name.
//
//	calculator  emitted members: Add(int i, ref int j) int returns i + j,
//	            Double(int x, out int y) stores x + x in y
//	greeter     native members that record "call": Greet(string) string,
//	            GreetAsync(string) Pending<string>, Ping() Pending,
//	            Fail(string) string which always fails
var Fixtures = map[string]Fixture{
	"calculator": calculatorFixture,
	"greeter":    greeterFixture,
}

// ErrGreetFailed is the error Greeter.Fail returns.
var ErrGreetFailed = errors.New("greet failed")

func calculatorFixture(env Env) (*ir.Type, error) {
	te := emit.NewTypeEmitter("Calculator", nil, emit.WithLogger(env.Logger))

	add, err := te.DefineMethod("Add", ir.Int, ir.MethodVirtual)
	if err != nil {
		return nil, err
	}
	i := add.DefineParameter(ir.Int, ir.In, "i")
	j := add.DefineParameter(ir.Int, ir.Ref, "j")
	sum, err := expr.Binary(expr.OpAdd, expr.Arg(i), expr.Arg(j))
	if err != nil {
		return nil, err
	}
	ret, err := expr.Return(sum)
	if err != nil {
		return nil, err
	}
	if err := add.Append(ret); err != nil {
		return nil, err
	}

	double, err := te.DefineMethod("Double", ir.Void, ir.MethodVirtual)
	if err != nil {
		return nil, err
	}
	x := double.DefineParameter(ir.Int, ir.In, "x")
	y := double.DefineParameter(ir.Int, ir.Out, "y")
	twice, err := expr.Binary(expr.OpAdd, expr.Arg(x), expr.Arg(x))
	if err != nil {
		return nil, err
	}
	store, err := expr.Assign(expr.Arg(y), twice)
	if err != nil {
		return nil, err
	}
	if err := double.Append(store); err != nil {
		return nil, err
	}

	return te.CreateType()
}

func greeterFixture(env Env) (*ir.Type, error) {
	loop := env.Loop
	host := ir.NewClass("Greeter", nil)
	host.DefineConstructor(nil)
	host.DefineMethod("Greet", ir.String, ir.MethodVirtual, ir.NativeFunc(func(c *ir.Call) (any, error) {
		env.Record("call")
		return "hi " + c.Args[0].(string), nil
	}), ir.Param("name", ir.String))
	host.DefineMethod("GreetAsync", ir.PendingOf(ir.String), ir.MethodVirtual, ir.NativeFunc(func(c *ir.Call) (any, error) {
		name := c.Args[0].(string)
		return loop.Spawn(func() (any, error) {
			env.Record("call")
			return "hi " + name, nil
		}), nil
	}), ir.Param("name", ir.String))
	host.DefineMethod("Ping", ir.PendingOf(ir.Void), ir.MethodVirtual, ir.NativeFunc(func(*ir.Call) (any, error) {
		return loop.Spawn(func() (any, error) {
			env.Record("call")
			return nil, nil
		}), nil
	}))
	host.DefineMethod("Fail", ir.String, ir.MethodVirtual, ir.NativeFunc(func(*ir.Call) (any, error) {
		env.Record("call")
		return nil, ErrGreetFailed
	}), ir.Param("name", ir.String))
	return host, nil
}
