package plan

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinylit/DeltaExpression/internal/aop"
	"github.com/tinylit/DeltaExpression/internal/ir"
)

func calculator() (*ir.Type, *ir.Method) {
	calc := ir.NewClass("Calculator", nil)
	add := calc.DefineMethod("Add", ir.Int, ir.MethodVirtual, nil, ir.Param("i", ir.Int), ir.RefParam("j", ir.Int))
	return calc, add
}

// TestCompileString tests that chains keep their order and entries are
// sorted by member key.
func TestCompileString(t *testing.T) {
	p, err := CompileString("plan.cue", `
		intercept: {
			"Greeter.Greet(string)": ["timing"]
			"Calculator.Add(int,&int)": ["logging", "timing"]
		}
	`)
	require.NoError(t, err)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, "Calculator.Add(int,&int)", p.Entries[0].Member)
	assert.Equal(t, []string{"logging", "timing"}, p.Entries[0].Interceptors)
	assert.Equal(t, "Greeter.Greet(string)", p.Entries[1].Member)
	assert.True(t, p.Entries[0].Pos.IsValid())
}

// TestCompileString_Empty tests that a plan without an intercept table is
// valid and empty.
func TestCompileString_Empty(t *testing.T) {
	p, err := CompileString("plan.cue", ``)
	require.NoError(t, err)
	assert.Empty(t, p.Entries)
}

// TestCompileString_NormalizesKeys tests NFC normalization of member keys.
func TestCompileString_NormalizesKeys(t *testing.T) {
	p, err := CompileString("plan.cue", "intercept: \"Menu.Cafe\u0301()\": [\"timing\"]")
	require.NoError(t, err)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, "Menu.Caf\u00e9()", p.Entries[0].Member)
}

// TestCompileString_Errors tests plans rejected by the schema or the compiler.
func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown top-level field", `chains: {}`},
		{"empty chain", `intercept: "A.B()": []`},
		{"non-string name", `intercept: "A.B()": [1]`},
		{"chain not a list", `intercept: "A.B()": "logging"`},
		{"duplicate name", `intercept: "A.B()": ["timing", "timing"]`},
		{"syntax", `intercept: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString("plan.cue", tt.src)
			assert.Error(t, err)
		})
	}

	_, err := CompileString("plan.cue", `intercept: "A.B()": ["timing", "timing"]`)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "intercept.A.B()", ce.Field)
	assert.Contains(t, ce.Error(), "listed twice")
}

// TestLoad tests loading every CUE file of a directory as one plan.
func TestLoad(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "plans"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Files)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, "Calculator.Add(int,&int)", p.Entries[0].Member)
	assert.Equal(t, "Greeter.Greet(string)", p.Entries[1].Member)
}

// TestLoad_Errors tests missing and empty plan directories.
func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "no CUE files")

	_, err = Load(filepath.Join("testdata", "plans", "calculator.cue"))
	assert.ErrorContains(t, err, "not a directory")
}

// TestCatalog_Apply tests registering plan chains in order.
func TestCatalog_Apply(t *testing.T) {
	_, add := calculator()
	var order []string
	c := NewCatalog()
	for _, name := range []string{"a", "b"} {
		name := name
		c.Add(name, func() aop.Interceptor {
			return aop.Hooks{Before: func(*aop.InterceptContext) error {
				order = append(order, name)
				return nil
			}}
		})
	}
	p, err := CompileString("plan.cue", `intercept: "Calculator.Add(int,&int)": ["b", "a"]`)
	require.NoError(t, err)

	reg := aop.NewRegistry()
	require.NoError(t, c.Apply(p, reg))
	chain := reg.Chain(add)
	require.Len(t, chain, 2)

	ic, err := aop.NewInterceptContext(add, nil, []any{int64(1), &ir.Cell{Value: int64(2)}})
	require.NoError(t, err)
	v, err := aop.Invoke[int64](ic, chain, func() (int64, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, []string{"b", "a"}, order)
}

// TestCatalog_ApplyUnknown tests that an unknown name registers nothing.
func TestCatalog_ApplyUnknown(t *testing.T) {
	c := Builtins(slog.Default())
	assert.Equal(t, []string{"logging", "timing"}, c.Names())

	p, err := CompileString("plan.cue", `
		intercept: "Calculator.Add(int,&int)": ["logging"]
		intercept: "Calculator.Sub(int,int)": ["retry"]
	`)
	require.NoError(t, err)
	require.Len(t, c.Validate(p), 1)

	reg := aop.NewRegistry()
	err = c.Apply(p, reg)
	assert.ErrorContains(t, err, `unknown interceptor "retry"`)
	assert.Zero(t, reg.Len())
}

// TestPlan_Unbound tests detection of entries naming no virtual member.
func TestPlan_Unbound(t *testing.T) {
	calc, _ := calculator()
	p, err := CompileString("plan.cue", `
		intercept: "Calculator.Add(int,&int)": ["logging"]
		intercept: "Calculator.Mul(int,int)": ["logging"]
	`)
	require.NoError(t, err)

	unbound := p.Unbound(calc)
	require.Len(t, unbound, 1)
	assert.Equal(t, "Calculator.Mul(int,int)", unbound[0].Member)
}

// TestBuiltins tests that the builtin interceptors log through the given
// logger and pass outcomes through.
func TestBuiltins(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := Builtins(logger)
	_, add := calculator()

	var chain []aop.Interceptor
	for _, name := range c.Names() {
		f, ok := c.Lookup(name)
		require.True(t, ok)
		chain = append(chain, f())
	}
	ic, err := aop.NewInterceptContext(add, nil, []any{int64(1), int64(2)})
	require.NoError(t, err)

	errOverflow := errors.New("overflow")
	_, err = aop.Invoke[int64](ic, chain, func() (int64, error) { return 0, errOverflow })
	assert.ErrorIs(t, err, errOverflow)

	out := buf.String()
	assert.Contains(t, out, "msg=intercept ")
	assert.Contains(t, out, `msg="intercept failed"`)
	assert.Contains(t, out, `msg="intercept timing"`)
	assert.Contains(t, out, "Calculator.Add(int,&int)")
}
