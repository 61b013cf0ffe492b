package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinylit/DeltaExpression/internal/emit"
	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
)

// createTestStore creates a new store in a temporary directory with
// sequential build ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	n := 0
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("build-%d", n)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestType finalizes a Calculator with an emitted Add(int, ref int),
// a native Reset, a runtime-provided Extern and the default constructor.
func createTestType(t *testing.T) *ir.Type {
	t.Helper()
	te := emit.NewTypeEmitter("Calculator", nil)
	add, err := te.DefineMethod("Add", ir.Int, ir.MethodVirtual)
	require.NoError(t, err)
	i := add.DefineParameter(ir.Int, ir.In, "i")
	j := add.DefineParameter(ir.Int, ir.Ref, "j")
	sum, err := expr.Binary(expr.OpAdd, expr.Arg(i), expr.Arg(j))
	require.NoError(t, err)
	ret, err := expr.Return(sum)
	require.NoError(t, err)
	require.NoError(t, add.Append(ret))

	_, err = te.DefineNative("Reset", nil, 0, func(*ir.Call) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = te.DefineMethod("Extern", ir.Int, ir.MethodVirtual|ir.MethodRuntimeProvided)
	require.NoError(t, err)

	typ, err := te.CreateType()
	require.NoError(t, err)
	return typ
}
