package lower

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func assertGolden(t *testing.T, name string, m *EmittedMember) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(Disassemble(m)))
}

// addMember declares Calculator.Add(int i, ref int j) int.
func addMember() (Member, *ir.Parameter, *ir.Parameter) {
	var sig ir.Signature
	i := sig.DefineParameter(ir.Int, ir.In, "i")
	j := sig.DefineParameter(ir.Int, ir.Ref, "j")
	calc := ir.NewClass("Calculator", nil)
	return Member{
		Key:       "Calculator.Add(int,&int)",
		Declaring: calc,
		Params:    sig.Freeze(),
		Return:    ir.Int,
	}, i, j
}

// TestSeal_Add tests lowering of a by-ref read and a single return.
func TestSeal_Add(t *testing.T) {
	m, i, j := addMember()
	body := NewBody(m.Key)
	sum := must(expr.Binary(expr.OpAdd, expr.Arg(i), expr.Arg(j)))
	require.NoError(t, body.Append(must(expr.Return(sum))))

	em, err := body.Seal(m)
	require.NoError(t, err)
	assert.Equal(t, Sealed, body.State())
	assert.Equal(t, 1, em.Count(Ret))
	assertGolden(t, "add", em)
}

// TestSeal_TryFinallyEarlyReturn tests that returns inside a protected
// region leave through the finally handler.
func TestSeal_TryFinallyEarlyReturn(t *testing.T) {
	var sig ir.Signature
	x := sig.DefineParameter(ir.Int, ir.In, "x")
	m := Member{Key: "Host.Guarded(int)", Params: sig.Freeze(), Return: ir.Int, Static: true}

	v := expr.NewVariable("v", ir.Int)
	early := must(expr.If(
		must(expr.Binary(expr.OpGt, expr.Arg(x), expr.Int(0))),
		must(expr.Return(expr.Int(1))),
	))
	guarded := must(expr.Block(early, must(expr.Assign(expr.Var(v), expr.Int(2)))))
	cleanup := must(expr.Assign(expr.Var(v), must(expr.Binary(expr.OpAdd, expr.Var(v), expr.Int(10)))))
	try := must(expr.TryFinally(guarded, cleanup))

	body := NewBody(m.Key)
	require.NoError(t, body.Append(try, must(expr.Return(expr.Var(v)))))
	em, err := body.Seal(m)
	require.NoError(t, err)

	assert.Equal(t, 1, em.Count(Ret), "exactly one ret regardless of return count")
	assert.Equal(t, 2, em.Count(Leave), "early return and fall-through both leave the protected region")
	require.Len(t, em.Regions, 1)
	assert.Equal(t, FinallyRegion, em.Regions[0].Kind)
	assertGolden(t, "try_finally_return", em)
}

// TestSeal_ManyReturns tests that N return nodes produce one ret instruction.
func TestSeal_ManyReturns(t *testing.T) {
	for n := 1; n <= 5; n++ {
		m := Member{Key: "Host.Pick()", Return: ir.Int, Static: true}
		body := NewBody(m.Key)
		for k := 0; k < n; k++ {
			ret := must(expr.Return(expr.Int(int64(k))))
			cond := must(expr.If(expr.Bool(k%2 == 0), ret))
			require.NoError(t, body.Append(cond))
		}
		em, err := body.Seal(m)
		require.NoError(t, err)
		assert.Equal(t, 1, em.Count(Ret), "returns=%d", n)
		assert.Equal(t, n, em.Count(Br), "each return branches to the exit")
	}
}

// TestSeal_Twice tests that a sealed body rejects mutation and keeps its output.
func TestSeal_Twice(t *testing.T) {
	m := Member{Key: "Host.Noop()", Static: true}
	body := NewBody(m.Key)
	require.NoError(t, body.Append(expr.Int(1)))
	first, err := body.Seal(m)
	require.NoError(t, err)
	listing := Disassemble(first)
	fp := first.Fingerprint()

	_, err = body.Seal(m)
	assert.True(t, ir.IsBodySealed(err))
	err = body.Append(expr.Int(2))
	assert.True(t, ir.IsBodySealed(err))
	err = body.Declare(expr.NewVariable("x", ir.Int))
	assert.True(t, ir.IsBodySealed(err))

	assert.Same(t, first, body.Emitted())
	assert.Equal(t, listing, Disassemble(body.Emitted()))
	assert.Equal(t, fp, body.Emitted().Fingerprint())
}

// TestBody_States tests the Empty -> Building -> Sealed lifecycle.
func TestBody_States(t *testing.T) {
	body := NewBody("Host.M()")
	assert.Equal(t, Empty, body.State())
	require.NoError(t, body.Append(expr.Int(1)))
	assert.Equal(t, Building, body.State())
	_, err := body.Seal(Member{Key: "Host.M()", Static: true})
	require.NoError(t, err)
	assert.Equal(t, Sealed, body.State())
}

// TestSeal_BlockPopsValues tests that non-void statements are discarded.
func TestSeal_BlockPopsValues(t *testing.T) {
	m := Member{Key: "Host.M()", Static: true}
	body := NewBody(m.Key)
	blk := must(expr.Block(expr.Int(1), expr.Str("x")))
	require.NoError(t, body.Append(blk, expr.Int(3)))
	em, err := body.Seal(m)
	require.NoError(t, err)
	assert.Equal(t, 3, em.Count(Pop))
}

// TestSeal_SlotsFirstUse tests that slots follow first-use order and are never reused.
func TestSeal_SlotsFirstUse(t *testing.T) {
	m := Member{Key: "Host.M()", Static: true}
	a := expr.NewVariable("a", ir.Int)
	b := expr.NewVariable("b", ir.String)
	c := expr.NewVariable("c", ir.Int)

	body := NewBody(m.Key)
	require.NoError(t, body.Declare(c))
	require.NoError(t, body.Append(
		must(expr.Assign(expr.Var(b), expr.Str("x"))),
		must(expr.Scope([]*expr.Variable{a}, must(expr.Assign(expr.Var(a), expr.Int(1))))),
		must(expr.Assign(expr.Var(a), expr.Int(2))),
	))
	em, err := body.Seal(m)
	require.NoError(t, err)

	require.Len(t, em.Locals, 3)
	assert.Equal(t, "c", em.Locals[0].Name)
	assert.Equal(t, "b", em.Locals[1].Name)
	assert.Equal(t, "a", em.Locals[2].Name)
}

// TestSeal_LoopShape tests the pre-test loop layout.
func TestSeal_LoopShape(t *testing.T) {
	m := Member{Key: "Host.Count()", Return: ir.Int, Static: true}
	n := expr.NewVariable("n", ir.Int)
	test := must(expr.Binary(expr.OpLt, expr.Var(n), expr.Int(3)))
	step := must(expr.Assign(expr.Var(n), must(expr.Binary(expr.OpAdd, expr.Var(n), expr.Int(1)))))
	loop := must(expr.Loop(test, step))

	body := NewBody(m.Key)
	require.NoError(t, body.Append(loop, must(expr.Return(expr.Var(n)))))
	em, err := body.Seal(m)
	require.NoError(t, err)

	// 0 ldloc, 1 ldc, 2 clt, 3 brfalse end, ..., br top
	assert.Equal(t, BrFalse, em.Code[3].Op)
	end := em.Target(em.Code[3])
	assert.Equal(t, Br, em.Code[end-1].Op)
	assert.Equal(t, 0, em.Target(em.Code[end-1]), "loop branches back to the test")
}

// TestSeal_ReturnTypeMismatch tests return value checking against the member.
func TestSeal_ReturnTypeMismatch(t *testing.T) {
	m := Member{Key: "Host.M()", Return: ir.Int, Static: true}

	body := NewBody(m.Key)
	require.NoError(t, body.Append(must(expr.Return(expr.Str("x")))))
	_, err := body.Seal(m)
	assert.True(t, ir.IsTypeMismatch(err))
	assert.Equal(t, Building, body.State(), "failed lowering leaves the body open")

	body = NewBody(m.Key)
	require.NoError(t, body.Append(must(expr.Return(nil))))
	_, err = body.Seal(m)
	assert.True(t, ir.IsTypeMismatch(err))
}

// TestSeal_ThisInStatic tests that static members cannot load a receiver.
func TestSeal_ThisInStatic(t *testing.T) {
	host := ir.NewClass("Host", nil)
	m := Member{Key: "Host.M()", Declaring: host, Static: true}
	body := NewBody(m.Key)
	require.NoError(t, body.Append(expr.This(host)))
	_, err := body.Seal(m)
	require.Error(t, err)
}

// TestSeal_TryCatchFinallyNesting tests that a catch region is nested in the finally region.
func TestSeal_TryCatchFinallyNesting(t *testing.T) {
	m := Member{Key: "Host.M()", Static: true}
	ex := expr.NewVariable("e", ir.Exception)
	thrown := must(expr.Throw(must(expr.NewOf(ir.Exception, expr.Str("boom")))))
	handler := must(expr.NewCatch(ir.Exception, ex, expr.Int(0)))
	try := must(expr.Try(thrown, []*expr.Catch{handler}, expr.Int(1)))

	body := NewBody(m.Key)
	require.NoError(t, body.Append(try))
	em, err := body.Seal(m)
	require.NoError(t, err)

	require.Len(t, em.Regions, 2)
	inner, outer := em.Regions[0], em.Regions[1]
	assert.Equal(t, CatchRegion, inner.Kind)
	assert.Equal(t, FinallyRegion, outer.Kind)
	assert.Equal(t, inner.TryStart, outer.TryStart)
	assert.Equal(t, inner.HandlerEnd, outer.TryEnd, "finally protects the catch handler too")
}

// TestFingerprint_Stable tests that identical bodies hash identically.
func TestFingerprint_Stable(t *testing.T) {
	build := func(v int64) *EmittedMember {
		m := Member{Key: "Host.M()", Return: ir.Int, Static: true}
		body := NewBody(m.Key)
		require.NoError(t, body.Append(must(expr.Return(expr.Int(v)))))
		em, err := body.Seal(m)
		require.NoError(t, err)
		return em
	}
	a, b, c := build(1), build(1), build(2)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
}

// TestCanonicalJSON_Floats tests that float literals survive canonicalization as text.
func TestCanonicalJSON_Floats(t *testing.T) {
	m := Member{Key: "Host.F()", Return: ir.Float, Static: true}
	body := NewBody(m.Key)
	require.NoError(t, body.Append(must(expr.Return(expr.Float(2.5)))))
	em, err := body.Seal(m)
	require.NoError(t, err)

	data, err := CanonicalJSON(em)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operand":"float 2.5"`)
}
