package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "byref", KindByRef.String())
	assert.Equal(t, "generic-param", KindGenericParam.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestDerivedTypesAreCached(t *testing.T) {
	assert.Same(t, ArrayOf(Int), ArrayOf(Int))
	assert.Same(t, RefOf(String), RefOf(String))
	assert.Same(t, Pending, PendingOf(Void))
	assert.Same(t, Pending, PendingOf(nil))

	assert.Equal(t, "int[]", ArrayOf(Int).Key())
	assert.Equal(t, "&int", RefOf(Int).Key())
	assert.Equal(t, "pending<string>", PendingOf(String).Key())
	assert.Same(t, Object, ArrayOf(Int).Base)
}

func TestIdentical(t *testing.T) {
	a1 := NewClass("A", nil)
	a2 := NewClass("A", nil)
	b := NewClass("B", nil)

	assert.True(t, Identical(a1, a2), "same name denotes the same type")
	assert.False(t, Identical(a1, b))
	assert.True(t, Identical(ArrayOf(a1), ArrayOf(a2)))
	assert.False(t, Identical(Int, RefOf(Int)))
	assert.False(t, Identical(nil, Int))
}

func TestAssignableTo(t *testing.T) {
	shape := NewClass("Shape", nil)
	circle := NewClass("Circle", shape)
	iBase := NewInterface("INamed")
	iChild := NewInterface("ILabeled", iBase)
	label := NewClass("Label", nil, iChild)

	tests := []struct {
		name     string
		from, to *Type
		want     bool
	}{
		{"identical", Int, Int, true},
		{"int widens to float", Int, Float, true},
		{"float does not narrow", Float, Int, false},
		{"null to reference", Null, String, true},
		{"null to value", Null, Int, false},
		{"derived to base", circle, shape, true},
		{"base to derived", shape, circle, false},
		{"class to object", circle, Object, true},
		{"value to object", Int, Object, true},
		{"class to interface", label, iChild, true},
		{"class to extended interface", label, iBase, true},
		{"unrelated class to interface", circle, iBase, false},
		{"covariant reference array", ArrayOf(circle), ArrayOf(shape), true},
		{"value array is invariant", ArrayOf(Int), ArrayOf(Float), false},
		{"pending value to valueless pending", PendingOf(Int), Pending, true},
		{"valueless pending to pending value", Pending, PendingOf(Int), false},
		{"by-ref never assignable", RefOf(Int), Object, false},
		{"void never assignable", Void, Object, false},
		{"nil", nil, Object, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssignableTo(tt.from, tt.to))
		})
	}
}

func TestIsValueAndReference(t *testing.T) {
	assert.True(t, IsValue(Int))
	assert.True(t, IsValue(Bool))
	assert.False(t, IsValue(String))
	assert.True(t, IsReference(String))
	assert.True(t, IsReference(ArrayOf(Int)))
	assert.False(t, IsReference(Float))
	assert.False(t, IsReference(Void))
}

func TestInstantiateGenericClass(t *testing.T) {
	box := NewGenericClass("Box", nil, "T")
	param := box.GenericParams[0]
	box.DefineField("Value", param)
	box.DefineConstructor(nil, Param("value", param))
	get := box.DefineMethod("Get", param, MethodVirtual, nil)

	require.True(t, box.IsGenericDefinition())
	require.True(t, box.ContainsGenericParams())

	inst, err := box.Instantiate(Int)
	require.NoError(t, err)
	assert.Equal(t, "Box<int>", inst.Key())
	assert.False(t, inst.ContainsGenericParams())
	assert.Same(t, Int, inst.Fields[0].Type)
	assert.Same(t, inst, inst.Fields[0].Declaring)
	assert.Same(t, Int, inst.Constructors[0].Params[0].Type)
	assert.Same(t, Int, inst.Methods[0].Return)
	assert.Same(t, get, inst.Methods[0].Definition())
	assert.Same(t, param, box.Fields[0].Type, "definition stays open")

	again, err := box.Instantiate(Int)
	require.NoError(t, err)
	assert.Same(t, inst, again)

	_, err = box.Instantiate(Int, String)
	assert.True(t, IsTypeMismatch(err))

	_, err = NewClass("Plain", nil).Instantiate(Int)
	assert.True(t, IsSignatureNotFound(err))
}

func TestSubstitute(t *testing.T) {
	box := NewGenericClass("Box", nil, "T")
	param := box.GenericParams[0]
	m := GenericMap(box, []*Type{String})

	assert.Same(t, String, Substitute(param, m))
	assert.Same(t, ArrayOf(String), Substitute(ArrayOf(param), m))
	assert.Same(t, RefOf(String), Substitute(RefOf(param), m))
	assert.Same(t, Int, Substitute(Int, m))
	assert.Same(t, param, Substitute(param, nil))
}

func TestZero(t *testing.T) {
	assert.Equal(t, int64(0), Zero(Int))
	assert.Equal(t, float64(0), Zero(Float))
	assert.Equal(t, false, Zero(Bool))
	assert.Equal(t, "", Zero(String))
	assert.Nil(t, Zero(Object))
	assert.Nil(t, Zero(nil))
}
