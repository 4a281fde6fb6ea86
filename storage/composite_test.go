package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateStructAndLoadFieldAtIndex(t *testing.T) {
	m, _ := newTestManagerWithAsm()
	var buf []byte

	m.ClaimGeneralReg(&buf, "x")
	m.ClaimGeneralReg(&buf, "y")

	structLayout := NewStructLayout([]Layout{
		NewPrimitiveLayout(BuiltinI64),
		NewPrimitiveLayout(BuiltinI64),
	})

	st := m.CreateStruct(&buf, "point", structLayout, []Symbol{"x", "y"})
	require.True(t, st.IsStack())
	require.Equal(t, uint32(16), st.Stack().Size())

	field0 := m.LoadFieldAtIndex("point.x", "point", 0, structLayout)
	field1 := m.LoadFieldAtIndex("point.y", "point", 1, structLayout)

	require.True(t, field0.IsStack())
	require.True(t, field1.IsStack())
	require.Equal(t, field0.Stack().BaseOffset()+8, field1.Stack().BaseOffset())
}

func TestGetGeneralRegMaterializesReferencedPrimitiveAndReleasesHandle(t *testing.T) {
	m, asm := newTestManagerWithAsm()
	var buf []byte

	m.ClaimGeneralReg(&buf, "x")
	m.ClaimGeneralReg(&buf, "y")

	structLayout := NewStructLayout([]Layout{
		NewPrimitiveLayout(BuiltinI64),
		NewPrimitiveLayout(BuiltinI64),
	})
	m.CreateStruct(&buf, "point", structLayout, []Symbol{"x", "y"})
	m.LoadFieldAtIndex("point.y", "point", 1, structLayout)

	require.True(t, m.StorageOf("point.y").Stack().IsReferencedPrimitive())
	parentHandle := m.allocs["point"]
	require.Equal(t, 2, parentHandle.refcount)

	loadsBefore := asm.loads
	reg := m.GetGeneralReg(&buf, "point.y")
	require.NotEmpty(t, reg)
	require.Greater(t, asm.loads, loadsBefore)

	_, stillTracked := m.allocs["point.y"]
	require.False(t, stillTracked, "materializing a referenced primitive must release its own handle")
	require.Equal(t, 1, parentHandle.refcount, "releasing the field's share must drop the parent handle's refcount")
	require.True(t, m.StorageOf("point.y").IsReg())
}

func TestCopySymbolToStackOffsetRejectsAggregateLayout(t *testing.T) {
	m, _ := newTestManagerWithAsm()
	var buf []byte
	m.ClaimGeneralReg(&buf, "s")

	aggregate := NewStructLayout([]Layout{NewPrimitiveLayout(BuiltinI64)})

	require.Panics(t, func() {
		m.CopySymbolToStackOffset(&buf, "s", -8, aggregate)
	})
}

func TestLoadUnionTagIDRejectsRecursiveLayouts(t *testing.T) {
	m, _ := newTestManagerWithAsm()
	var buf []byte

	structLayout := NewStructLayout(nil)
	m.CreateStruct(&buf, "u", structLayout, nil)

	union := UnionLayout{Recursion: UnionRecursive, TagDataSize: 8, Alignment: 8, TagIDWidth: BuiltinU8}
	require.Panics(t, func() {
		m.LoadUnionTagID(&buf, "tag", "u", union)
	})
}
