package linker

import (
	"bytes"
	"testing"
)

func TestMetadataEncodeDecodeRoundTrip(t *testing.T) {
	m := NewMetadata()
	m.RocFuncAddresses["roc__mainForHost_1_exposed"] = 0x401000
	m.RocFuncAddresses["roc__mainForHost_0_exposed"] = 0x401200
	m.AppFunctions = []string{"roc__mainForHost_0_exposed", "roc__mainForHost_1_exposed"}
	m.Surgeries["roc__mainForHost_1_exposed"] = []SurgerySite{
		{FileOffset: 0x2010, VirtualOffset: 0x3010, Size: 4},
		{FileOffset: 0x2050, VirtualOffset: 0x3050, Size: 8},
	}
	m.PLTAddresses["malloc"] = PLTAddress{FileOffset: 0x1020, VirtualAddress: 0x401020}
	m.DynSymIndices["malloc"] = 7
	m.DynamicSectionOffset = 0x1000
	m.SymbolTableSectionOffset = 0x5000
	m.SymbolTableSize = 0x600
	m.DynamicSymbolTableSectionOffset = 0x5600
	m.SharedLibIndex = 2
	m.DynamicLibCount = 5
	m.ExecLen = 0x10000
	m.LoadAlignConstraint = 0x200000
	m.AddedData = 56
	m.ShiftStart = 0x1000
	m.ShiftEnd = 0x2000
	m.FirstLoadAlignedSize = 0x1000
	m.LastVAddr = 0x600000

	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got := Decode(&buf)

	if len(got.RocFuncAddresses) != len(m.RocFuncAddresses) {
		t.Fatalf("RocFuncAddresses length mismatch: got %d, want %d", len(got.RocFuncAddresses), len(m.RocFuncAddresses))
	}
	for k, v := range m.RocFuncAddresses {
		if got.RocFuncAddresses[k] != v {
			t.Fatalf("RocFuncAddresses[%q] = %d, want %d", k, got.RocFuncAddresses[k], v)
		}
	}

	if len(got.AppFunctions) != len(m.AppFunctions) {
		t.Fatalf("AppFunctions length mismatch: got %v, want %v", got.AppFunctions, m.AppFunctions)
	}
	for i, f := range m.AppFunctions {
		if got.AppFunctions[i] != f {
			t.Fatalf("AppFunctions[%d] = %q, want %q", i, got.AppFunctions[i], f)
		}
	}

	sites := got.Surgeries["roc__mainForHost_1_exposed"]
	want := m.Surgeries["roc__mainForHost_1_exposed"]
	if len(sites) != len(want) {
		t.Fatalf("Surgeries length mismatch: got %d, want %d", len(sites), len(want))
	}
	for i := range want {
		if sites[i] != want[i] {
			t.Fatalf("Surgeries[%d] = %+v, want %+v", i, sites[i], want[i])
		}
	}

	if got.PLTAddresses["malloc"] != m.PLTAddresses["malloc"] {
		t.Fatalf("PLTAddresses mismatch: got %+v, want %+v", got.PLTAddresses["malloc"], m.PLTAddresses["malloc"])
	}
	if got.DynSymIndices["malloc"] != 7 {
		t.Fatalf("DynSymIndices[malloc] = %d, want 7", got.DynSymIndices["malloc"])
	}

	if got.DynamicSectionOffset != m.DynamicSectionOffset ||
		got.SymbolTableSectionOffset != m.SymbolTableSectionOffset ||
		got.SymbolTableSize != m.SymbolTableSize ||
		got.DynamicSymbolTableSectionOffset != m.DynamicSymbolTableSectionOffset ||
		got.SharedLibIndex != m.SharedLibIndex ||
		got.DynamicLibCount != m.DynamicLibCount ||
		got.ExecLen != m.ExecLen ||
		got.LoadAlignConstraint != m.LoadAlignConstraint ||
		got.AddedData != m.AddedData ||
		got.ShiftStart != m.ShiftStart ||
		got.ShiftEnd != m.ShiftEnd ||
		got.FirstLoadAlignedSize != m.FirstLoadAlignedSize ||
		got.LastVAddr != m.LastVAddr {
		t.Fatalf("scalar field mismatch: got %+v, want %+v", got, m)
	}
}

func TestMetadataEncodeIsKeySorted(t *testing.T) {
	m1 := NewMetadata()
	m1.RocFuncAddresses["zeta"] = 1
	m1.RocFuncAddresses["alpha"] = 2
	m1.RocFuncAddresses["mid"] = 3

	m2 := NewMetadata()
	m2.RocFuncAddresses["mid"] = 3
	m2.RocFuncAddresses["zeta"] = 1
	m2.RocFuncAddresses["alpha"] = 2

	var b1, b2 bytes.Buffer
	if err := m1.Encode(&b1); err != nil {
		t.Fatalf("Encode m1: %v", err)
	}
	if err := m2.Encode(&b2); err != nil {
		t.Fatalf("Encode m2: %v", err)
	}
	if !bytes.Equal(b1.Bytes(), b2.Bytes()) {
		t.Fatal("Encode is not deterministic across map insertion order")
	}
}

func TestMetadataInShiftWindow(t *testing.T) {
	m := NewMetadata()
	m.ShiftStart = 0x1000
	m.ShiftEnd = 0x2000

	cases := []struct {
		v    uint64
		want bool
	}{
		{0x0FFF, false},
		{0x1000, true},
		{0x1800, true},
		{0x1FFF, true},
		{0x2000, false},
	}
	for _, c := range cases {
		if got := m.InShiftWindow(c.v); got != c.want {
			t.Fatalf("InShiftWindow(0x%x) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestMetadataEncodeEmpty(t *testing.T) {
	m := NewMetadata()
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got := Decode(&buf)
	if len(got.RocFuncAddresses) != 0 || len(got.AppFunctions) != 0 || len(got.Surgeries) != 0 {
		t.Fatalf("expected empty decode, got %+v", got)
	}
}
