package linker

import "testing"

func TestHasDataPrefix(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{".data", true},
		{".data.rel.ro", true},
		{".rodata", true},
		{".rodata.str1.1", true},
		{".bss", true},
		{".text", false},
		{".text.unlikely", false},
		{".comment", false},
	}
	for _, c := range cases {
		if got := hasDataPrefix(c.name); got != c.want {
			t.Fatalf("hasDataPrefix(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestAlignedOffset(t *testing.T) {
	cases := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 0x10},
		{0x10, 0x10},
		{0x11, 0x20},
		{0xFF, 0x100},
	}
	for _, c := range cases {
		if got := alignedOffset(c.in); got != c.want {
			t.Fatalf("alignedOffset(0x%x) = 0x%x, want 0x%x", c.in, got, c.want)
		}
	}
}

func TestComputeNewSegmentVAddrSameResidue(t *testing.T) {
	md := &Metadata{LoadAlignConstraint: 0x1000, LastVAddr: 0x500000}
	got := computeNewSegmentVAddr(0x3000, md)
	if got != md.LastVAddr {
		t.Fatalf("computeNewSegmentVAddr = 0x%x, want 0x%x (same residue)", got, md.LastVAddr)
	}
}

func TestComputeNewSegmentVAddrOffsetResidueHigher(t *testing.T) {
	md := &Metadata{LoadAlignConstraint: 0x1000, LastVAddr: 0x500000}
	got := computeNewSegmentVAddr(0x3400, md)
	want := md.LastVAddr + 0x400
	if got != want {
		t.Fatalf("computeNewSegmentVAddr = 0x%x, want 0x%x", got, want)
	}
	if got%md.LoadAlignConstraint != 0x3400%md.LoadAlignConstraint {
		t.Fatalf("residues do not match: got %%=0x%x, want 0x%x", got%md.LoadAlignConstraint, 0x3400%md.LoadAlignConstraint)
	}
}

func TestComputeNewSegmentVAddrVaddrResidueHigher(t *testing.T) {
	md := &Metadata{LoadAlignConstraint: 0x1000, LastVAddr: 0x500400}
	got := computeNewSegmentVAddr(0x3000, md)
	want := md.LastVAddr + ((0 + md.LoadAlignConstraint) - 0x400)
	if got != want {
		t.Fatalf("computeNewSegmentVAddr = 0x%x, want 0x%x", got, want)
	}
	if got%md.LoadAlignConstraint != 0x3000%md.LoadAlignConstraint {
		t.Fatalf("residues do not match: got %%=0x%x, want 0", got%md.LoadAlignConstraint)
	}
}
