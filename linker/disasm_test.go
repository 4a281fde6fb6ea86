package linker

import "testing"

func TestClassifyInstructionCallRel32(t *testing.T) {
	code := []byte{0xE8, 0x10, 0x00, 0x00, 0x00, 0x90}
	got := classifyInstruction(code)
	if got.kind != branchNear32 || got.instLen != 5 || got.opSize != 4 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.relValue != 0x10 {
		t.Fatalf("relValue = %d, want 16", got.relValue)
	}
}

func TestClassifyInstructionJmpRel32(t *testing.T) {
	code := []byte{0xE9, 0xFF, 0xFF, 0xFF, 0xFF}
	got := classifyInstruction(code)
	if got.kind != branchNear32 || got.instLen != 5 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.relValue != -1 {
		t.Fatalf("relValue = %d, want -1", got.relValue)
	}
}

func TestClassifyInstructionJmpRel8(t *testing.T) {
	code := []byte{0xEB, 0xFE}
	got := classifyInstruction(code)
	if got.kind != branchNear8 || got.instLen != 2 || got.opSize != 1 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.relValue != -2 {
		t.Fatalf("relValue = %d, want -2", got.relValue)
	}
}

func TestClassifyInstructionJccRel8(t *testing.T) {
	code := []byte{0x74, 0x05} // JE rel8
	got := classifyInstruction(code)
	if got.kind != branchNear8 || got.instLen != 2 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.relValue != 5 {
		t.Fatalf("relValue = %d, want 5", got.relValue)
	}
}

func TestClassifyInstructionJccRel32(t *testing.T) {
	code := []byte{0x0F, 0x84, 0x20, 0x00, 0x00, 0x00} // JE rel32
	got := classifyInstruction(code)
	if got.kind != branchNear32 || got.instLen != 6 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.relValue != 0x20 {
		t.Fatalf("relValue = %d, want 32", got.relValue)
	}
}

func TestClassifyInstructionIndirectCall(t *testing.T) {
	code := []byte{0xFF, 0xD0} // CALL rax
	got := classifyInstruction(code)
	if !got.indirect || got.kind != branchNone {
		t.Fatalf("expected indirect call, got %+v", got)
	}
}

func TestClassifyInstructionIndirectJump(t *testing.T) {
	code := []byte{0xFF, 0xE0} // JMP rax
	got := classifyInstruction(code)
	if !got.indirect || got.kind != branchNone {
		t.Fatalf("expected indirect jump, got %+v", got)
	}
}

func TestClassifyInstructionNonBranchFFNotIndirect(t *testing.T) {
	code := []byte{0xFF, 0xC0} // INC eax: reg field 0, not a call/jmp encoding
	got := classifyInstruction(code)
	if got.indirect {
		t.Fatalf("INC eax misclassified as indirect branch: %+v", got)
	}
}

func TestClassifyInstructionFarBranchPrefix(t *testing.T) {
	code := []byte{0x66, 0xE9, 0x00, 0x00}
	got := classifyInstruction(code)
	if got.kind != branchFar {
		t.Fatalf("expected branchFar for 0x66 prefix, got %+v", got)
	}
}

func TestClassifyInstructionPlainOpcode(t *testing.T) {
	code := []byte{0x90} // NOP
	got := classifyInstruction(code)
	if got.kind != branchNone || got.indirect {
		t.Fatalf("NOP misclassified: %+v", got)
	}
	if got.instLen != 1 {
		t.Fatalf("instLen = %d, want 1", got.instLen)
	}
}

func TestIsIndirectCallOrJump(t *testing.T) {
	cases := []struct {
		modrm byte
		want  bool
	}{
		{0xD0, true},  // reg=2 (call r/m)
		{0xD8, true},  // reg=3 (call m16:m32/far)
		{0xE0, true},  // reg=4 (jmp r/m)
		{0xE8, true},  // reg=5 (jmp m16:m32/far)
		{0xC0, false}, // reg=0 (inc)
		{0xC8, false}, // reg=1 (dec)
		{0xF0, false}, // reg=6 (push)
	}
	for _, c := range cases {
		if got := isIndirectCallOrJump(c.modrm); got != c.want {
			t.Fatalf("isIndirectCallOrJump(0x%x) = %v, want %v", c.modrm, got, c.want)
		}
	}
}
