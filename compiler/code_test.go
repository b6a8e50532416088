package compiler

import "testing"

func TestAssembleInstruction(t *testing.T) {
	tests := []struct {
		op       Opcode
		operands []int
		expected []byte
	}{
		{PushI, []int{65000}, []byte{byte(PushI), 232, 253}},
		{Exit, []int{}, []byte{byte(Exit)}},
		{Call, []int{3}, []byte{byte(Call), 3}},
		{Load, []int{1, 2}, []byte{byte(Load), 1, 0, 2, 0}},
		{Load0Fast, []int{7}, []byte{byte(Load0Fast), 7}},
		{PushDocumentedLambda, []int{2, 300}, []byte{byte(PushDocumentedLambda), 2, 44, 1}},
	}

	for _, tt := range tests {
		instruction, err := AssembleInstruction(tt.op, tt.operands...)
		if err != nil {
			t.Fatalf("unexpected error assembling %v: %v", tt.op, err)
		}
		if len(instruction) != len(tt.expected) {
			t.Fatalf("wrong length for %v - got: %d, want: %d", tt.op, len(instruction), len(tt.expected))
		}
		for i, b := range tt.expected {
			if instruction[i] != b {
				t.Errorf("%v byte %d - got: %d, want: %d", tt.op, i, instruction[i], b)
			}
		}
	}
}

func TestAssembleInstructionWrongOperandCount(t *testing.T) {
	if _, err := AssembleInstruction(Call); err == nil {
		t.Fatal("expected an error for a missing operand")
	}
}

func TestDisassembleInstruction(t *testing.T) {
	instr, err := AssembleInstruction(Load0Fast, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := DisassembleInstruction(instr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Load0Fast 3" {
		t.Fatalf("unexpected disassembly: %q", out)
	}
}

func TestPopIsDiscard(t *testing.T) {
	if Pop != Discard {
		t.Fatal("Pop and Discard must be the same opcode")
	}
}
