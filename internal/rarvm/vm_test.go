package rarvm

import "testing"

func prog(instrs ...Instruction) *Program {
	return &Program{Instructions: instrs}
}

func regOp(r int) Operand { return Operand{Mode: AddrReg0 + r} }
func immOp(v int32) Operand { return Operand{Mode: AddrImm, Imm: v} }

func TestPushPopRoundTripsStackPointer(t *testing.T) {
	vm := New()
	vm.Regs[7] = 4 // stack pointer starts just above address 0
	p := prog(
		Instruction{Op: OpPush, Operands: [2]Operand{immOp(0x1234)}},
		Instruction{Op: OpPop, Operands: [2]Operand{regOp(0)}},
	)
	if err := vm.Execute(p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if vm.Regs[0] != 0x1234 {
		t.Fatalf("r0 = %#x, want 0x1234", vm.Regs[0])
	}
	if vm.Regs[7] != 4 {
		t.Fatalf("r7 = %d, want 4 (push/pop must round-trip the stack pointer)", vm.Regs[7])
	}
}

func TestMovAndArithmetic(t *testing.T) {
	vm := New()
	p := prog(
		Instruction{Op: OpMov, Operands: [2]Operand{regOp(0), immOp(10)}},
		Instruction{Op: OpAdd, Operands: [2]Operand{regOp(0), immOp(5)}},
	)
	if err := vm.Execute(p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if vm.Regs[0] != 15 {
		t.Fatalf("r0 = %d, want 15", vm.Regs[0])
	}
}

func TestSubByteModeFlagsUseFullWidthResult(t *testing.T) {
	// §9: sub's flags must reflect the full 32-bit result even when
	// ByteMode truncates the stored value, unlike every other arithmetic
	// op. r0 = 0x100 (256); sub byte-mode 1 from it: stored result is
	// truncated to 0xFF, but the full-width subtraction (0x100-1=0xFF) is
	// not actually negative, so carry must be false even though the
	// byte-truncated low byte looks like it could borrow.
	vm := New()
	vm.Regs[0] = 0x100
	p := prog(
		Instruction{Op: OpSub, ByteMode: true, Operands: [2]Operand{regOp(0), immOp(1)}},
	)
	if err := vm.Execute(p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if vm.Flags.Carry {
		t.Fatalf("carry flag set, want clear: full-width 0x100-1 does not borrow")
	}
}

func TestConditionalJumpTaken(t *testing.T) {
	vm := New()
	// r0 = 0; cmp r0,0 sets zero; jz skips the poison mov.
	p := prog(
		Instruction{Op: OpCmp, Operands: [2]Operand{regOp(0), immOp(0)}},
		Instruction{Op: OpJz, Operands: [2]Operand{immOp(3)}},
		Instruction{Op: OpMov, Operands: [2]Operand{regOp(1), immOp(0xDEAD)}},
		Instruction{Op: OpMov, Operands: [2]Operand{regOp(1), immOp(0xBEEF)}},
	)
	if err := vm.Execute(p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if vm.Regs[1] != 0xBEEF {
		t.Fatalf("r1 = %#x, want 0xBEEF (jz should have skipped the poison mov)", vm.Regs[1])
	}
}

func TestCallRetRoundTrip(t *testing.T) {
	// The reference interpreter treats a ret as the program's final stop
	// only once r7 has climbed back to (or past) the top of the memory
	// window; starting r7 there means a fully-unwound call stack at the
	// top-level ret signals success rather than "pop garbage and keep
	// going" (§9).
	vm := New()
	vm.Regs[7] = MemSize
	p := prog(
		Instruction{Op: OpCall, Operands: [2]Operand{immOp(3)}},          // 0: call 3
		Instruction{Op: OpMov, Operands: [2]Operand{regOp(0), immOp(2)}}, // 1: resumed here after the callee's ret
		Instruction{Op: OpRet},                                          // 2: top-level ret, stack fully unwound
		Instruction{Op: OpMov, Operands: [2]Operand{regOp(1), immOp(99)}}, // 3: callee body
		Instruction{Op: OpRet},                                            // 4: returns to pc 1
	)
	if err := vm.Execute(p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if vm.Regs[1] != 99 {
		t.Fatalf("r1 = %d, want 99 (callee body must run)", vm.Regs[1])
	}
	if vm.Regs[0] != 2 {
		t.Fatalf("r0 = %d, want 2 (caller must resume after the call)", vm.Regs[0])
	}
}

func TestInstructionBudgetExceeded(t *testing.T) {
	vm := New()
	// An infinite loop: jmp 0.
	p := prog(Instruction{Op: OpJmp, Operands: [2]Operand{immOp(0)}})
	err := vm.Execute(p)
	if err != ErrBudgetExceeded {
		t.Fatalf("Execute error = %v, want ErrBudgetExceeded", err)
	}
}
