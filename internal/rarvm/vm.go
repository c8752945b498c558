package rarvm

import "errors"

// ErrBudgetExceeded is returned when a program's instruction count exceeds
// the interpreter's runaway guard (§4.5, §9): 250,000,000 instructions.
var ErrBudgetExceeded = errors.New("rarvm: instruction budget exceeded")

// ErrProgramFault is returned when a jump (including a call or ret)
// targets an instruction index outside the program, mirroring the
// reference interpreter's decision to abort the whole run rather than
// clamp or wrap the program counter.
var ErrProgramFault = errors.New("rarvm: jump target outside program")

const (
	// MemSize is the VM's addressable memory window: 0x40000 bytes. New
	// allocates 4 bytes of slack beyond it so a dword read/write starting
	// at the last valid byte never runs off the end of the backing slice.
	MemSize = 0x40000
	memMask = MemSize - 1

	instructionBudget = 250_000_000
)

// Flags mirrors the VM's tiny status register: carry, zero and sign, the
// only three conditions the 8 conditional jumps and adc/sbb consult. The
// bit positions match the reference interpreter's flags word exactly
// (carry=bit0, zero=bit1, sign=bit31) since pushf/popf round-trip this
// word through VM memory where a program can inspect it directly.
type Flags struct {
	Carry bool
	Zero  bool
	Sign  bool
}

func (f Flags) toWord() uint32 {
	var w uint32
	if f.Carry {
		w |= 1
	}
	if f.Zero {
		w |= 2
	}
	if f.Sign {
		w |= 0x80000000
	}
	return w
}

func flagsFromWord(w uint32) Flags {
	return Flags{Carry: w&1 != 0, Zero: w&2 != 0, Sign: w&0x80000000 != 0}
}

func fullFlags(result uint32, carry bool) Flags {
	return Flags{Carry: carry, Zero: result == 0, Sign: result&0x80000000 != 0}
}

func byteFlags(result uint8, carry bool) Flags {
	return Flags{Carry: carry, Zero: result == 0, Sign: result&0x80 != 0}
}

// VM executes decoded Programs against a caller-owned register file and
// memory window. Registers and memory persist across Execute calls so a
// filter chain's VM instance (§4.6) can carry state between successive
// filter invocations within one entry.
type VM struct {
	Regs  [8]uint32
	Mem   []byte
	Flags Flags
}

// New allocates a VM with a zeroed MemSize+4 byte memory window.
func New() *VM {
	return &VM{Mem: make([]byte, MemSize+4)}
}

func (vm *VM) readMem32(addr uint32) uint32 {
	addr &= memMask
	return uint32(vm.Mem[addr]) | uint32(vm.Mem[addr+1])<<8 | uint32(vm.Mem[addr+2])<<16 | uint32(vm.Mem[addr+3])<<24
}

func (vm *VM) writeMem32(addr uint32, v uint32) {
	addr &= memMask
	vm.Mem[addr] = byte(v)
	vm.Mem[addr+1] = byte(v >> 8)
	vm.Mem[addr+2] = byte(v >> 16)
	vm.Mem[addr+3] = byte(v >> 24)
}

func (vm *VM) readMem8(addr uint32) uint8  { return vm.Mem[addr&memMask] }
func (vm *VM) writeMem8(addr uint32, v uint8) { vm.Mem[addr&memMask] = v }

// getOperand reads an operand's current value, matching _RARGetOperand:
// register reads mask to a byte when byteMode is set (a byte-mode
// register operand never sees its upper 24 bits); immediates are
// returned as-is regardless of byteMode, since decode.go already sized
// an immediate's encoding to fit the instruction's byte mode.
func (vm *VM) getOperand(op Operand, byteMode bool) uint32 {
	switch {
	case op.Mode >= AddrReg0 && op.Mode < AddrReg0+8:
		v := vm.Regs[op.Mode-AddrReg0]
		if byteMode {
			v &= 0xFF
		}
		return v
	case op.Mode >= AddrMemReg0 && op.Mode < AddrMemReg0+8:
		addr := vm.Regs[op.Mode-AddrMemReg0]
		if byteMode {
			return uint32(vm.readMem8(addr))
		}
		return vm.readMem32(addr)
	case op.Mode >= AddrMemRegImm0 && op.Mode < AddrMemRegImm0+8:
		addr := uint32(op.Imm) + vm.Regs[op.Mode-AddrMemRegImm0]
		if byteMode {
			return uint32(vm.readMem8(addr))
		}
		return vm.readMem32(addr)
	case op.Mode == AddrMemImm:
		addr := uint32(op.Imm)
		if byteMode {
			return uint32(vm.readMem8(addr))
		}
		return vm.readMem32(addr)
	default: // AddrImm
		return uint32(op.Imm)
	}
}

// setOperand writes a value to an operand's destination, matching
// _RARSetOperand: a byte-mode register write REPLACES the whole
// register with the masked byte (zeroing the upper 24 bits), it does
// not merge into the register's existing contents.
func (vm *VM) setOperand(op Operand, val uint32, byteMode bool) {
	if byteMode {
		val &= 0xFF
	}
	switch {
	case op.Mode >= AddrReg0 && op.Mode < AddrReg0+8:
		vm.Regs[op.Mode-AddrReg0] = val
	case op.Mode >= AddrMemReg0 && op.Mode < AddrMemReg0+8:
		addr := vm.Regs[op.Mode-AddrMemReg0]
		if byteMode {
			vm.writeMem8(addr, uint8(val))
		} else {
			vm.writeMem32(addr, val)
		}
	case op.Mode >= AddrMemRegImm0 && op.Mode < AddrMemRegImm0+8:
		addr := uint32(op.Imm) + vm.Regs[op.Mode-AddrMemRegImm0]
		if byteMode {
			vm.writeMem8(addr, uint8(val))
		} else {
			vm.writeMem32(addr, val)
		}
	case op.Mode == AddrMemImm:
		addr := uint32(op.Imm)
		if byteMode {
			vm.writeMem8(addr, uint8(val))
		} else {
			vm.writeMem32(addr, val)
		}
	default: // AddrImm: decode.go never lets a write target an immediate
	}
}

// push decrements the stack register (r7) by 4 and stores a dword — the
// convention call/ret/push/pop/pusha/popa all share (§4.5).
func (vm *VM) push(v uint32) {
	vm.Regs[7] -= 4
	vm.writeMem32(vm.Regs[7], v)
}

func (vm *VM) pop() uint32 {
	v := vm.readMem32(vm.Regs[7])
	vm.Regs[7] += 4
	return v
}

func shiftCount(v uint32) uint32 { return v & 31 }

// Execute runs a decoded Program to completion: either a ret pops an
// empty logical call stack (r7 has climbed to or past the end of the
// memory window, the reference interpreter's signal for "no caller
// left"), or execution runs past the last instruction (both return nil),
// or the instruction budget is exhausted (ErrBudgetExceeded), or a jump
// targets an out-of-range instruction index (ErrProgramFault).
func (vm *VM) Execute(p *Program) error {
	pc := 0
	n := len(p.Instructions)
	count := 0

	jump := func(target int32) (int, error) {
		if target < 0 || int(target) >= n {
			return 0, ErrProgramFault
		}
		return int(target), nil
	}

	for pc >= 0 && pc < n {
		if count >= instructionBudget {
			return ErrBudgetExceeded
		}
		count++
		inst := p.Instructions[pc]
		bm := inst.ByteMode
		nextPC := pc + 1

		switch inst.Op {
		case OpMov:
			vm.setOperand(inst.Operands[0], vm.getOperand(inst.Operands[1], bm), bm)

		case OpCmp:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			diff := a - b
			vm.Flags = fullFlags(diff, b > a)

		case OpAdd:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			if bm {
				r := uint8(a + b)
				vm.Flags = byteFlags(r, uint32(r) < a)
				vm.setOperand(inst.Operands[0], uint32(r), true)
			} else {
				full := a + b
				vm.Flags = fullFlags(full, full < a)
				vm.setOperand(inst.Operands[0], full, false)
			}

		case OpSub:
			// Quirk (§9): sub always computes flags on the full 32-bit
			// result, even in byte mode — the reference interpreter's
			// byte-mode branch for this instruction is dead code.
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			diff := a - b
			vm.Flags = fullFlags(diff, b > a)
			vm.setOperand(inst.Operands[0], diff, bm)

		case OpJz:
			if vm.Flags.Zero {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJnz:
			if !vm.Flags.Zero {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJs:
			if vm.Flags.Sign {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJns:
			if !vm.Flags.Sign {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJb:
			if vm.Flags.Carry {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJae:
			if !vm.Flags.Carry {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJbe:
			if vm.Flags.Carry || vm.Flags.Zero {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJa:
			if !vm.Flags.Carry && !vm.Flags.Zero {
				t, err := jump(inst.Operands[0].Imm)
				if err != nil {
					return err
				}
				nextPC = t
			}
		case OpJmp:
			t, err := jump(inst.Operands[0].Imm)
			if err != nil {
				return err
			}
			nextPC = t

		case OpInc:
			v := vm.getOperand(inst.Operands[0], bm)
			res := v + 1
			if bm {
				res &= 0xFF
			}
			// Quirk: Inc/Dec reuse the full-width flags macro on an
			// already byte-masked value, so carry is always clear and,
			// in byte mode, sign never sets (the masked value can't
			// reach bit 31).
			vm.Flags = fullFlags(res, false)
			vm.setOperand(inst.Operands[0], res, bm)
		case OpDec:
			v := vm.getOperand(inst.Operands[0], bm)
			res := v - 1
			if bm {
				res &= 0xFF
			}
			vm.Flags = fullFlags(res, false)
			vm.setOperand(inst.Operands[0], res, bm)

		case OpXor:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			res := a ^ b
			vm.Flags = fullFlags(res, false)
			vm.setOperand(inst.Operands[0], res, bm)
		case OpAnd:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			res := a & b
			vm.Flags = fullFlags(res, false)
			vm.setOperand(inst.Operands[0], res, bm)
		case OpOr:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			res := a | b
			vm.Flags = fullFlags(res, false)
			vm.setOperand(inst.Operands[0], res, bm)
		case OpTest:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			vm.Flags = fullFlags(a&b, false)

		case OpPush:
			vm.push(vm.getOperand(inst.Operands[0], false))
		case OpPop:
			vm.setOperand(inst.Operands[0], vm.pop(), false)

		case OpCall:
			t, err := jump(inst.Operands[0].Imm)
			if err != nil {
				return err
			}
			vm.push(uint32(pc + 1))
			nextPC = t
		case OpRet:
			if vm.Regs[7] >= MemSize {
				return nil
			}
			t, err := jump(int32(vm.pop()))
			if err != nil {
				return err
			}
			nextPC = t

		case OpNot:
			v := vm.getOperand(inst.Operands[0], bm)
			vm.setOperand(inst.Operands[0], ^v, bm)

		case OpShl:
			a := vm.getOperand(inst.Operands[0], bm)
			b := shiftCount(vm.getOperand(inst.Operands[1], bm))
			full := a << b
			var carry bool
			if b > 0 {
				carry = (a<<(b-1))&0x80000000 != 0
			}
			vm.Flags = fullFlags(full, carry)
			vm.setOperand(inst.Operands[0], full, bm)
		case OpShr:
			a := vm.getOperand(inst.Operands[0], bm)
			b := shiftCount(vm.getOperand(inst.Operands[1], bm))
			res := a >> b
			var carry bool
			if b > 0 {
				carry = (a>>(b-1))&1 != 0
			}
			vm.Flags = fullFlags(res, carry)
			vm.setOperand(inst.Operands[0], res, bm)
		case OpSar:
			a := vm.getOperand(inst.Operands[0], bm)
			b := shiftCount(vm.getOperand(inst.Operands[1], bm))
			res := uint32(int32(a) >> b)
			var carry bool
			if b > 0 {
				carry = (a>>(b-1))&1 != 0
			}
			vm.Flags = fullFlags(res, carry)
			vm.setOperand(inst.Operands[0], res, bm)

		case OpNeg:
			v := vm.getOperand(inst.Operands[0], bm)
			res := uint32(-int32(v))
			vm.Flags = fullFlags(res, res != 0)
			vm.setOperand(inst.Operands[0], res, bm)

		case OpPusha:
			saved := vm.Regs
			vm.Regs[7] -= 32
			for i := 0; i < 8; i++ {
				vm.writeMem32(vm.Regs[7]+uint32(7-i)*4, saved[i])
			}
		case OpPopa:
			base := vm.Regs[7]
			var restored [8]uint32
			for i := 0; i < 8; i++ {
				restored[i] = vm.readMem32(base + uint32(7-i)*4)
			}
			restored[7] = base + 32
			vm.Regs = restored

		case OpPushf:
			vm.push(vm.Flags.toWord())
		case OpPopf:
			vm.Flags = flagsFromWord(vm.pop())

		case OpMovzx:
			src := vm.getOperand(inst.Operands[1], true)
			vm.setOperand(inst.Operands[0], src, false)
		case OpMovsx:
			src := vm.getOperand(inst.Operands[1], true)
			v := uint32(int32(int8(src)))
			vm.setOperand(inst.Operands[0], v, false)

		case OpXchg:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			vm.setOperand(inst.Operands[0], b, bm)
			vm.setOperand(inst.Operands[1], a, bm)

		case OpMul:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			vm.setOperand(inst.Operands[0], a*b, bm)
		case OpDiv:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			if b != 0 {
				vm.setOperand(inst.Operands[0], a/b, bm)
			}

		case OpAdc:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			carryIn := vm.Flags.Carry
			var carryInBit uint32
			if carryIn {
				carryInBit = 1
			}
			if bm {
				r := uint8(a + b + carryInBit)
				carry := uint32(r) < a || (uint32(r) == a && carryIn)
				vm.Flags = byteFlags(r, carry)
				vm.setOperand(inst.Operands[0], uint32(r), true)
			} else {
				full := a + b + carryInBit
				carry := full < a || (full == a && carryIn)
				vm.Flags = fullFlags(full, carry)
				vm.setOperand(inst.Operands[0], full, false)
			}
		case OpSbb:
			a := vm.getOperand(inst.Operands[0], bm)
			b := vm.getOperand(inst.Operands[1], bm)
			carryIn := vm.Flags.Carry
			var borrowIn uint32
			if carryIn {
				borrowIn = 1
			}
			if bm {
				r := uint8(a - b - borrowIn)
				carry := uint32(r) > a || (uint32(r) == a && carryIn)
				vm.Flags = byteFlags(r, carry)
				vm.setOperand(inst.Operands[0], uint32(r), true)
			} else {
				full := a - b - borrowIn
				carry := full > a || (full == a && carryIn)
				vm.Flags = fullFlags(full, carry)
				vm.setOperand(inst.Operands[0], full, false)
			}

		case OpPrint:
			// Debug-only instruction; no interpreter side effect.

		default:
			return ErrProgramFault // unreachable: decode.go rejects unknown opcodes
		}

		pc = nextPC
	}
	return nil
}
