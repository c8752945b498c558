package rarvm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/javi11/unarr/internal/bitreader"
)

// ErrBadProgram covers every form of malformed bytecode: the XOR checksum
// prefix mismatch, an unrecognized opcode, or a truncated operand stream.
var ErrBadProgram = errors.New("rarvm: invalid program bytecode")

// Operand is one decoded instruction operand: a register, a memory
// address (possibly register-indexed), or an immediate.
type Operand struct {
	Mode int // one of the Addr* constants
	Reg  int
	Imm  int32
}

// Instruction is one decoded VM instruction.
type Instruction struct {
	Op       Opcode
	ByteMode bool
	Operands [2]Operand
}

// Program is an immutable, compiled RAR-VM bytecode program: its
// instruction stream, optional static data blob, and fingerprint. Per §9's
// design note, programs are arena-owned with stable indices; a Filter
// holds an index into the owning arena rather than a direct pointer, so
// there is no parent<->child ownership cycle.
type Program struct {
	Instructions []Instruction
	StaticData   []byte
	Fingerprint  uint64
	UsageCount   int
}

// Decode parses raw RAR-VM bytecode (the filter descriptor's program
// blob) into a Program. The first byte is the XOR of every following
// byte; a mismatch rejects the program outright per §4.5.
func Decode(code []byte) (*Program, error) {
	if len(code) < 1 {
		return nil, ErrBadProgram
	}
	var xor byte
	for _, b := range code[1:] {
		xor ^= b
	}
	if xor != code[0] {
		return nil, fmt.Errorf("%w: xor checksum mismatch", ErrBadProgram)
	}
	br := bitreader.New(bytes.NewReader(code[1:]))

	var staticData []byte
	if br.Ensure(1) && br.Bits(1) == 1 {
		if !br.Ensure(16) {
			return nil, ErrBadProgram
		}
		n, ok := readRarNumber(br)
		if !ok {
			return nil, ErrBadProgram
		}
		if n < 0 || n > 1<<20 {
			return nil, fmt.Errorf("%w: implausible static data size", ErrBadProgram)
		}
		staticData = make([]byte, n)
		for i := range staticData {
			if !br.Ensure(8) {
				return nil, ErrBadProgram
			}
			staticData[i] = byte(br.Bits(8))
		}
	}

	var instrs []Instruction
	for {
		if !br.Ensure(4) {
			break
		}
		nibble := br.Bits(4)
		var raw uint32
		if nibble < 8 {
			raw = nibble
		} else {
			if !br.Ensure(2) {
				return nil, ErrBadProgram
			}
			extra := br.Bits(2)
			raw = uint32(int32(nibble<<2|extra) - 24)
		}
		if raw >= uint32(numOpcodes) {
			return nil, fmt.Errorf("%w: unknown opcode %d", ErrBadProgram, raw)
		}
		op := Opcode(raw)
		info := opTable[op]

		var byteMode bool
		if info.hasByteMode {
			if !br.Ensure(1) {
				return nil, ErrBadProgram
			}
			byteMode = br.Bits(1) == 1
		}

		inst := Instruction{Op: op, ByteMode: byteMode}
		for i := 0; i < info.operandCount; i++ {
			operand, ok := decodeOperand(br, byteMode)
			if !ok {
				return nil, ErrBadProgram
			}
			inst.Operands[i] = operand
		}
		instrs = append(instrs, inst)
		if len(instrs) > 1<<20 {
			return nil, fmt.Errorf("%w: program implausibly long", ErrBadProgram)
		}
	}

	rebaseJumpTargets(instrs)

	// A program must end in an unconditional jump (ret) for the
	// interpreter's termination check to accept it; the reference
	// compiler appends one automatically rather than rejecting the
	// program outright.
	if len(instrs) == 0 || instrs[len(instrs)-1].Op != OpRet {
		instrs = append(instrs, Instruction{Op: OpRet})
	}

	p := &Program{Instructions: instrs, StaticData: staticData}
	p.Fingerprint = Fingerprint(code)
	return p, nil
}

func decodeOperand(br *bitreader.Reader, byteMode bool) (Operand, bool) {
	if !br.Ensure(1) {
		return Operand{}, false
	}
	if br.Bits(1) == 1 { // register operand
		if !br.Ensure(3) {
			return Operand{}, false
		}
		return Operand{Mode: AddrReg0 + int(br.Bits(3))}, true
	}
	if !br.Ensure(1) {
		return Operand{}, false
	}
	if br.Bits(1) == 1 { // memory operand
		if !br.Ensure(1) {
			return Operand{}, false
		}
		if br.Bits(1) == 1 { // indexed: [Reg+imm]
			if !br.Ensure(3) {
				return Operand{}, false
			}
			reg := int(br.Bits(3))
			n, ok := readRarNumber(br)
			if !ok {
				return Operand{}, false
			}
			mode := AddrMemRegImm0 + reg
			if n == 0 {
				mode = AddrMemReg0 + reg
			}
			return Operand{Mode: mode, Reg: reg, Imm: n}, true
		}
		// [imm]
		n, ok := readRarNumber(br)
		if !ok {
			return Operand{}, false
		}
		return Operand{Mode: AddrMemImm, Imm: n}, true
	}
	// immediate
	if byteMode {
		if !br.Ensure(8) {
			return Operand{}, false
		}
		return Operand{Mode: AddrImm, Imm: int32(br.Bits(8))}, true
	}
	n, ok := readRarNumber(br)
	if !ok {
		return Operand{}, false
	}
	return Operand{Mode: AddrImm, Imm: n}, true
}

func readRarNumber(br *bitreader.Reader) (int32, bool) {
	v, ok := br.ReadVMNumber()
	return int32(v), ok
}

// rebaseJumpTargets translates each relative-jump instruction's raw
// immediate operand into an absolute instruction index the interpreter
// can use directly as a program counter (§4.5). The reference decoder
// treats an operand >=256 as an already-absolute index (value-256);
// smaller values are biased by a small table before being added to the
// instruction's own index, a leftover of how the original x86 JIT
// encoded short/near/far jump displacements:
//
//	value >= 136            -> value -= 264
//	value >= 16 (else)       -> value -= 8
//	value >= 8  (else)       -> value -= 16
//	value += instrcount (the jump's own index in the program so far)
func rebaseJumpTargets(instrs []Instruction) {
	for i := range instrs {
		info := opTable[instrs[i].Op]
		if !info.isRelativeJump {
			continue
		}
		op := instrs[i].Operands[0]
		if op.Mode != AddrImm {
			continue
		}
		instrs[i].Operands[0].Imm = rebaseTarget(op.Imm, int32(i))
	}
}

func rebaseTarget(raw, instrcount int32) int32 {
	v := raw
	if v >= 256 {
		return v - 256
	}
	switch {
	case v >= 136:
		v -= 264
	case v >= 16:
		v -= 8
	case v >= 8:
		v -= 16
	}
	return v + instrcount
}
