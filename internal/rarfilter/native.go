package rarfilter

import (
	"fmt"

	"github.com/javi11/unarr/internal/rarvm"
)

// Run executes one filter against block, the already-decompressed bytes
// spanning [f.BlockStartPos, f.BlockStartPos+f.BlockLength) read out of
// the LZSS window. It returns the filtered replacement bytes that must be
// substituted back into the output stream at the same range.
//
// Four well-known fingerprints (§4.5) short-circuit to a native
// implementation of the same algorithm; anything else runs through the
// general VM interpreter.
func Run(arena *Arena, f *Filter, block []byte) ([]byte, error) {
	p := arena.Program(f.ProgramIndex)

	switch p.Fingerprint {
	case rarvm.FingerprintDelta:
		return runDelta(f, block), nil
	case rarvm.FingerprintE8:
		return runE8(block, false, f.BlockStartPos), nil
	case rarvm.FingerprintE8E9:
		return runE8(block, true, f.BlockStartPos), nil
	case rarvm.FingerprintRGBDelta:
		return runRGBDelta(f, block), nil
	case rarvm.FingerprintAudio:
		return runAudio(f, block), nil
	}

	return runGeneric(p, f, block)
}

// Layout of the VM's reserved system-global area (§4.5, §9): a 0x40-byte
// window at the top of the program's working memory that the filter
// compiler populates with block geometry before every run, and the
// program writes its output descriptor into before returning.
const (
	vmGlobalAddr    = 0x3C000
	vmGlobalMaxSize = 0x40
	vmStaticAddr    = 0x3E000

	vmGlobalOutLengthOff = 0x1C
	vmGlobalOutAddrOff   = 0x20
	vmGlobalPosOff       = 0x24
)

// runGeneric interprets an unrecognized program via the VM. The caller's
// globaldata blob (capped at 0x40 bytes) is copied to the start of the
// reserved system-global area, the compiled program's static data blob
// to 0x3E000, and the entry's current absolute stream position is
// stashed at the globaldata's 0x24/0x28 offsets (low/high dword of a
// 64-bit value) so a filter program that needs its position in the
// output stream — the same information the x86 fast paths consult — can
// read it even when it isn't one of the recognized fingerprints. After
// execution, the output block's address and length are read back from
// 0x20 and 0x1C of the same area, both masked into the VM's memory
// window.
func runGeneric(p *rarvm.Program, f *Filter, block []byte) ([]byte, error) {
	vm := rarvm.New()
	vm.Regs = f.InitialRegs
	vm.Regs[3] = uint32(len(block))
	copy(vm.Mem, block)

	global := f.GlobalData
	if len(global) > vmGlobalMaxSize {
		global = global[:vmGlobalMaxSize]
	}
	copy(vm.Mem[vmGlobalAddr:], global)

	pos := uint64(f.BlockStartPos)
	putLE32(vm.Mem, vmGlobalAddr+vmGlobalPosOff, uint32(pos))
	putLE32(vm.Mem, vmGlobalAddr+vmGlobalPosOff+4, uint32(pos>>32))

	if len(p.StaticData) > 0 {
		copy(vm.Mem[vmStaticAddr:], p.StaticData)
	}

	if err := vm.Execute(p); err != nil {
		return nil, fmt.Errorf("rarfilter: %w", err)
	}

	addr := getLE32(vm.Mem, vmGlobalAddr+vmGlobalOutAddrOff) & (rarvm.MemSize - 1)
	length := getLE32(vm.Mem, vmGlobalAddr+vmGlobalOutLengthOff) & (rarvm.MemSize - 1)
	if length == 0 || int(length) > len(vm.Mem) || int(addr)+int(length) > len(vm.Mem) {
		return nil, fmt.Errorf("rarfilter: implausible output region addr=%#x len=%d", addr, length)
	}
	out := make([]byte, length)
	copy(out, vm.Mem[addr:int(addr)+int(length)])
	f.FilteredBlockAddr = addr
	f.FilteredBlockLength = length
	return out, nil
}

func putLE32(mem []byte, addr uint32, v uint32) {
	mem[addr] = byte(v)
	mem[addr+1] = byte(v >> 8)
	mem[addr+2] = byte(v >> 16)
	mem[addr+3] = byte(v >> 24)
}

func getLE32(mem []byte, addr uint32) uint32 {
	return uint32(mem[addr]) | uint32(mem[addr+1])<<8 | uint32(mem[addr+2])<<16 | uint32(mem[addr+3])<<24
}
