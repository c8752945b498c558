package raruncompress

import (
	"bytes"
	"fmt"

	"github.com/javi11/unarr/internal/bitreader"
	"github.com/javi11/unarr/internal/huffman"
	"github.com/javi11/unarr/internal/rarfilter"
	"github.com/javi11/unarr/internal/rarvm"
)

// rarProgramSystemGlobalAddress is the fixed VM address rarfilter.Run's
// runGeneric copies a filter's GlobalData blob to; it must match
// rarfilter's own unexported vmGlobalAddr constant, since this package
// builds the register/global-data values the VM program expects to find
// there (rar_parse_filter, §4.5).
const rarProgramSystemGlobalAddress = 0x3C000

// filterState is the per-entry VM-filter queue (ar_archive_rar_filters,
// §4.6): compiled programs are interned in arena by fingerprint rather
// than walked by an explicit linked ordinal chain the way rar_parse_filter
// does, so an explicit program-number reference (flags&0x80) resolves by
// treating the ordinal as an arena index directly — correct whenever the
// encoder numbers programs sequentially as it compiles them.
type filterState struct {
	arena           *rarfilter.Arena
	queue           rarfilter.Queue
	oldFilterLength []int64
	lastFilterNum   int // 0-based index of the last-referenced program, -1 if none

	filterStart int64 // lowest BlockStartPos among queued filters, -1 if none queued
	lastEnd     int64 // window position the most recent expand/filter run reached
	readyBytes  []byte
}

func (fs *filterState) init() {
	fs.arena = rarfilter.NewArena()
	fs.queue = rarfilter.Queue{}
	fs.oldFilterLength = nil
	fs.lastFilterNum = -1
	fs.filterStart = -1
	fs.lastEnd = 0
	fs.readyBytes = nil
}

func (fs *filterState) resetPrograms() {
	fs.arena = rarfilter.NewArena()
	fs.oldFilterLength = nil
}

// v3State holds the RAR v3 (UnpVer 29/36) engine's tables, recent-offset
// MRU and filter queue (ar_archive_rar_uncomp_v3, §4.6).
type v3State struct {
	mainCode      *huffman.Code
	offsetCode    *huffman.Code
	lowOffsetCode *huffman.Code
	lengthCode    *huffman.Code

	lengthTable [huffmanTableSize]byte

	lastOffset int
	lastLength int
	oldOffset  [4]int

	lastLowOffset       int
	numLowOffsetRepeats int

	filters filterState
}

// parseCodesV3 is rar_parse_codes' v3 branch (§4.6): a leading bit
// selects a PPMd-compressed block, rejected with ErrUnsupported since no
// PPMd7 model exists in this port (see internal/ppmd); otherwise a
// 20-symbol bitlength pre-code (0x0F-prefixed zero-run escape, distinct
// from v2's plain 4-bit RLE scheme) rebuilds the four v3 code tables.
func (d *Decoder) parseCodesV3() error {
	v3 := &d.v3
	br := d.br

	br.AlignToByte()

	if !br.Ensure(1) {
		return errBadBitstream
	}
	if br.Bits(1) != 0 {
		return ErrUnsupported
	}

	if !br.Ensure(1) {
		return errBadBitstream
	}
	if br.Bits(1) == 0 {
		v3.lengthTable = [huffmanTableSize]byte{}
	}

	var bitlengths [20]byte
	for i := 0; i < len(bitlengths); i++ {
		if !br.Ensure(4) {
			return errBadBitstream
		}
		bitlengths[i] = byte(br.Bits(4))
		if bitlengths[i] == 0x0F {
			if !br.Ensure(4) {
				return errBadBitstream
			}
			zeroCount := int(br.Bits(4))
			if zeroCount > 0 {
				for j := 0; j < zeroCount+2 && i < len(bitlengths); j++ {
					bitlengths[i] = 0
					i++
				}
				i--
			}
		}
	}

	precode, err := buildCode(bitlengths[:])
	if err != nil {
		return err
	}

	for i := 0; i < huffmanTableSize; {
		val, err := readSymbol(br, precode)
		if err != nil {
			return err
		}
		switch {
		case val < 16:
			v3.lengthTable[i] = (v3.lengthTable[i] + byte(val)) & 0x0F
			i++
		case val < 18:
			if i == 0 {
				return errBadBitstream
			}
			var n int
			if val == 16 {
				if !br.Ensure(3) {
					return errBadBitstream
				}
				n = int(br.Bits(3)) + 3
			} else {
				if !br.Ensure(7) {
					return errBadBitstream
				}
				n = int(br.Bits(7)) + 11
			}
			for j := 0; j < n && i < huffmanTableSize; i, j = i+1, j+1 {
				v3.lengthTable[i] = v3.lengthTable[i-1]
			}
		default:
			var n int
			if val == 18 {
				if !br.Ensure(3) {
					return errBadBitstream
				}
				n = int(br.Bits(3)) + 3
			} else {
				if !br.Ensure(7) {
					return errBadBitstream
				}
				n = int(br.Bits(7)) + 11
			}
			for j := 0; j < n && i < huffmanTableSize; i, j = i+1, j+1 {
				v3.lengthTable[i] = 0
			}
		}
	}

	mc, err := buildCode(v3.lengthTable[:mainCodeSize])
	if err != nil {
		return err
	}
	oc, err := buildCode(v3.lengthTable[mainCodeSize : mainCodeSize+offsetCodeSize])
	if err != nil {
		return err
	}
	loc, err := buildCode(v3.lengthTable[mainCodeSize+offsetCodeSize : mainCodeSize+offsetCodeSize+lowOffsetCodeSize])
	if err != nil {
		return err
	}
	lc, err := buildCode(v3.lengthTable[mainCodeSize+offsetCodeSize+lowOffsetCodeSize : huffmanTableSize])
	if err != nil {
		return err
	}
	v3.mainCode, v3.offsetCode, v3.lowOffsetCode, v3.lengthCode = mc, oc, loc, lc

	d.startNewTable = false
	return nil
}

func (d *Decoder) decodeByte() (byte, error) {
	if !d.br.Ensure(8) {
		return 0, errBadBitstream
	}
	return byte(d.br.Bits(8)), nil
}

// readFilter is rar_read_filter (§4.5): decode the filter descriptor's
// variable-length size prefix, read that many raw bytes, hand them to
// parseFilter, then clamp end to the newly queued filter's start so the
// caller's expand loop stops there.
func (d *Decoder) readFilter(end int64) (int64, error) {
	flags, err := d.decodeByte()
	if err != nil {
		return 0, err
	}
	length := int(flags&0x07) + 1
	switch length {
	case 7:
		v, err := d.decodeByte()
		if err != nil {
			return 0, err
		}
		length = int(v) + 7
	case 8:
		hi, err := d.decodeByte()
		if err != nil {
			return 0, err
		}
		lo, err := d.decodeByte()
		if err != nil {
			return 0, err
		}
		length = int(hi)<<8 | int(lo)
	}

	code := make([]byte, length)
	for i := range code {
		b, err := d.decodeByte()
		if err != nil {
			return 0, err
		}
		code[i] = b
	}

	if err := d.parseFilter(code, flags); err != nil {
		return 0, err
	}

	if fs := d.v3.filters.filterStart; fs >= 0 && fs < end {
		end = fs
	}
	return end, nil
}

// parseFilter is rar_parse_filter (§4.5): decode a filter descriptor's
// flags byte (explicit program-number selector, block-start/length
// overrides, an initial-register mask, optional custom global data) and
// queue a rarfilter.Filter referencing either a reused or freshly
// compiled rarvm.Program.
func (d *Decoder) parseFilter(code []byte, flags byte) error {
	fs := &d.v3.filters
	br := bitreader.New(bytes.NewReader(code))

	if flags&0x80 != 0 {
		num, ok := br.ReadVMNumber()
		if !ok {
			return errBadBitstream
		}
		if num == 0 {
			fs.resetPrograms()
			fs.lastFilterNum = -1
		} else {
			n := int(num) - 1
			if n > fs.arena.Len() {
				return errBadBitstream
			}
			fs.lastFilterNum = n
		}
	}
	progIdx := fs.lastFilterNum
	hasProg := progIdx >= 0 && progIdx < fs.arena.Len()

	var usageCount int
	if hasProg {
		p := fs.arena.Program(progIdx)
		p.UsageCount++
		usageCount = p.UsageCount
	}

	startOffset, ok := br.ReadVMNumber()
	if !ok {
		return errBadBitstream
	}
	blockStartPos := int64(startOffset) + d.win.Position()
	if flags&0x40 != 0 {
		blockStartPos += 258
	}

	var blockLength int64
	if flags&0x20 != 0 {
		n, ok := br.ReadVMNumber()
		if !ok {
			return errBadBitstream
		}
		blockLength = int64(n)
	} else if hasProg && progIdx < len(fs.oldFilterLength) {
		blockLength = fs.oldFilterLength[progIdx]
	}

	var registers [8]uint32
	registers[3] = rarProgramSystemGlobalAddress
	registers[4] = uint32(blockLength)
	registers[5] = uint32(usageCount)
	registers[7] = rarvm.MemSize

	if flags&0x10 != 0 {
		if !br.Ensure(7) {
			return errBadBitstream
		}
		mask := byte(br.Bits(7))
		for i := 0; i < 7; i++ {
			if mask&(1<<uint(i)) != 0 {
				v, ok := br.ReadVMNumber()
				if !ok {
					return errBadBitstream
				}
				registers[i] = v
			}
		}
	}

	if !hasProg {
		bcLen, ok := br.ReadVMNumber()
		if !ok || bcLen == 0 || bcLen > 0x10000 {
			return errBadBitstream
		}
		bytecode := make([]byte, bcLen)
		for i := range bytecode {
			if !br.Ensure(8) {
				return errBadBitstream
			}
			bytecode[i] = byte(br.Bits(8))
		}
		idx, err := fs.arena.Intern(bytecode)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadBitstream, err)
		}
		progIdx = idx
		fs.lastFilterNum = idx
	}
	for len(fs.oldFilterLength) <= progIdx {
		fs.oldFilterLength = append(fs.oldFilterLength, 0)
	}
	fs.oldFilterLength[progIdx] = blockLength

	if flags&0x08 != 0 {
		dataLen, ok := br.ReadVMNumber()
		if !ok || dataLen > 0x10000 {
			return errBadBitstream
		}
		// Custom global data beyond the 0x40-byte system-global prefix is
		// not forwarded: rarfilter.Run's runGeneric caps GlobalData at
		// 0x40 bytes, so these bytes are read (to stay bit-aligned) and
		// discarded rather than stored.
		for i := uint32(0); i < dataLen; i++ {
			if !br.Ensure(8) {
				return errBadBitstream
			}
			br.Bits(8)
		}
	}

	global := make([]byte, 0x40)
	for i := 0; i < 7; i++ {
		putLE32(global, i*4, registers[i])
	}
	putLE32(global, 0x1C, uint32(blockLength))
	putLE32(global, 0x20, 0)
	putLE32(global, 0x2C, uint32(usageCount))

	f := rarfilter.Filter{
		ProgramIndex:  progIdx,
		InitialRegs:   registers,
		GlobalData:    global,
		BlockStartPos: blockStartPos,
		BlockLength:   blockLength,
	}
	fs.queue.Enqueue(f)
	fs.filterStart = fs.queue.FilterStart()
	return nil
}

func putLE32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

// runFilters is the simplified single-filter-at-a-time equivalent of
// rar_run_filters (§4.5): the real driver chains together further queued
// filters that share the just-executed filter's output block geometry
// without re-entering the outer decode loop; this port always returns to
// the Decoder.Read loop between filters, one extra loop iteration per
// chained filter.
func (d *Decoder) runFilters() error {
	fs := &d.v3.filters
	f, ok := fs.queue.Dequeue()
	if !ok {
		return errBadBitstream
	}

	start := f.BlockStartPos
	target := start + f.BlockLength
	fs.filterStart = -1

	newEnd, err := d.expandV3(target)
	if err != nil {
		return err
	}
	if newEnd != target {
		return errBadBitstream
	}

	block := make([]byte, f.BlockLength)
	if err := d.win.CopyRange(block, start, f.BlockLength); err != nil {
		return fmt.Errorf("%w: %v", errBadBitstream, err)
	}
	out, err := rarfilter.Run(fs.arena, &f, block)
	if err != nil {
		return err
	}

	fs.readyBytes = out
	fs.lastEnd = newEnd
	fs.filterStart = fs.queue.FilterStart()
	return nil
}

// expandV3 is rar_expand's v3 branch (§4.6): decode main-code symbols
// into literals, a table-continuation/new-table toggle, a queued VM
// filter, or an LZSS match using the recent-offset MRU and (for offset
// symbols beyond the low-offset threshold) the low-offset sub-code with
// its repeat-counter optimization.
func (d *Decoder) expandV3(end int64) (int64, error) {
	v3 := &d.v3
	win := d.win
	br := d.br

	for {
		if win.Position() >= end {
			return end, nil
		}

		sym32, err := readSymbol(br, v3.mainCode)
		if err != nil {
			return 0, err
		}
		symbol := int(sym32)

		if symbol < 256 {
			win.EmitLiteral(byte(symbol))
			continue
		}
		if symbol == 256 {
			if !br.Ensure(1) {
				return 0, errBadBitstream
			}
			if br.Bits(1) == 0 {
				if !br.Ensure(1) {
					return 0, errBadBitstream
				}
				d.startNewTable = br.Bits(1) != 0
				return win.Position(), nil
			}
			if err := d.parseCodesV3(); err != nil {
				return 0, err
			}
			continue
		}
		if symbol == 257 {
			newEnd, err := d.readFilter(end)
			if err != nil {
				return 0, err
			}
			end = newEnd
			continue
		}

		var offs, length int
		switch {
		case symbol == 258:
			if v3.lastLength == 0 {
				continue
			}
			offs, length = v3.lastOffset, v3.lastLength
		case symbol <= 262:
			idx := symbol - 259
			lenSym, err := readSymbol(br, v3.lengthCode)
			if err != nil {
				return 0, err
			}
			offs = v3.oldOffset[idx]
			if int(lenSym) >= len(lengthBases) {
				return 0, errBadBitstream
			}
			length = lengthBases[lenSym] + 2
			if lengthBits[lenSym] > 0 {
				if !br.Ensure(lengthBits[lenSym]) {
					return 0, errBadBitstream
				}
				length += int(br.Bits(lengthBits[lenSym]))
			}
			for i := idx; i > 0; i-- {
				v3.oldOffset[i] = v3.oldOffset[i-1]
			}
			v3.oldOffset[0] = offs
		case symbol <= 270:
			idx := symbol - 263
			offs = shortBases[idx] + 1
			if shortBits[idx] > 0 {
				if !br.Ensure(shortBits[idx]) {
					return 0, errBadBitstream
				}
				offs += int(br.Bits(shortBits[idx]))
			}
			length = 2
			for i := 3; i > 0; i-- {
				v3.oldOffset[i] = v3.oldOffset[i-1]
			}
			v3.oldOffset[0] = offs
		default:
			idx := symbol - 271
			if idx >= len(lengthBases) {
				return 0, errBadBitstream
			}
			length = lengthBases[idx] + 3
			if lengthBits[idx] > 0 {
				if !br.Ensure(lengthBits[idx]) {
					return 0, errBadBitstream
				}
				length += int(br.Bits(lengthBits[idx]))
			}

			offsSym32, err := readSymbol(br, v3.offsetCode)
			if err != nil {
				return 0, err
			}
			offsSym := int(offsSym32)
			if offsSym >= len(offsetBases) {
				return 0, errBadBitstream
			}
			offs = offsetBases[offsSym] + 1
			if offsetBits[offsSym] > 0 {
				if offsSym > 9 {
					if offsetBits[offsSym] > 4 {
						if !br.Ensure(offsetBits[offsSym] - 4) {
							return 0, errBadBitstream
						}
						offs += int(br.Bits(offsetBits[offsSym]-4)) << 4
					}
					if v3.numLowOffsetRepeats > 0 {
						v3.numLowOffsetRepeats--
						offs += v3.lastLowOffset
					} else {
						lowSym, err := readSymbol(br, v3.lowOffsetCode)
						if err != nil {
							return 0, err
						}
						if lowSym == 16 {
							v3.numLowOffsetRepeats = 15
							offs += v3.lastLowOffset
						} else {
							offs += int(lowSym)
							v3.lastLowOffset = int(lowSym)
						}
					}
				} else {
					if !br.Ensure(offsetBits[offsSym]) {
						return 0, errBadBitstream
					}
					offs += int(br.Bits(offsetBits[offsSym]))
				}
			}
			if offs >= 0x40000 {
				length++
			}
			if offs >= 0x2000 {
				length++
			}
			for i := 3; i > 0; i-- {
				v3.oldOffset[i] = v3.oldOffset[i-1]
			}
			v3.oldOffset[0] = offs
		}

		v3.lastOffset = offs
		v3.lastLength = length

		if err := win.EmitMatch(int64(offs), int64(length)); err != nil {
			return 0, fmt.Errorf("%w: %v", errBadBitstream, err)
		}
	}
}
